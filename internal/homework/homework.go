package homework

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"geoattend/internal/course"
)

var (
	ErrNotFound         = errors.New("homework not found")
	ErrNoSubmission     = errors.New("submission not found")
	ErrForbidden        = errors.New("not allowed for this homework")
	ErrNotEnrolled      = errors.New("student not enrolled in course")
	ErrAlreadySubmitted = errors.New("homework already submitted")
	ErrInvalidInput     = errors.New("invalid homework input")
)

// Homework is an assignment posted to a course.
type Homework struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	TeacherID   string    `json:"teacher_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DueDate     time.Time `json:"due_date"`
	Attachments []string  `json:"attachments"`
	CreatedAt   time.Time `json:"created_at"`
}

// Submission is one student's answer to a homework. A student submits once.
type Submission struct {
	ID          string    `json:"id"`
	HomeworkID  string    `json:"homework_id"`
	StudentID   string    `json:"student_id"`
	Text        string    `json:"submission_text,omitempty"`
	Attachments []string  `json:"attachments"`
	SubmittedAt time.Time `json:"submitted_at"`
	Grade       *float64  `json:"grade,omitempty"`
	Feedback    string    `json:"feedback,omitempty"`
}

// Late reports whether the submission arrived after the due date.
func (s Submission) Late(h Homework) bool {
	return s.SubmittedAt.After(h.DueDate)
}

// Store persists homework and submissions.
type Store interface {
	Insert(ctx context.Context, h Homework) (Homework, error)
	// Get returns nil, nil when the homework does not exist.
	Get(ctx context.Context, id string) (*Homework, error)
	// ListByCourses returns homework for any of courseIDs, earliest due first.
	ListByCourses(ctx context.Context, courseIDs []string) ([]Homework, error)
	Update(ctx context.Context, h Homework) error
	// Delete removes the homework and its submissions.
	Delete(ctx context.Context, id string) error
	// InsertSubmission returns ErrAlreadySubmitted when the student already submitted.
	InsertSubmission(ctx context.Context, s Submission) (Submission, error)
	Submissions(ctx context.Context, homeworkID string) ([]Submission, error)
	// GetSubmission returns nil, nil when the student has not submitted.
	GetSubmission(ctx context.Context, homeworkID, studentID string) (*Submission, error)
	SetGrade(ctx context.Context, submissionID string, grade float64, feedback string) error
}

// Courses resolves course ownership and enrollment.
type Courses interface {
	Get(ctx context.Context, id string) (course.Course, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]course.Course, error)
}

// Service manages homework for courses.
type Service struct {
	store   Store
	courses Courses
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a homework service.
func NewService(store Store, courses Courses, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, courses: courses, logger: logger, now: time.Now}
}

// AddRequest is the input to Add.
type AddRequest struct {
	TeacherID   string
	CourseID    string
	Title       string
	Description string
	DueDate     time.Time
	Attachments []string
}

// Add posts homework to a course the teacher owns.
func (s *Service) Add(ctx context.Context, req AddRequest) (Homework, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || req.DueDate.IsZero() {
		return Homework{}, fmt.Errorf("%w: title and due date required", ErrInvalidInput)
	}
	crs, err := s.courses.Get(ctx, req.CourseID)
	if err != nil {
		return Homework{}, err
	}
	if crs.TeacherID != req.TeacherID {
		return Homework{}, ErrForbidden
	}
	h, err := s.store.Insert(ctx, Homework{
		CourseID:    crs.ID,
		TeacherID:   req.TeacherID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		DueDate:     req.DueDate.UTC(),
		Attachments: cleanAttachments(req.Attachments),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return Homework{}, fmt.Errorf("insert homework: %w", err)
	}
	s.logger.Info("homework added", zap.String("homework_id", h.ID), zap.String("course_id", h.CourseID))
	return h, nil
}

// ListByCourse returns the course's homework, earliest due first.
func (s *Service) ListByCourse(ctx context.Context, courseID string) ([]Homework, error) {
	if _, err := s.courses.Get(ctx, courseID); err != nil {
		return nil, err
	}
	return s.list(ctx, []string{courseID})
}

// ListForStudent returns homework across every course the student is enrolled in.
func (s *Service) ListForStudent(ctx context.Context, studentID string) ([]Homework, error) {
	cs, err := s.courses.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return []Homework{}, nil
	}
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return s.list(ctx, ids)
}

func (s *Service) list(ctx context.Context, courseIDs []string) ([]Homework, error) {
	hs, err := s.store.ListByCourses(ctx, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("list homework: %w", err)
	}
	if hs == nil {
		hs = []Homework{}
	}
	return hs, nil
}

// Get returns homework by id.
func (s *Service) Get(ctx context.Context, id string) (Homework, error) {
	h, err := s.store.Get(ctx, id)
	if err != nil {
		return Homework{}, fmt.Errorf("load homework: %w", err)
	}
	if h == nil {
		return Homework{}, ErrNotFound
	}
	return *h, nil
}

// owned loads the homework and checks teacherID posted it.
func (s *Service) owned(ctx context.Context, teacherID, id string) (Homework, error) {
	h, err := s.Get(ctx, id)
	if err != nil {
		return Homework{}, err
	}
	if h.TeacherID != teacherID {
		return Homework{}, ErrForbidden
	}
	return h, nil
}

// UpdateRequest changes the fields that are non-nil.
type UpdateRequest struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Attachments *[]string
}

// Update edits homework the teacher posted.
func (s *Service) Update(ctx context.Context, teacherID, id string, req UpdateRequest) (Homework, error) {
	h, err := s.owned(ctx, teacherID, id)
	if err != nil {
		return Homework{}, err
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return Homework{}, fmt.Errorf("%w: title required", ErrInvalidInput)
		}
		h.Title = title
	}
	if req.Description != nil {
		h.Description = strings.TrimSpace(*req.Description)
	}
	if req.DueDate != nil {
		if req.DueDate.IsZero() {
			return Homework{}, fmt.Errorf("%w: due date required", ErrInvalidInput)
		}
		h.DueDate = req.DueDate.UTC()
	}
	if req.Attachments != nil {
		h.Attachments = cleanAttachments(*req.Attachments)
	}
	if err := s.store.Update(ctx, h); err != nil {
		return Homework{}, fmt.Errorf("update homework: %w", err)
	}
	return h, nil
}

// Delete removes homework the teacher posted, with its submissions.
func (s *Service) Delete(ctx context.Context, teacherID, id string) error {
	if _, err := s.owned(ctx, teacherID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete homework: %w", err)
	}
	s.logger.Info("homework deleted", zap.String("homework_id", id))
	return nil
}

// SubmitRequest is the input to Submit.
type SubmitRequest struct {
	HomeworkID  string
	StudentID   string
	Text        string
	Attachments []string
}

// Submit records an enrolled student's answer. Late submissions are accepted.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	text := strings.TrimSpace(req.Text)
	attachments := cleanAttachments(req.Attachments)
	if req.StudentID == "" || (text == "" && len(attachments) == 0) {
		return Submission{}, fmt.Errorf("%w: text or attachments required", ErrInvalidInput)
	}
	h, err := s.Get(ctx, req.HomeworkID)
	if err != nil {
		return Submission{}, err
	}
	ok, err := s.courses.IsEnrolled(ctx, h.CourseID, req.StudentID)
	if err != nil {
		return Submission{}, err
	}
	if !ok {
		return Submission{}, ErrNotEnrolled
	}
	sub, err := s.store.InsertSubmission(ctx, Submission{
		HomeworkID:  h.ID,
		StudentID:   req.StudentID,
		Text:        text,
		Attachments: attachments,
		SubmittedAt: s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrAlreadySubmitted) {
			return Submission{}, err
		}
		return Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	s.logger.Info("homework submitted",
		zap.String("homework_id", h.ID),
		zap.String("student_id", req.StudentID),
		zap.Bool("late", sub.Late(h)),
	)
	return sub, nil
}

// Submissions lists every submission for homework the teacher posted.
func (s *Service) Submissions(ctx context.Context, teacherID, homeworkID string) ([]Submission, error) {
	if _, err := s.owned(ctx, teacherID, homeworkID); err != nil {
		return nil, err
	}
	subs, err := s.store.Submissions(ctx, homeworkID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	if subs == nil {
		subs = []Submission{}
	}
	return subs, nil
}

// SubmissionFor returns the student's own submission.
func (s *Service) SubmissionFor(ctx context.Context, studentID, homeworkID string) (Submission, error) {
	if _, err := s.Get(ctx, homeworkID); err != nil {
		return Submission{}, err
	}
	sub, err := s.store.GetSubmission(ctx, homeworkID, studentID)
	if err != nil {
		return Submission{}, fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		return Submission{}, ErrNoSubmission
	}
	return *sub, nil
}

// Grade scores a student's submission on homework the teacher posted.
func (s *Service) Grade(ctx context.Context, teacherID, homeworkID, studentID string, grade float64, feedback string) (Submission, error) {
	if grade < 0 || grade > 999.99 {
		return Submission{}, fmt.Errorf("%w: grade out of range", ErrInvalidInput)
	}
	if _, err := s.owned(ctx, teacherID, homeworkID); err != nil {
		return Submission{}, err
	}
	sub, err := s.store.GetSubmission(ctx, homeworkID, studentID)
	if err != nil {
		return Submission{}, fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		return Submission{}, ErrNoSubmission
	}
	feedback = strings.TrimSpace(feedback)
	if err := s.store.SetGrade(ctx, sub.ID, grade, feedback); err != nil {
		return Submission{}, fmt.Errorf("grade submission: %w", err)
	}
	sub.Grade = &grade
	sub.Feedback = feedback
	return *sub, nil
}

func cleanAttachments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
