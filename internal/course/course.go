package course

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotFound        = errors.New("course not found")
	ErrAlreadyEnrolled = errors.New("student already enrolled")
	ErrInvalidInput    = errors.New("invalid course input")
)

// Course is a class taught by one teacher.
type Course struct {
	ID          string    `json:"id"`
	TeacherID   string    `json:"teacher_id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	Schedule    string    `json:"schedule,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	CourseID   string    `json:"course_id"`
	StudentID  string    `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Store persists courses and enrollments.
type Store interface {
	Insert(ctx context.Context, c Course) (Course, error)
	// Get returns nil, nil when the course does not exist.
	Get(ctx context.Context, id string) (*Course, error)
	List(ctx context.Context, teacherID string) ([]Course, error)
	// ListForStudent returns the courses studentID is enrolled in.
	ListForStudent(ctx context.Context, studentID string) ([]Course, error)
	// Enroll returns ErrAlreadyEnrolled when the pair exists.
	Enroll(ctx context.Context, e Enrollment) error
	Students(ctx context.Context, courseID string) ([]Enrollment, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
}

// Service manages courses.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a course service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	TeacherID   string
	Name        string
	Code        string
	Description string
	Schedule    string
}

// Create adds a course owned by req.TeacherID.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Course, error) {
	name := strings.TrimSpace(req.Name)
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if req.TeacherID == "" || name == "" || code == "" {
		return Course{}, fmt.Errorf("%w: teacher, name and code required", ErrInvalidInput)
	}
	c, err := s.store.Insert(ctx, Course{
		TeacherID:   req.TeacherID,
		Name:        name,
		Code:        code,
		Description: strings.TrimSpace(req.Description),
		Schedule:    strings.TrimSpace(req.Schedule),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return Course{}, fmt.Errorf("insert course: %w", err)
	}
	s.logger.Info("course created", zap.String("course_id", c.ID), zap.String("teacher_id", c.TeacherID))
	return c, nil
}

// Get returns a course by id.
func (s *Service) Get(ctx context.Context, id string) (Course, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return Course{}, fmt.Errorf("load course: %w", err)
	}
	if c == nil {
		return Course{}, ErrNotFound
	}
	return *c, nil
}

// ListByTeacher returns the teacher's courses, newest first.
func (s *Service) ListByTeacher(ctx context.Context, teacherID string) ([]Course, error) {
	return s.list(ctx, teacherID)
}

// ListAll returns every course, newest first.
func (s *Service) ListAll(ctx context.Context) ([]Course, error) {
	return s.list(ctx, "")
}

// ListByStudent returns the courses the student is enrolled in, newest first.
func (s *Service) ListByStudent(ctx context.Context, studentID string) ([]Course, error) {
	cs, err := s.store.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list enrolled courses: %w", err)
	}
	if cs == nil {
		cs = []Course{}
	}
	return cs, nil
}

func (s *Service) list(ctx context.Context, teacherID string) ([]Course, error) {
	cs, err := s.store.List(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	if cs == nil {
		cs = []Course{}
	}
	return cs, nil
}

// Enroll adds studentID to the course.
func (s *Service) Enroll(ctx context.Context, courseID, studentID string) (Enrollment, error) {
	if studentID == "" {
		return Enrollment{}, fmt.Errorf("%w: student required", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, courseID); err != nil {
		return Enrollment{}, err
	}
	e := Enrollment{CourseID: courseID, StudentID: studentID, EnrolledAt: s.now().UTC()}
	if err := s.store.Enroll(ctx, e); err != nil {
		if errors.Is(err, ErrAlreadyEnrolled) {
			return Enrollment{}, err
		}
		return Enrollment{}, fmt.Errorf("enroll: %w", err)
	}
	s.logger.Info("student enrolled", zap.String("course_id", courseID), zap.String("student_id", studentID))
	return e, nil
}

// ListStudents returns the course's enrollments in enrollment order.
func (s *Service) ListStudents(ctx context.Context, courseID string) ([]Enrollment, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	es, err := s.store.Students(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	if es == nil {
		es = []Enrollment{}
	}
	return es, nil
}

// IsEnrolled reports whether studentID is enrolled in courseID.
func (s *Service) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	ok, err := s.store.IsEnrolled(ctx, courseID, studentID)
	if err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return ok, nil
}
