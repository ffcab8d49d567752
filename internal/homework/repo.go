package homework

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"geoattend/internal/store"
)

// Repository persists homework in Postgres or SQLite.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

const (
	homeworkColumns   = `id, course_id, teacher_id, title, description, due_date, attachments, created_at`
	submissionColumns = `id, homework_id, student_id, submission_text, attachments, submitted_at, grade, feedback`
)

type rowScanner interface {
	Scan(dest ...any) error
}

// encodeAttachments stores attachments as a JSON array so both dialects share one column type.
func encodeAttachments(a []string) (string, error) {
	if a == nil {
		a = []string{}
	}
	b, err := json.Marshal(a)
	return string(b), err
}

func decodeAttachments(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return out, nil
}

func scanHomework(row rowScanner) (Homework, error) {
	var (
		h   Homework
		raw string
	)
	if err := row.Scan(&h.ID, &h.CourseID, &h.TeacherID, &h.Title, &h.Description, &h.DueDate, &raw, &h.CreatedAt); err != nil {
		return Homework{}, err
	}
	a, err := decodeAttachments(raw)
	if err != nil {
		return Homework{}, err
	}
	h.Attachments = a
	return h, nil
}

func scanSubmission(row rowScanner) (Submission, error) {
	var (
		s     Submission
		raw   string
		grade sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.HomeworkID, &s.StudentID, &s.Text, &raw, &s.SubmittedAt, &grade, &s.Feedback); err != nil {
		return Submission{}, err
	}
	a, err := decodeAttachments(raw)
	if err != nil {
		return Submission{}, err
	}
	s.Attachments = a
	if grade.Valid {
		g := grade.Float64
		s.Grade = &g
	}
	return s, nil
}

func (r *Repository) Insert(ctx context.Context, h Homework) (Homework, error) {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	attachments, err := encodeAttachments(h.Attachments)
	if err != nil {
		return Homework{}, err
	}
	_, err = r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO homework (`+homeworkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`), h.ID, h.CourseID, h.TeacherID, h.Title, h.Description, h.DueDate.UTC(), attachments, h.CreatedAt.UTC())
	if err != nil {
		return Homework{}, err
	}
	return h, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Homework, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT `+homeworkColumns+` FROM homework WHERE id = $1`), id)
	h, err := scanHomework(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &h, nil
}

func (r *Repository) ListByCourses(ctx context.Context, courseIDs []string) ([]Homework, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	marks := make([]string, len(courseIDs))
	args := make([]any, len(courseIDs))
	for i, id := range courseIDs {
		marks[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT `+homeworkColumns+` FROM homework
		WHERE course_id IN (`+strings.Join(marks, ",")+`)
		ORDER BY due_date ASC
	`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Homework
	for rows.Next() {
		h, err := scanHomework(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r *Repository) Update(ctx context.Context, h Homework) error {
	attachments, err := encodeAttachments(h.Attachments)
	if err != nil {
		return err
	}
	_, err = r.db.Client.ExecContext(ctx, r.db.Rebind(`
		UPDATE homework SET title = $1, description = $2, due_date = $3, attachments = $4
		WHERE id = $5
	`), h.Title, h.Description, h.DueDate.UTC(), attachments, h.ID)
	return err
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`DELETE FROM homework WHERE id = $1`), id)
	return err
}

func (r *Repository) InsertSubmission(ctx context.Context, s Submission) (Submission, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	attachments, err := encodeAttachments(s.Attachments)
	if err != nil {
		return Submission{}, err
	}
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO homework_submissions (id, homework_id, student_id, submission_text, attachments, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (homework_id, student_id) DO NOTHING
	`), s.ID, s.HomeworkID, s.StudentID, s.Text, attachments, s.SubmittedAt.UTC())
	if err != nil {
		return Submission{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Submission{}, ErrAlreadySubmitted
	}
	return s, nil
}

func (r *Repository) Submissions(ctx context.Context, homeworkID string) ([]Submission, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT `+submissionColumns+` FROM homework_submissions
		WHERE homework_id = $1
		ORDER BY submitted_at ASC
	`), homeworkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Repository) GetSubmission(ctx context.Context, homeworkID, studentID string) (*Submission, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+submissionColumns+` FROM homework_submissions
		WHERE homework_id = $1 AND student_id = $2
	`), homeworkID, studentID)
	s, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) SetGrade(ctx context.Context, submissionID string, grade float64, feedback string) error {
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		UPDATE homework_submissions SET grade = $1, feedback = $2 WHERE id = $3
	`), grade, feedback, submissionID)
	return err
}
