package course

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"geoattend/internal/store"
)

// Repository persists courses in Postgres or SQLite.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

const courseColumns = `id, teacher_id, name, code, description, schedule, created_at`

func (r *Repository) Insert(ctx context.Context, c Course) (Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO courses (`+courseColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`), c.ID, c.TeacherID, c.Name, c.Code, c.Description, c.Schedule, c.CreatedAt.UTC())
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Course, error) {
	var c Course
	err := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT `+courseColumns+` FROM courses WHERE id = $1`), id).
		Scan(&c.ID, &c.TeacherID, &c.Name, &c.Code, &c.Description, &c.Schedule, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) List(ctx context.Context, teacherID string) ([]Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	args := []any{}
	if teacherID != "" {
		query += ` WHERE teacher_id = $1`
		args = append(args, teacherID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCourses(rows)
}

func scanCourses(rows *sql.Rows) ([]Course, error) {
	var res []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.TeacherID, &c.Name, &c.Code, &c.Description, &c.Schedule, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repository) ListForStudent(ctx context.Context, studentID string) ([]Course, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT c.id, c.teacher_id, c.name, c.code, c.description, c.schedule, c.created_at
		FROM courses c
		JOIN course_students cs ON cs.course_id = c.id
		WHERE cs.student_id = $1
		ORDER BY c.created_at DESC
	`), studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCourses(rows)
}

func (r *Repository) Enroll(ctx context.Context, e Enrollment) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO course_students (course_id, student_id, enrolled_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`), e.CourseID, e.StudentID, e.EnrolledAt.UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyEnrolled
	}
	return nil
}

func (r *Repository) Students(ctx context.Context, courseID string) ([]Enrollment, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT course_id, student_id, enrolled_at
		FROM course_students WHERE course_id = $1
		ORDER BY enrolled_at ASC
	`), courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.CourseID, &e.StudentID, &e.EnrolledAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r *Repository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var one int
	err := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT 1 FROM course_students WHERE course_id = $1 AND student_id = $2
	`), courseID, studentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
