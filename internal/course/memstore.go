package course

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-process Store.
type MemStore struct {
	mu       sync.RWMutex
	courses  map[string]Course
	enrolled map[string][]Enrollment
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		courses:  make(map[string]Course),
		enrolled: make(map[string][]Enrollment),
	}
}

func (m *MemStore) Insert(_ context.Context, c Course) (Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.courses[c.ID] = c
	return c, nil
}

func (m *MemStore) Get(_ context.Context, id string) (*Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemStore) List(_ context.Context, teacherID string) ([]Course, error) {
	m.mu.RLock()
	res := make([]Course, 0, len(m.courses))
	for _, c := range m.courses {
		if teacherID == "" || c.TeacherID == teacherID {
			res = append(res, c)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemStore) ListForStudent(_ context.Context, studentID string) ([]Course, error) {
	m.mu.RLock()
	var res []Course
	for courseID, es := range m.enrolled {
		for _, e := range es {
			if e.StudentID == studentID {
				res = append(res, m.courses[courseID])
				break
			}
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemStore) Enroll(_ context.Context, e Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.enrolled[e.CourseID] {
		if existing.StudentID == e.StudentID {
			return ErrAlreadyEnrolled
		}
	}
	m.enrolled[e.CourseID] = append(m.enrolled[e.CourseID], e)
	return nil
}

func (m *MemStore) Students(_ context.Context, courseID string) ([]Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Enrollment(nil), m.enrolled[courseID]...), nil
}

func (m *MemStore) IsEnrolled(_ context.Context, courseID, studentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.enrolled[courseID] {
		if e.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}
