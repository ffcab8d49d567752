package homework

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-process Store.
type MemStore struct {
	mu          sync.RWMutex
	homework    map[string]Homework
	submissions map[string][]Submission
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		homework:    make(map[string]Homework),
		submissions: make(map[string][]Submission),
	}
}

func (m *MemStore) Insert(_ context.Context, h Homework) (Homework, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	m.homework[h.ID] = h
	return h, nil
}

func (m *MemStore) Get(_ context.Context, id string) (*Homework, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.homework[id]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (m *MemStore) ListByCourses(_ context.Context, courseIDs []string) ([]Homework, error) {
	want := make(map[string]bool, len(courseIDs))
	for _, id := range courseIDs {
		want[id] = true
	}
	m.mu.RLock()
	var res []Homework
	for _, h := range m.homework {
		if want[h.CourseID] {
			res = append(res, h)
		}
	}
	m.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].DueDate.Before(res[j].DueDate) })
	return res, nil
}

func (m *MemStore) Update(_ context.Context, h Homework) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.homework[h.ID]; ok {
		m.homework[h.ID] = h
	}
	return nil
}

func (m *MemStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.homework, id)
	delete(m.submissions, id)
	return nil
}

func (m *MemStore) InsertSubmission(_ context.Context, s Submission) (Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.submissions[s.HomeworkID] {
		if existing.StudentID == s.StudentID {
			return Submission{}, ErrAlreadySubmitted
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	m.submissions[s.HomeworkID] = append(m.submissions[s.HomeworkID], s)
	return s, nil
}

func (m *MemStore) Submissions(_ context.Context, homeworkID string) ([]Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Submission(nil), m.submissions[homeworkID]...), nil
}

func (m *MemStore) GetSubmission(_ context.Context, homeworkID, studentID string) (*Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.submissions[homeworkID] {
		if s.StudentID == studentID {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *MemStore) SetGrade(_ context.Context, submissionID string, grade float64, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hwID, subs := range m.submissions {
		for i := range subs {
			if subs[i].ID == submissionID {
				g := grade
				m.submissions[hwID][i].Grade = &g
				m.submissions[hwID][i].Feedback = feedback
				return nil
			}
		}
	}
	return nil
}
