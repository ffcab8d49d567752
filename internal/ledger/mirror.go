package ledger

import (
	"context"
	"fmt"

	"geoattend/internal/attendance"
	"geoattend/internal/queue"
)

// JobType tags queue messages that ask for a ledger submission.
const JobType = "ledger.submit"

// Job is the queued payload for one check-in.
type Job struct {
	RecordID string `json:"record_id"`
	Token    string `json:"token"`
}

// QueueMirror hands check-ins to the ledger worker through a queue.
type QueueMirror struct {
	q queue.Queue
}

// NewQueueMirror creates a mirror publishing to q.
func NewQueueMirror(q queue.Queue) *QueueMirror {
	return &QueueMirror{q: q}
}

// Mirror enqueues rec for submission.
func (m *QueueMirror) Mirror(ctx context.Context, rec attendance.Record, token string) error {
	msg, err := queue.NewMessage(JobType, Job{RecordID: rec.ID, Token: token})
	if err != nil {
		return err
	}
	if err := m.q.Publish(ctx, msg); err != nil {
		return fmt.Errorf("enqueue ledger job: %w", err)
	}
	return nil
}
