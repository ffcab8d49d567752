package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/queue"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	calls  int
	failN  int
	tokens []string
}

func (f *fakeSubmitter) Submit(_ context.Context, token string) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens = append(f.tokens, token)
	if f.calls <= f.failN {
		return Receipt{}, errors.New("nonce too low")
	}
	return Receipt{TxHash: "0x" + token}, nil
}

func seedRecord(t *testing.T, store *attendance.MemStore) attendance.Record {
	t.Helper()
	rec, err := store.InsertRecord(context.Background(), attendance.Record{StudentID: "s", CodeID: "c", CourseID: "course"})
	require.NoError(t, err)
	return rec
}

func TestWorker_HandleStoresTxHash(t *testing.T) {
	store := attendance.NewMemStore()
	rec := seedRecord(t, store)
	sub := &fakeSubmitter{failN: 2}
	w := NewWorker(sub, store, zap.NewNop())
	w.Backoff = 0

	msg, err := queue.NewMessage(JobType, Job{RecordID: rec.ID, Token: "AB12CD"})
	require.NoError(t, err)
	require.NoError(t, w.Handle(context.Background(), msg))

	got, err := store.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xAB12CD", got.LedgerTxHash)
	assert.Equal(t, 3, sub.calls)
}

func TestWorker_HandleGivesUp(t *testing.T) {
	store := attendance.NewMemStore()
	rec := seedRecord(t, store)
	sub := &fakeSubmitter{failN: 10}
	w := NewWorker(sub, store, zap.NewNop())
	w.Backoff = 0

	msg, err := queue.NewMessage(JobType, Job{RecordID: rec.ID, Token: "AB12CD"})
	require.NoError(t, err)
	assert.Error(t, w.Handle(context.Background(), msg))
	assert.Equal(t, 3, sub.calls)

	got, err := store.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Empty(t, got.LedgerTxHash)
}

func TestWorker_HandleIgnoresOtherTypes(t *testing.T) {
	sub := &fakeSubmitter{}
	w := NewWorker(sub, attendance.NewMemStore(), nil)
	assert.NoError(t, w.Handle(context.Background(), queue.Message{Type: "checkin"}))
	assert.Zero(t, sub.calls)

	assert.Error(t, w.Handle(context.Background(), queue.Message{Type: JobType, Body: []byte(`{"token":"AB12CD"}`)}))
}

func TestQueueMirror_EndToEnd(t *testing.T) {
	store := attendance.NewMemStore()
	rec := seedRecord(t, store)
	q := queue.NewInMemory(8)
	sub := &fakeSubmitter{}
	w := NewWorker(sub, store, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx, q)
		close(done)
	}()

	require.NoError(t, NewQueueMirror(q).Mirror(context.Background(), rec, "ZX90QP"))

	assert.Eventually(t, func() bool {
		got, err := store.GetRecord(context.Background(), rec.ID)
		return err == nil && got.LedgerTxHash == "0xZX90QP"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
