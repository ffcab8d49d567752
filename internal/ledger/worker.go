package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
)

// Submitter sends a token to the ledger.
type Submitter interface {
	Submit(ctx context.Context, token string) (Receipt, error)
}

// TxRecorder stores the transaction hash against a record.
type TxRecorder interface {
	SetLedgerTx(ctx context.Context, recordID, txHash string) error
}

// Worker drains ledger jobs: submit, then attach the hash to the record.
type Worker struct {
	submitter Submitter
	recorder  TxRecorder
	logger    *zap.Logger

	Attempts int
	Backoff  time.Duration
}

// NewWorker builds a worker with 3 attempts and 2s linear backoff.
func NewWorker(s Submitter, r TxRecorder, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{submitter: s, recorder: r, logger: logger, Attempts: 3, Backoff: 2 * time.Second}
}

// Run consumes q until ctx ends or the queue closes.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	w.logger.Info("ledger worker started")
	for msg := range messages {
		if err := w.Handle(ctx, msg); err != nil {
			w.logger.Warn("ledger job failed",
				zap.String("kind", string(attendance.KindLedger)),
				zap.Error(err),
			)
		}
	}
	w.logger.Info("ledger worker stopped")
	return nil
}

// Handle processes one message. Unknown message types are skipped.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != JobType {
		w.logger.Debug("skipping message", zap.String("type", msg.Type))
		return nil
	}
	var job Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return fmt.Errorf("decode ledger job: %w", err)
	}
	if job.RecordID == "" || job.Token == "" {
		return fmt.Errorf("ledger job missing record id or token")
	}

	receipt, err := w.submit(ctx, job)
	if err != nil {
		metrics.LedgerSubmissions.WithLabelValues("error").Inc()
		return fmt.Errorf("record %s: %w", job.RecordID, err)
	}
	if err := w.recorder.SetLedgerTx(ctx, job.RecordID, receipt.TxHash); err != nil {
		metrics.LedgerSubmissions.WithLabelValues("error").Inc()
		return fmt.Errorf("record %s: store tx hash: %w", job.RecordID, err)
	}
	metrics.LedgerSubmissions.WithLabelValues("ok").Inc()
	w.logger.Info("ledger submission confirmed",
		zap.String("record_id", job.RecordID),
		zap.String("tx_hash", receipt.TxHash),
	)
	return nil
}

func (w *Worker) submit(ctx context.Context, job Job) (Receipt, error) {
	attempts := w.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(i) * w.Backoff):
			case <-ctx.Done():
				return Receipt{}, ctx.Err()
			}
		}
		receipt, err := w.submitter.Submit(ctx, job.Token)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		w.logger.Debug("ledger submit attempt failed",
			zap.String("record_id", job.RecordID),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
	}
	return Receipt{}, lastErr
}
