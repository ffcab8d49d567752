package attendance

import (
	"context"
	"time"
)

// Store persists codes and records. InsertRecord must be atomic with respect
// to the (student, code) pair and return ErrDuplicate on conflict.
type Store interface {
	InsertCode(ctx context.Context, c Code) (Code, error)
	GetCode(ctx context.Context, id string) (*Code, error)
	// LatestCode returns the newest code with the given token whose expiry is
	// after notBefore, or nil.
	LatestCode(ctx context.Context, token string, notBefore time.Time) (*Code, error)
	ExpireCode(ctx context.Context, id string, at time.Time) error

	FindRecord(ctx context.Context, studentID, codeID string) (*Record, error)
	InsertRecord(ctx context.Context, r Record) (Record, error)
	GetRecord(ctx context.Context, id string) (*Record, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]Record, error)
	SetLedgerTx(ctx context.Context, recordID, txHash string) error
	// SetTimeOut sets time_out only if it is still unset; ok reports whether it was.
	SetTimeOut(ctx context.Context, recordID string, at time.Time) (ok bool, err error)
}
