package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"geoattend/internal/geo"
	"geoattend/internal/store"
)

// Repository persists codes and records in Postgres or SQLite.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

const codeColumns = `id, issuer_id, course_id, token, created_at, expires_at, latitude, longitude, radius_meters, location_name`

const recordColumns = `id, student_id, course_id, code_id, student_latitude, student_longitude, distance_meters, accuracy_meters, is_late, created_at, time_in, time_out, ledger_tx_hash`

type scanner interface {
	Scan(dest ...any) error
}

// InsertCode writes a new code.
func (r *Repository) InsertCode(ctx context.Context, c Code) (Code, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	var lat, lon sql.NullFloat64
	if c.Origin != nil {
		lat = sql.NullFloat64{Float64: c.Origin.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: c.Origin.Longitude, Valid: true}
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance_codes (`+codeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`), c.ID, c.IssuerID, c.CourseID, c.Token, c.CreatedAt.UTC(), c.ExpiresAt.UTC(), lat, lon, c.RadiusMeters, c.LocationName)
	if err != nil {
		return Code{}, err
	}
	return c, nil
}

// GetCode returns a code by id, or nil.
func (r *Repository) GetCode(ctx context.Context, id string) (*Code, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT `+codeColumns+` FROM attendance_codes WHERE id = $1`), id)
	return scanCode(row)
}

// LatestCode returns the most recently created code for token expiring after notBefore.
func (r *Repository) LatestCode(ctx context.Context, token string, notBefore time.Time) (*Code, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+codeColumns+`
		FROM attendance_codes
		WHERE token = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`), token, notBefore.UTC())
	return scanCode(row)
}

// ExpireCode sets expires_at, used for early invalidation.
func (r *Repository) ExpireCode(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`UPDATE attendance_codes SET expires_at = $1 WHERE id = $2`), at.UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCode(row scanner) (*Code, error) {
	var (
		c        Code
		lat, lon sql.NullFloat64
	)
	err := row.Scan(&c.ID, &c.IssuerID, &c.CourseID, &c.Token, &c.CreatedAt, &c.ExpiresAt, &lat, &lon, &c.RadiusMeters, &c.LocationName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if lat.Valid && lon.Valid {
		c.Origin = &geo.Point{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	return &c, nil
}

// FindRecord returns the record for (student, code), or nil.
func (r *Repository) FindRecord(ctx context.Context, studentID, codeID string) (*Record, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+recordColumns+` FROM attendance_records WHERE student_id = $1 AND code_id = $2
	`), studentID, codeID)
	return scanRecord(row)
}

// InsertRecord writes rec unless the (student, code) pair exists, in which
// case it returns ErrDuplicate. The unique constraint is the enforcement point.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var lat, lon sql.NullFloat64
	if rec.StudentLocation != nil {
		lat = sql.NullFloat64{Float64: rec.StudentLocation.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: rec.StudentLocation.Longitude, Valid: true}
	}
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		INSERT INTO attendance_records (id, student_id, course_id, code_id, student_latitude, student_longitude, distance_meters, accuracy_meters, is_late, created_at, time_in)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (student_id, code_id) DO NOTHING
		RETURNING id
	`), rec.ID, rec.StudentID, rec.CourseID, rec.CodeID, lat, lon, nullFloat(rec.DistanceMeters), nullFloat(rec.AccuracyMeters), rec.IsLate, rec.CreatedAt.UTC(), rec.TimeIn.UTC())
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// GetRecord returns a single record by id, or nil.
func (r *Repository) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`SELECT `+recordColumns+` FROM attendance_records WHERE id = $1`), id)
	return scanRecord(row)
}

// ListRecords returns records with basic filters, newest first.
func (r *Repository) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	limit, offset := normalizePage(f.Limit, f.Offset)
	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, "student_id = $"+strconv.Itoa(len(args)))
	}
	if f.CourseID != "" {
		args = append(args, f.CourseID)
		clauses = append(clauses, "course_id = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

// SetLedgerTx attaches the mirror's transaction hash.
func (r *Repository) SetLedgerTx(ctx context.Context, recordID, txHash string) error {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`UPDATE attendance_records SET ledger_tx_hash = $1 WHERE id = $2`), txHash, recordID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTimeOut records the time-out once.
func (r *Repository) SetTimeOut(ctx context.Context, recordID string, at time.Time) (bool, error) {
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		UPDATE attendance_records SET time_out = $1 WHERE id = $2 AND time_out IS NULL
	`), at.UTC(), recordID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec                  Record
		lat, lon, dist, accu sql.NullFloat64
		timeOut              sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.CourseID, &rec.CodeID, &lat, &lon, &dist, &accu, &rec.IsLate, &rec.CreatedAt, &rec.TimeIn, &timeOut, &rec.LedgerTxHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if lat.Valid && lon.Valid {
		rec.StudentLocation = &geo.Point{Latitude: lat.Float64, Longitude: lon.Float64}
	}
	if dist.Valid {
		rec.DistanceMeters = &dist.Float64
	}
	if accu.Valid {
		rec.AccuracyMeters = &accu.Float64
	}
	if timeOut.Valid {
		rec.TimeOut = &timeOut.Time
	}
	return &rec, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
