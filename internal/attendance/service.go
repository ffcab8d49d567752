package attendance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"geoattend/internal/geo"
	"geoattend/internal/metrics"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrAlreadyTimedOut = errors.New("time-out already recorded")
)

// Mirror replicates a persisted check-in to an external ledger.
type Mirror interface {
	Mirror(ctx context.Context, rec Record, token string) error
}

// Config holds the tunables of the code lifecycle and geofence.
type Config struct {
	Validity        time.Duration
	DefaultRadius   float64
	GPSBuffer       float64
	ClockSkew       time.Duration
	LocationTimeout time.Duration
	MirrorTimeout   time.Duration
}

// DefaultConfig returns 5m validity, 100m radius, 10m buffer, 30s skew, 15s location timeout.
func DefaultConfig() Config {
	return Config{
		Validity:        5 * time.Minute,
		DefaultRadius:   100,
		GPSBuffer:       10,
		ClockSkew:       30 * time.Second,
		LocationTimeout: 15 * time.Second,
		MirrorTimeout:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Validity <= 0 {
		c.Validity = d.Validity
	}
	if c.DefaultRadius <= 0 {
		c.DefaultRadius = d.DefaultRadius
	}
	if c.GPSBuffer < 0 {
		c.GPSBuffer = d.GPSBuffer
	}
	if c.ClockSkew < 0 {
		c.ClockSkew = d.ClockSkew
	}
	if c.LocationTimeout <= 0 {
		c.LocationTimeout = d.LocationTimeout
	}
	if c.MirrorTimeout <= 0 {
		c.MirrorTimeout = d.MirrorTimeout
	}
	return c
}

// Service coordinates code issuance, validation and check-in.
type Service struct {
	store    Store
	mirror   Mirror
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time
	newToken func() (string, error)

	inflight sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTokenSource overrides GenerateToken.
func WithTokenSource(fn func() (string, error)) Option {
	return func(s *Service) { s.newToken = fn }
}

// NewService creates a service backed by a store. mirror may be nil.
func NewService(store Store, mirror Mirror, logger *zap.Logger, cfg Config, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		mirror:   mirror,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		newToken: GenerateToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// IssueRequest describes a code to issue. Zero Validity/RadiusMeters use defaults.
type IssueRequest struct {
	IssuerID     string
	CourseID     string
	Origin       *geo.Point
	RadiusMeters float64
	Validity     time.Duration
	LocationName string
}

// Issue generates and persists a new code.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (Code, error) {
	if req.IssuerID == "" || req.CourseID == "" {
		return Code{}, fmt.Errorf("%w: issuer and course required", ErrInvalidInput)
	}
	if req.Origin != nil {
		if err := geo.Validate(*req.Origin); err != nil {
			return Code{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if req.RadiusMeters < 0 {
		return Code{}, fmt.Errorf("%w: negative radius", ErrInvalidInput)
	}
	radius := req.RadiusMeters
	if radius == 0 {
		radius = s.cfg.DefaultRadius
	}
	validity := req.Validity
	if validity <= 0 {
		validity = s.cfg.Validity
	}

	token, err := s.newToken()
	if err != nil {
		return Code{}, fmt.Errorf("generate token: %w", err)
	}
	now := s.now().UTC()
	code, err := s.store.InsertCode(ctx, Code{
		IssuerID:     req.IssuerID,
		CourseID:     req.CourseID,
		Token:        token,
		CreatedAt:    now,
		ExpiresAt:    now.Add(validity),
		Origin:       req.Origin,
		RadiusMeters: radius,
		LocationName: req.LocationName,
	})
	if err != nil {
		return Code{}, newError(KindStore, "store code", err)
	}

	metrics.CodesIssued.WithLabelValues(strconv.FormatBool(code.Geofenced())).Inc()
	s.logger.Info("attendance code issued",
		zap.String("code_id", code.ID),
		zap.String("course_id", code.CourseID),
		zap.Time("expires_at", code.ExpiresAt),
		zap.Bool("geofenced", code.Geofenced()),
	)
	return code, nil
}

// Invalidate ends a code early. Only its issuer may do so.
func (s *Service) Invalidate(ctx context.Context, issuerID, codeID string) (Code, error) {
	code, err := s.store.GetCode(ctx, codeID)
	if err != nil {
		return Code{}, newError(KindStore, "load code", err)
	}
	if code == nil {
		return Code{}, ErrNotFound
	}
	if code.IssuerID != issuerID {
		return Code{}, ErrForbidden
	}
	now := s.now().UTC()
	if code.ExpiredAt(now) {
		return *code, nil
	}
	if err := s.store.ExpireCode(ctx, code.ID, now); err != nil {
		return Code{}, newError(KindStore, "expire code", err)
	}
	code.ExpiresAt = now
	return *code, nil
}

// GetCode returns a code by id.
func (s *Service) GetCode(ctx context.Context, id string) (Code, error) {
	code, err := s.store.GetCode(ctx, id)
	if err != nil {
		return Code{}, newError(KindStore, "load code", err)
	}
	if code == nil {
		return Code{}, ErrNotFound
	}
	return *code, nil
}

// Remaining returns the time left on c and whether it is already dead.
func (s *Service) Remaining(c Code) (time.Duration, bool) {
	left := c.ExpiresAt.Sub(s.now())
	if left <= 0 {
		return 0, true
	}
	return left, false
}

// Validate resolves a user-submitted token to its current code. It writes
// nothing, but a rejection counts as a failed check-in attempt.
func (s *Service) Validate(ctx context.Context, raw string) (Code, error) {
	code, err := s.validate(ctx, raw)
	if err != nil {
		metrics.CheckIns.WithLabelValues(string(KindOf(err))).Inc()
		return Code{}, err
	}
	return code, nil
}

func (s *Service) validate(ctx context.Context, raw string) (Code, error) {
	token := NormalizeToken(raw)
	if !wellFormed(token) {
		return Code{}, newError(KindInvalidCode, "attendance code must be 6 letters or digits", nil)
	}

	now := s.now()
	code, err := s.store.LatestCode(ctx, token, now.Add(-s.cfg.ClockSkew))
	if err != nil {
		return Code{}, newError(KindStore, "lookup code", err)
	}
	if code == nil || code.ExpiredAt(now) {
		return Code{}, newError(KindNotFoundOrExpired, "invalid or expired attendance code", nil)
	}
	return *code, nil
}

// CheckInRequest is the input to CheckIn. Locator may be nil when the code has no origin.
type CheckInRequest struct {
	StudentID  string
	Code       Code
	Locator    geo.Locator
	IsLate     bool
	CourseName string
}

// Redeem validates raw and checks the student in against the resolved code.
func (s *Service) Redeem(ctx context.Context, raw string, req CheckInRequest) (Record, error) {
	code, err := s.Validate(ctx, raw)
	if err != nil {
		return Record{}, err
	}
	req.Code = code
	return s.CheckIn(ctx, req)
}

// CheckIn enforces the geofence and the one-record-per-(student, code) rule,
// persists the record, and mirrors it to the ledger without waiting.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (Record, error) {
	rec, err := s.checkIn(ctx, req)
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = "error"
		}
		metrics.CheckIns.WithLabelValues(string(kind)).Inc()
		s.logger.Info("check-in rejected",
			zap.String("student_id", req.StudentID),
			zap.String("code_id", req.Code.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return Record{}, err
	}
	metrics.CheckIns.WithLabelValues("ok").Inc()
	s.logger.Info("check-in recorded",
		zap.String("record_id", rec.ID),
		zap.String("student_id", rec.StudentID),
		zap.String("course_id", rec.CourseID),
		zap.String("course", req.CourseName),
	)
	s.dispatchMirror(ctx, rec, req.Code.Token)
	return rec, nil
}

func (s *Service) checkIn(ctx context.Context, req CheckInRequest) (Record, error) {
	if req.StudentID == "" || req.Code.ID == "" {
		return Record{}, fmt.Errorf("%w: student and code required", ErrInvalidInput)
	}

	existing, err := s.store.FindRecord(ctx, req.StudentID, req.Code.ID)
	if err != nil {
		return Record{}, newError(KindStore, "check existing attendance", err)
	}
	if existing != nil {
		return Record{}, newError(KindAlreadyMarked, "attendance already marked for this code", nil)
	}

	now := s.now().UTC()
	rec := Record{
		StudentID: req.StudentID,
		CourseID:  req.Code.CourseID,
		CodeID:    req.Code.ID,
		IsLate:    req.IsLate,
		CreatedAt: now,
		TimeIn:    now,
	}

	if req.Code.Geofenced() {
		fix, err := geo.Locate(ctx, req.Locator, s.cfg.LocationTimeout)
		if err != nil {
			if errors.Is(err, geo.ErrTimeout) {
				return Record{}, newError(KindLocationTimeout, "location request timed out", err)
			}
			return Record{}, newError(KindLocationUnavailable, "location unavailable", err)
		}
		distance, within, err := geo.CheckRadius(*req.Code.Origin, fix.Point, req.Code.RadiusMeters, s.cfg.GPSBuffer)
		if err != nil {
			return Record{}, newError(KindOutOfRange, "location could not be verified", err)
		}
		metrics.CheckInDistance.Observe(distance)
		if !within {
			return Record{}, &Error{
				Kind:     KindOutOfRange,
				Message:  fmt.Sprintf("you must be within %.0fm of the class location; you are %.0fm away", req.Code.RadiusMeters, distance),
				Distance: &distance,
			}
		}
		point := fix.Point
		accuracy := fix.AccuracyMeters
		rec.StudentLocation = &point
		rec.DistanceMeters = &distance
		rec.AccuracyMeters = &accuracy
	}

	rec, err = s.store.InsertRecord(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Record{}, newError(KindAlreadyMarked, "attendance already marked for this code", nil)
		}
		return Record{}, newError(KindStore, "record attendance", err)
	}
	return rec, nil
}

func (s *Service) dispatchMirror(parent context.Context, rec Record, token string) {
	if s.mirror == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.LedgerSubmissions.WithLabelValues("dispatch_error").Inc()
				s.logger.Error("ledger mirror panicked",
					zap.String("kind", string(KindLedger)),
					zap.String("record_id", rec.ID),
					zap.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.MirrorTimeout)
		defer cancel()
		if err := s.mirror.Mirror(ctx, rec, token); err != nil {
			metrics.LedgerSubmissions.WithLabelValues("dispatch_error").Inc()
			s.logger.Warn("ledger mirror failed",
				zap.String("kind", string(KindLedger)),
				zap.String("record_id", rec.ID),
				zap.Error(err),
			)
		}
	}()
}

// Drain waits for in-flight ledger dispatches or ctx expiry.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TimeOut stamps a student's time-out on their record once.
func (s *Service) TimeOut(ctx context.Context, recordID, studentID string) (Record, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return Record{}, newError(KindStore, "load record", err)
	}
	if rec == nil {
		return Record{}, ErrNotFound
	}
	if rec.StudentID != studentID {
		return Record{}, ErrForbidden
	}
	now := s.now().UTC()
	ok, err := s.store.SetTimeOut(ctx, recordID, now)
	if err != nil {
		return Record{}, newError(KindStore, "record time-out", err)
	}
	if !ok {
		return Record{}, ErrAlreadyTimedOut
	}
	rec.TimeOut = &now
	return *rec, nil
}

// GetRecord returns a record by id.
func (s *Service) GetRecord(ctx context.Context, id string) (Record, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return Record{}, newError(KindStore, "load record", err)
	}
	if rec == nil {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// ListRecords returns records newest first.
func (s *Service) ListRecords(ctx context.Context, f RecordFilter) ([]Record, error) {
	recs, err := s.store.ListRecords(ctx, f)
	if err != nil {
		return nil, newError(KindStore, "list records", err)
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}
