package attendance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"geoattend/internal/geo"
	"geoattend/internal/metrics"
)

// ── helpers ──

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func fixedToken(tok string) func() (string, error) {
	return func() (string, error) { return tok, nil }
}

func northOf(p geo.Point, meters float64) geo.Point {
	return geo.Point{Latitude: p.Latitude + meters/geo.EarthRadiusMeters*180/math.Pi, Longitude: p.Longitude}
}

func at(p geo.Point) geo.Locator {
	return geo.Reported{Fix: &geo.Fix{Point: p, AccuracyMeters: 12}}
}

type recordingMirror struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, rec Record, token string) error
}

func (m *recordingMirror) Mirror(ctx context.Context, rec Record, token string) error {
	m.mu.Lock()
	m.calls = append(m.calls, token)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, rec, token)
	}
	return nil
}

func setupService(t *testing.T, mirror Mirror, opts ...Option) (*Service, *MemStore, *fakeClock) {
	t.Helper()
	store := NewMemStore()
	clk := newFakeClock()
	opts = append([]Option{WithClock(clk.Now), WithTokenSource(fixedToken("AB12CD"))}, opts...)
	svc := NewService(store, mirror, zap.NewNop(), DefaultConfig(), opts...)
	return svc, store, clk
}

var classroom = geo.Point{Latitude: 40.0, Longitude: -75.0}

func issueGeofenced(t *testing.T, svc *Service) Code {
	t.Helper()
	origin := classroom
	code, err := svc.Issue(context.Background(), IssueRequest{
		IssuerID:     "teacher-1",
		CourseID:     "course-1",
		Origin:       &origin,
		RadiusMeters: 100,
	})
	require.NoError(t, err)
	return code
}

func drain(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Drain(ctx))
}

// ── token ──

func TestGenerateToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, tok, TokenLength)
		assert.True(t, wellFormed(tok), tok)
		seen[tok] = true
	}
	assert.Greater(t, len(seen), 1)
}

// ── issuance ──

func TestIssue_Defaults(t *testing.T) {
	svc, _, clk := setupService(t, nil)
	code, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "teacher-1", CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, "AB12CD", code.Token)
	assert.Equal(t, clk.Now().Add(5*time.Minute), code.ExpiresAt)
	assert.Equal(t, 100.0, code.RadiusMeters)
	assert.False(t, code.Geofenced())

	left, expired := svc.Remaining(code)
	assert.False(t, expired)
	assert.Equal(t, 5*time.Minute, left)

	clk.Advance(5 * time.Minute)
	_, expired = svc.Remaining(code)
	assert.True(t, expired)
}

func TestIssue_RejectsBadInput(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	_, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "teacher-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	bad := geo.Point{Latitude: 95}
	_, err = svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c", Origin: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// ── scenarios ──

func TestScenarioA_LowercaseWithinRangeAccepted(t *testing.T) {
	mirror := &recordingMirror{}
	svc, store, clk := setupService(t, mirror)
	issueGeofenced(t, svc)

	clk.Advance(4 * time.Minute)
	rec, err := svc.Redeem(context.Background(), "ab12cd", CheckInRequest{StudentID: "student-1", Locator: at(classroom), CourseName: "Physics"})
	require.NoError(t, err)

	require.NotNil(t, rec.DistanceMeters)
	assert.InDelta(t, 0, *rec.DistanceMeters, 0.001)
	require.NotNil(t, rec.AccuracyMeters)
	assert.Equal(t, 12.0, *rec.AccuracyMeters)
	assert.Equal(t, "course-1", rec.CourseID)
	assert.Equal(t, 1, store.Count())

	drain(t, svc)
	assert.Equal(t, []string{"AB12CD"}, mirror.calls)
}

func TestScenarioB_FarAwayRejectedWithDistance(t *testing.T) {
	svc, store, _ := setupService(t, nil)
	issueGeofenced(t, svc)

	_, err := svc.Redeem(context.Background(), "AB12CD", CheckInRequest{StudentID: "student-1", Locator: at(northOf(classroom, 500))})
	require.ErrorIs(t, err, ErrOutOfRange)

	var e *Error
	require.True(t, errors.As(err, &e))
	require.NotNil(t, e.Distance)
	assert.InDelta(t, 500, *e.Distance, 1)
	assert.Equal(t, 0, store.Count())
}

func TestScenarioC_ExpiredCodeRejected(t *testing.T) {
	svc, _, clk := setupService(t, nil)
	issueGeofenced(t, svc)

	clk.Advance(6 * time.Minute)
	_, err := svc.Redeem(context.Background(), "AB12CD", CheckInRequest{StudentID: "student-1", Locator: at(classroom)})
	assert.ErrorIs(t, err, ErrNotFoundOrExpired)
}

func TestScenarioD_ConcurrentSubmissionsYieldOneRecord(t *testing.T) {
	svc, store, _ := setupService(t, nil)
	issueGeofenced(t, svc)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		already int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Redeem(context.Background(), "AB12CD", CheckInRequest{StudentID: "student-1", Locator: at(classroom)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrAlreadyMarked):
				already++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, already)
	assert.Equal(t, 1, store.Count())
}

// blindStore never sees an existing record in the pre-check, as when two
// requests race past it.
type blindStore struct{ *MemStore }

func (blindStore) FindRecord(context.Context, string, string) (*Record, error) { return nil, nil }

func TestCheckIn_InsertIsTheUniquenessGuarantee(t *testing.T) {
	mem := NewMemStore()
	clk := newFakeClock()
	svc := NewService(blindStore{mem}, nil, zap.NewNop(), DefaultConfig(), WithClock(clk.Now), WithTokenSource(fixedToken("AB12CD")))
	code, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c"})
	require.NoError(t, err)

	_, err = svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code})
	require.NoError(t, err)
	_, err = svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code})
	assert.ErrorIs(t, err, ErrAlreadyMarked)
	assert.Equal(t, 1, mem.Count())
}

func TestCheckIn_SecondSubmissionAlreadyMarked(t *testing.T) {
	svc, store, _ := setupService(t, nil)
	issueGeofenced(t, svc)

	req := CheckInRequest{StudentID: "student-1", Locator: at(classroom)}
	_, err := svc.Redeem(context.Background(), "AB12CD", req)
	require.NoError(t, err)
	_, err = svc.Redeem(context.Background(), "AB12CD", req)
	assert.ErrorIs(t, err, ErrAlreadyMarked)
	assert.Equal(t, 1, store.Count())

	_, err = svc.Redeem(context.Background(), "AB12CD", CheckInRequest{StudentID: "student-2", Locator: at(classroom)})
	assert.NoError(t, err)
}

// ── geofence ──

func TestCheckIn_GeofenceBoundary(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	origin := geo.Point{}
	code, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c", Origin: &origin, RadiusMeters: 100})
	require.NoError(t, err)

	rec, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "near", Code: code, Locator: at(northOf(origin, 109))})
	require.NoError(t, err)
	assert.InDelta(t, 109, *rec.DistanceMeters, 0.01)

	_, err = svc.CheckIn(context.Background(), CheckInRequest{StudentID: "far", Code: code, Locator: at(northOf(origin, 111))})
	require.ErrorIs(t, err, ErrOutOfRange)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.InDelta(t, 111, *e.Distance, 0.01)
}

func TestCheckIn_InvalidStudentCoordinatesAreOutOfRange(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	code := issueGeofenced(t, svc)

	_, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code, Locator: at(geo.Point{Latitude: math.NaN()})})
	require.ErrorIs(t, err, ErrOutOfRange)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Nil(t, e.Distance)
}

func TestCheckIn_NoOriginSkipsGeofence(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	code, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c"})
	require.NoError(t, err)

	rec, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code, IsLate: true})
	require.NoError(t, err)
	assert.Nil(t, rec.DistanceMeters)
	assert.Nil(t, rec.StudentLocation)
	assert.True(t, rec.IsLate)
}

type stuckLocator struct{}

func (stuckLocator) CurrentLocation(ctx context.Context) (geo.Fix, error) {
	<-ctx.Done()
	return geo.Fix{}, ctx.Err()
}

func TestCheckIn_LocationFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LocationTimeout = 20 * time.Millisecond
	clk := newFakeClock()
	svc := NewService(NewMemStore(), nil, zap.NewNop(), cfg, WithClock(clk.Now), WithTokenSource(fixedToken("AB12CD")))
	code := issueGeofenced(t, svc)

	_, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code})
	assert.ErrorIs(t, err, ErrLocationUnavailable)

	_, err = svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code, Locator: geo.Reported{Failure: "PERMISSION_DENIED"}})
	assert.ErrorIs(t, err, ErrLocationUnavailable)

	_, err = svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code, Locator: stuckLocator{}})
	require.ErrorIs(t, err, ErrLocationTimeout)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.True(t, e.Retryable())
}

// ── validator ──

func TestValidate_RejectsMalformed(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	for _, raw := range []string{"", "ABC", "ABCDEFG", "AB-12C", "  ab12c "} {
		_, err := svc.Validate(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidCode, raw)
	}
}

func TestValidate_TrimsAndPicksNewest(t *testing.T) {
	svc, _, clk := setupService(t, nil)
	_, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "old"})
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "new"})
	require.NoError(t, err)

	code, err := svc.Validate(context.Background(), "  ab12cd\n")
	require.NoError(t, err)
	assert.Equal(t, "new", code.CourseID)
}

func TestValidate_SkewWindowStillRejectsDeadCode(t *testing.T) {
	svc, _, clk := setupService(t, nil)
	_, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c"})
	require.NoError(t, err)

	clk.Advance(5*time.Minute + 10*time.Second)
	_, err = svc.Validate(context.Background(), "AB12CD")
	assert.ErrorIs(t, err, ErrNotFoundOrExpired)

	clk.Advance(-20 * time.Second)
	_, err = svc.Validate(context.Background(), "AB12CD")
	assert.NoError(t, err)
}

func TestValidate_RejectionsAreCounted(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	invalid := metrics.CheckIns.WithLabelValues(string(KindInvalidCode))
	missing := metrics.CheckIns.WithLabelValues(string(KindNotFoundOrExpired))
	invalidBefore, missingBefore := testutil.ToFloat64(invalid), testutil.ToFloat64(missing)

	_, err := svc.Validate(context.Background(), "AB-12C")
	require.ErrorIs(t, err, ErrInvalidCode)
	_, err = svc.Validate(context.Background(), "ZZ99ZZ")
	require.ErrorIs(t, err, ErrNotFoundOrExpired)

	assert.Equal(t, invalidBefore+1, testutil.ToFloat64(invalid))
	assert.Equal(t, missingBefore+1, testutil.ToFloat64(missing))
}

type failingStore struct{ *MemStore }

func (failingStore) LatestCode(context.Context, string, time.Time) (*Code, error) {
	return nil, errors.New("connection refused")
}

func TestValidate_StoreError(t *testing.T) {
	svc := NewService(failingStore{NewMemStore()}, nil, zap.NewNop(), DefaultConfig())
	_, err := svc.Validate(context.Background(), "AB12CD")
	require.ErrorIs(t, err, ErrStore)
	assert.Equal(t, KindStore, KindOf(err))
}

// ── invalidation ──

func TestInvalidate(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	code := issueGeofenced(t, svc)

	_, err := svc.Invalidate(context.Background(), "someone-else", code.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Invalidate(context.Background(), "teacher-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Invalidate(context.Background(), "teacher-1", code.ID)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), code.Token)
	assert.ErrorIs(t, err, ErrNotFoundOrExpired)
}

// ── ledger mirror ──

func TestCheckIn_LedgerFailureDoesNotFailCheckIn(t *testing.T) {
	mirror := &recordingMirror{fn: func(context.Context, Record, string) error {
		return errors.New("rpc unavailable")
	}}
	svc, store, _ := setupService(t, mirror)
	issueGeofenced(t, svc)
	failures := metrics.LedgerSubmissions.WithLabelValues("dispatch_error")
	before := testutil.ToFloat64(failures)

	rec, err := svc.Redeem(context.Background(), "AB12CD", CheckInRequest{StudentID: "s", Locator: at(classroom)})
	require.NoError(t, err)
	drain(t, svc)
	assert.Equal(t, before+1, testutil.ToFloat64(failures))

	stored, err := store.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Empty(t, stored.LedgerTxHash)
	assert.Len(t, mirror.calls, 1)
}

func TestCheckIn_LedgerPanicIsContained(t *testing.T) {
	mirror := &recordingMirror{fn: func(context.Context, Record, string) error {
		panic("boom")
	}}
	svc, _, _ := setupService(t, mirror)
	issueGeofenced(t, svc)
	failures := metrics.LedgerSubmissions.WithLabelValues("dispatch_error")
	before := testutil.ToFloat64(failures)

	_, err := svc.Redeem(context.Background(), "AB12CD", CheckInRequest{StudentID: "s", Locator: at(classroom)})
	require.NoError(t, err)
	drain(t, svc)
	assert.Equal(t, before+1, testutil.ToFloat64(failures))
}

func TestCheckIn_MirrorOutlivesCallerContext(t *testing.T) {
	store := NewMemStore()
	mirror := &recordingMirror{}
	mirror.fn = func(ctx context.Context, rec Record, _ string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return store.SetLedgerTx(ctx, rec.ID, "0xabc")
	}
	clk := newFakeClock()
	svc := NewService(store, mirror, zap.NewNop(), DefaultConfig(), WithClock(clk.Now), WithTokenSource(fixedToken("AB12CD")))
	issueGeofenced(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	rec, err := svc.Redeem(ctx, "AB12CD", CheckInRequest{StudentID: "s", Locator: at(classroom)})
	cancel()
	require.NoError(t, err)
	drain(t, svc)

	stored, err := store.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", stored.LedgerTxHash)
}

// ── records ──

func TestTimeOut(t *testing.T) {
	svc, _, clk := setupService(t, nil)
	code, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c"})
	require.NoError(t, err)
	rec, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code})
	require.NoError(t, err)

	_, err = svc.TimeOut(context.Background(), rec.ID, "other")
	assert.ErrorIs(t, err, ErrForbidden)

	clk.Advance(50 * time.Minute)
	out, err := svc.TimeOut(context.Background(), rec.ID, "s")
	require.NoError(t, err)
	require.NotNil(t, out.TimeOut)
	assert.Equal(t, clk.Now(), *out.TimeOut)

	_, err = svc.TimeOut(context.Background(), rec.ID, "s")
	assert.ErrorIs(t, err, ErrAlreadyTimedOut)
}

func TestStats(t *testing.T) {
	assert.Equal(t, Stats{}, Summarize(nil))

	svc, _, clk := setupService(t, nil)
	code, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c"})
	require.NoError(t, err)
	for i, late := range []bool{false, false, true} {
		clk.Advance(time.Second)
		_, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: string(rune('a' + i)), Code: code, IsLate: late})
		require.NoError(t, err)
	}

	st, err := svc.Stats(context.Background(), RecordFilter{CourseID: "c"})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Present: 2, Late: 1, PresentPct: 67, LatePct: 33}, st)

	recs, err := svc.ListRecords(context.Background(), RecordFilter{CourseID: "c", Limit: 2})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "c", recs[0].StudentID)
}

func TestGetRecord(t *testing.T) {
	svc, _, _ := setupService(t, nil)
	code, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c"})
	require.NoError(t, err)
	rec, err := svc.CheckIn(context.Background(), CheckInRequest{StudentID: "s", Code: code})
	require.NoError(t, err)

	got, err := svc.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "c", got.CourseID)

	_, err = svc.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMonthly(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 9, 0, 0, 0, time.UTC) }
	recs := []Record{
		{CreatedAt: day(2026, time.January, 5)},
		{CreatedAt: day(2026, time.January, 6), IsLate: true},
		{CreatedAt: day(2026, time.March, 2)},
		{CreatedAt: day(2025, time.January, 7)},
	}

	months := Monthly(recs, 2026)
	require.Len(t, months, 12)
	assert.Equal(t, MonthStats{Month: "Jan", Total: 2, Present: 1, Late: 1}, months[0])
	assert.Equal(t, MonthStats{Month: "Feb"}, months[1])
	assert.Equal(t, MonthStats{Month: "Mar", Total: 1, Present: 1}, months[2])
	assert.Equal(t, "Dec", months[11].Month)

	all := Monthly(recs, 0)
	assert.Equal(t, 3, all[0].Total)

	svc, _, clk := setupService(t, nil)
	code, err := svc.Issue(context.Background(), IssueRequest{IssuerID: "t", CourseID: "c"})
	require.NoError(t, err)
	_, err = svc.CheckIn(context.Background(), CheckInRequest{StudentID: "a", Code: code, IsLate: true})
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = svc.CheckIn(context.Background(), CheckInRequest{StudentID: "b", Code: code})
	require.NoError(t, err)

	got, err := svc.Monthly(context.Background(), RecordFilter{CourseID: "c"}, 2026)
	require.NoError(t, err)
	assert.Equal(t, MonthStats{Month: "Mar", Total: 2, Present: 1, Late: 1}, got[2])
	assert.Zero(t, got[3].Total)
}
