package timer

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/notify/db"
	"github.com/teranos/notify/errors"
	notifytest "github.com/teranos/notify/internal/testing"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s := NewSQLStore(notifytest.CreateTestDB(t))
	s.now = fixedClock(scanNow)
	return s
}

func TestSQLStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	executed := scanNow.Add(-time.Minute)
	in := &Timer{
		Name:               "purge-notifications-timer",
		CallbackAt:         time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC),
		HandlerRef:         "callbacks.purge-notifications",
		Context:            map[string]any{"namespace": "course-1"},
		IsActive:           true,
		PeriodicityMinutes: 1440,
		ExecutedAt:         &executed,
		ErrorMessage:       "quota exceeded",
		Results:            map[string]any{"read_purged": 3},
	}
	require.NoError(t, s.SaveTimer(ctx, in))

	got, err := s.GetTimer(ctx, in.Name)
	require.NoError(t, err)
	assert.Equal(t, in.CallbackAt, got.CallbackAt)
	assert.Equal(t, in.HandlerRef, got.HandlerRef)
	assert.Equal(t, "course-1", got.Context["namespace"])
	assert.True(t, got.IsActive)
	assert.Equal(t, 1440, got.PeriodicityMinutes)
	require.NotNil(t, got.ExecutedAt)
	assert.Equal(t, executed, *got.ExecutedAt)
	assert.Equal(t, "quota exceeded", got.ErrorMessage)
	assert.Equal(t, float64(3), got.Results["read_purged"], "numbers come back from JSON as float64")
	assert.Equal(t, scanNow, got.Created)
	assert.Equal(t, scanNow, got.Modified)
}

func TestSQLStoreUpdateKeepsCreated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tm := dueTimer("t", "h", 60)
	require.NoError(t, s.SaveTimer(ctx, tm))

	later := scanNow.Add(time.Hour)
	s.now = fixedClock(later)
	tm.Created = time.Time{}
	tm.IsActive = false
	tm.ErrorMessage = "fatal"
	require.NoError(t, s.SaveTimer(ctx, tm))

	got, err := s.GetTimer(ctx, "t")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, "fatal", got.ErrorMessage)
	assert.Equal(t, scanNow, got.Created, "created survives an upsert")
	assert.Equal(t, later, got.Modified)
}

func TestSQLStoreCreateTimerConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateTimer(ctx, dueTimer("t", "h", 60)))

	dup := dueTimer("t", "other", 5)
	err := s.CreateTimer(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	got, err := s.GetTimer(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "h", got.HandlerRef, "create never overwrites")
}

func TestSQLStoreGetNotFound(t *testing.T) {
	_, err := newTestStore(t).GetTimer(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSQLStoreRejectsInvalid(t *testing.T) {
	err := newTestStore(t).SaveTimer(context.Background(), &Timer{Name: "x"})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestSQLStoreListDueTimers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	executed := scanNow

	timers := []*Timer{
		{Name: "b-due", HandlerRef: "h", IsActive: true, CallbackAt: scanNow.Add(-time.Hour)},
		{Name: "a-due", HandlerRef: "h", IsActive: true, CallbackAt: scanNow.Add(-time.Hour)},
		{Name: "oldest", HandlerRef: "h", IsActive: true, CallbackAt: scanNow.Add(-48 * time.Hour)},
		{Name: "exactly-now", HandlerRef: "h", IsActive: true, CallbackAt: scanNow},
		{Name: "future", HandlerRef: "h", IsActive: true, CallbackAt: scanNow.Add(time.Nanosecond)},
		{Name: "inactive", HandlerRef: "h", IsActive: false, CallbackAt: scanNow.Add(-time.Hour)},
		{Name: "in-flight", HandlerRef: "h", IsActive: true, CallbackAt: scanNow.Add(-time.Hour), ExecutedAt: &executed},
	}
	for _, tm := range timers {
		require.NoError(t, s.SaveTimer(ctx, tm))
	}

	due, err := s.ListDueTimers(ctx, scanNow)
	require.NoError(t, err)

	var names []string
	for _, tm := range due {
		names = append(names, tm.Name)
	}
	assert.Equal(t, []string{"oldest", "a-due", "b-due", "exactly-now"}, names)

	next, err := s.NextTimer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "oldest", next.Name)

	all, err := s.ListTimers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(timers))
}

func TestSQLStoreNextTimerEmpty(t *testing.T) {
	next, err := newTestStore(t).NextTimer(context.Background())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestSQLStoreDrivesEngine(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveTimer(ctx, dueTimer("T1", "ok", 120)))
	require.NoError(t, s.SaveTimer(ctx, dueTimer("T2", "missing", 60)))

	reg := NewRegistry()
	reg.Register("ok", succeed(map[string]any{"ok": true}))

	report, err := newTestEngine(t, s, reg).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(OutcomeRescheduled))
	assert.Equal(t, 1, report.Count(OutcomeHardFailure))

	t1, err := s.GetTimer(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, scanNow.Add(time.Hour), t1.CallbackAt)
	assert.Nil(t, t1.ExecutedAt)

	t2, err := s.GetTimer(ctx, "T2")
	require.NoError(t, err)
	assert.False(t, t2.IsActive)
	assert.NotNil(t, t2.ExecutedAt)

	due, err := s.ListDueTimers(ctx, scanNow)
	require.NoError(t, err)
	assert.Empty(t, due)
}

// sqlmock tests pin the SQL contract and the error paths

func TestSQLStoreListDueTimers_Sqlmock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	s := NewSQLStore(conn)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = 1")+`(?s).*executed_at IS NULL.*callback_at <= \?.*ORDER BY callback_at ASC, name ASC`).
		WithArgs(db.FormatTime(scanNow)).
		WillReturnRows(sqlmock.NewRows([]string{
			"name", "callback_at", "handler_ref", "context", "is_active", "periodicity_min",
			"executed_at", "err_msg", "results", "created_at", "modified_at",
		}).AddRow(
			"t", db.FormatTime(scanNow), "h", `{"k":"v"}`, true, 60,
			nil, nil, nil, db.FormatTime(scanNow), db.FormatTime(scanNow),
		))

	due, err := s.ListDueTimers(context.Background(), scanNow)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "v", due[0].Context["k"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreErrors_Sqlmock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	s := NewSQLStore(conn)
	ctx := context.Background()

	mock.ExpectQuery("FROM notification_callback_timers").WillReturnError(sql.ErrConnDone)
	_, err = s.ListDueTimers(ctx, scanNow)
	assert.ErrorIs(t, err, sql.ErrConnDone)

	mock.ExpectQuery("WHERE name = ?").WithArgs("t").WillReturnError(sql.ErrConnDone)
	_, err = s.GetTimer(ctx, "t")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, errors.IsNotFoundError(err))

	mock.ExpectExec("INSERT INTO notification_callback_timers").WillReturnError(sql.ErrTxDone)
	err = s.SaveTimer(ctx, dueTimer("t", "h", 60))
	assert.ErrorIs(t, err, sql.ErrTxDone)
	assert.Contains(t, err.Error(), "failed to save timer t")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCorruptRow_Sqlmock(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("WHERE name = ?").WillReturnRows(sqlmock.NewRows([]string{
		"name", "callback_at", "handler_ref", "context", "is_active", "periodicity_min",
		"executed_at", "err_msg", "results", "created_at", "modified_at",
	}).AddRow("t", "yesterday", "h", nil, true, nil, nil, nil, nil, db.FormatTime(scanNow), db.FormatTime(scanNow)))

	_, err = NewSQLStore(conn).GetTimer(context.Background(), "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timestamp")
}
