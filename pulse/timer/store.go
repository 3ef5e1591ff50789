package timer

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/notify/db"
	"github.com/teranos/notify/errors"
)

// Store is what the engine and registrar need from persistence
type Store interface {
	// ListDueTimers returns active, idle timers with callback_at <= now,
	// oldest callback first.
	ListDueTimers(ctx context.Context, now time.Time) ([]*Timer, error)
	// GetTimer returns the named timer or an error wrapping errors.ErrNotFound
	GetTimer(ctx context.Context, name string) (*Timer, error)
	// SaveTimer inserts or fully replaces the timer keyed by name
	SaveTimer(ctx context.Context, t *Timer) error
}

// Creator is implemented by stores that can insert without overwriting.
// The registrar prefers it so two processes bootstrapping at once cannot
// clobber each other's timer.
type Creator interface {
	CreateTimer(ctx context.Context, t *Timer) error
}

// SQLStore persists timers in notification_callback_timers
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a store over an already-migrated database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

const timerColumns = `name, callback_at, handler_ref, context, is_active, periodicity_min,
		       executed_at, err_msg, results, created_at, modified_at`

// ListDueTimers returns timers eligible for execution at now
func (s *SQLStore) ListDueTimers(ctx context.Context, now time.Time) ([]*Timer, error) {
	query := `
		SELECT ` + timerColumns + `
		FROM notification_callback_timers
		WHERE is_active = 1
		  AND executed_at IS NULL
		  AND callback_at <= ?
		ORDER BY callback_at ASC, name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, db.FormatTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query due timers")
	}
	defer rows.Close()
	return scanTimers(rows)
}

// ListTimers returns every timer, ordered by name
func (s *SQLStore) ListTimers(ctx context.Context) ([]*Timer, error) {
	query := `
		SELECT ` + timerColumns + `
		FROM notification_callback_timers
		ORDER BY name ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list timers")
	}
	defer rows.Close()
	return scanTimers(rows)
}

// NextTimer returns the active, idle timer with the earliest callback, or nil if none
func (s *SQLStore) NextTimer(ctx context.Context) (*Timer, error) {
	query := `
		SELECT ` + timerColumns + `
		FROM notification_callback_timers
		WHERE is_active = 1 AND executed_at IS NULL
		ORDER BY callback_at ASC, name ASC
		LIMIT 1
	`
	t, err := scanTimer(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next timer")
	}
	return t, nil
}

// GetTimer retrieves a timer by name
func (s *SQLStore) GetTimer(ctx context.Context, name string) (*Timer, error) {
	query := `
		SELECT ` + timerColumns + `
		FROM notification_callback_timers
		WHERE name = ?
	`
	t, err := scanTimer(s.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("timer %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get timer %s", name)
	}
	return t, nil
}

// SaveTimer upserts the timer. Created is kept from the first insert;
// Modified is stamped on every save.
func (s *SQLStore) SaveTimer(ctx context.Context, t *Timer) error {
	args, err := s.timerArgs(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, insertTimerSQL+`
		ON CONFLICT(name) DO UPDATE SET
			callback_at = excluded.callback_at,
			handler_ref = excluded.handler_ref,
			context = excluded.context,
			is_active = excluded.is_active,
			periodicity_min = excluded.periodicity_min,
			executed_at = excluded.executed_at,
			err_msg = excluded.err_msg,
			results = excluded.results,
			modified_at = excluded.modified_at
	`, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to save timer %s", t.Name)
	}
	return nil
}

// CreateTimer inserts a new timer and fails with ErrConflict if the name is taken
func (s *SQLStore) CreateTimer(ctx context.Context, t *Timer) error {
	args, err := s.timerArgs(t)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertTimerSQL, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return errors.Wrapf(errors.ErrConflict, "timer %s already exists", t.Name)
		}
		return errors.Wrapf(err, "failed to create timer %s", t.Name)
	}
	return nil
}

const insertTimerSQL = `
		INSERT INTO notification_callback_timers (
			name, callback_at, handler_ref, context, is_active, periodicity_min,
			executed_at, err_msg, results, created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// timerArgs validates t, stamps its timestamps and returns the insert arguments
func (s *SQLStore) timerArgs(t *Timer) ([]interface{}, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if t.Created.IsZero() {
		t.Created = now
	}
	t.Modified = now

	contextJSON, err := marshalMap(t.Context)
	if err != nil {
		return nil, errors.Wrapf(err, "timer %s: context", t.Name)
	}
	resultsJSON, err := marshalMap(t.Results)
	if err != nil {
		return nil, errors.Wrapf(err, "timer %s: results", t.Name)
	}

	var periodicity interface{}
	if t.PeriodicityMinutes > 0 {
		periodicity = t.PeriodicityMinutes
	}
	var errMsg interface{}
	if t.ErrorMessage != "" {
		errMsg = t.ErrorMessage
	}

	return []interface{}{
		t.Name,
		db.FormatTime(t.CallbackAt),
		t.HandlerRef,
		contextJSON,
		t.IsActive,
		periodicity,
		db.FormatTimePtr(t.ExecutedAt),
		errMsg,
		resultsJSON,
		db.FormatTime(t.Created),
		db.FormatTime(t.Modified),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimers(rows *sql.Rows) ([]*Timer, error) {
	var timers []*Timer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}
		timers = append(timers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate timers")
	}
	return timers, nil
}

func scanTimer(row rowScanner) (*Timer, error) {
	var t Timer
	var callbackAt, createdAt, modifiedAt string
	var contextJSON, executedAt, errMsg, resultsJSON sql.NullString
	var periodicity sql.NullInt64

	err := row.Scan(
		&t.Name,
		&callbackAt,
		&t.HandlerRef,
		&contextJSON,
		&t.IsActive,
		&periodicity,
		&executedAt,
		&errMsg,
		&resultsJSON,
		&createdAt,
		&modifiedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.CallbackAt, err = db.ParseTime(callbackAt); err != nil {
		return nil, err
	}
	if t.Created, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if t.Modified, err = db.ParseTime(modifiedAt); err != nil {
		return nil, err
	}
	if executedAt.Valid {
		at, err := db.ParseTime(executedAt.String)
		if err != nil {
			return nil, err
		}
		t.ExecutedAt = &at
	}
	if periodicity.Valid {
		t.PeriodicityMinutes = int(periodicity.Int64)
	}
	t.ErrorMessage = errMsg.String

	if t.Context, err = unmarshalMap(contextJSON); err != nil {
		return nil, errors.Wrapf(err, "timer %s: context", t.Name)
	}
	if t.Results, err = unmarshalMap(resultsJSON); err != nil {
		return nil, errors.Wrapf(err, "timer %s: results", t.Name)
	}
	return &t, nil
}

func marshalMap(m map[string]any) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalMap(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
