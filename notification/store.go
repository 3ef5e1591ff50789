package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/notify/db"
	"github.com/teranos/notify/errors"
	"github.com/teranos/notify/logger"
)

// DefaultMaxListSize caps list queries when the caller does not configure one
const DefaultMaxListSize = 100

// Store persists notification types, messages and user notifications in SQLite
type Store struct {
	db          *sql.DB
	maxListSize int
	archive     bool
	now         func() time.Time
	log         *zap.SugaredLogger
}

// StoreConfig configures a Store
type StoreConfig struct {
	MaxListSize    int  // 0 = DefaultMaxListSize
	ArchiveEnabled bool // copy purged user notifications to the archive table
}

// NewStore creates a store over an already-migrated database
func NewStore(conn *sql.DB, cfg StoreConfig, log *zap.SugaredLogger) *Store {
	if cfg.MaxListSize <= 0 {
		cfg.MaxListSize = DefaultMaxListSize
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{
		db:          conn,
		maxListSize: cfg.MaxListSize,
		archive:     cfg.ArchiveEnabled,
		now:         time.Now,
		log:         logger.AddNotifySymbol(log),
	}
}

// SaveType creates or updates a notification type
func (s *Store) SaveType(ctx context.Context, t *Type) error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.NewInvalidRequestError("notification type name is required")
	}
	if strings.TrimSpace(t.Renderer) == "" {
		return errors.NewInvalidRequestError("notification type %s: renderer is required", t.Name)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_types (name, renderer) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET renderer = excluded.renderer
	`, t.Name, t.Renderer)
	if err != nil {
		return errors.Wrapf(err, "failed to save notification type %s", t.Name)
	}
	return nil
}

// GetType retrieves a notification type by name
func (s *Store) GetType(ctx context.Context, name string) (*Type, error) {
	var t Type
	err := s.db.QueryRowContext(ctx,
		`SELECT name, renderer FROM notification_types WHERE name = ?`, name,
	).Scan(&t.Name, &t.Renderer)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("notification type %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get notification type %s", name)
	}
	return &t, nil
}

// ListTypes returns every notification type, ordered by name
func (s *Store) ListTypes(ctx context.Context) ([]*Type, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, renderer FROM notification_types ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list notification types")
	}
	defer rows.Close()

	var types []*Type
	for rows.Next() {
		var t Type
		if err := rows.Scan(&t.Name, &t.Renderer); err != nil {
			return nil, errors.Wrap(err, "failed to scan notification type")
		}
		types = append(types, &t)
	}
	return types, errors.Wrap(rows.Err(), "failed to iterate notification types")
}

// SaveMessage creates the message, assigning an ID if it has none, or
// updates it if the ID already exists. The message type must exist.
func (s *Store) SaveMessage(ctx context.Context, m *Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if _, err := s.GetType(ctx, m.Type); err != nil {
		if errors.IsNotFoundError(err) {
			return errors.NewInvalidRequestError("message type %s is not registered", m.Type)
		}
		return err
	}

	now := s.now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Created.IsZero() {
		m.Created = now
	}
	m.Modified = now

	payload, err := json.Marshal(nonNilMap(m.Payload))
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "payload is not serialisable: %v", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_messages (
			id, namespace, msg_type, from_user_id, payload,
			deliver_no_earlier_than, expires_at, expires_secs_after_read, priority,
			created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			namespace = excluded.namespace,
			msg_type = excluded.msg_type,
			from_user_id = excluded.from_user_id,
			payload = excluded.payload,
			deliver_no_earlier_than = excluded.deliver_no_earlier_than,
			expires_at = excluded.expires_at,
			expires_secs_after_read = excluded.expires_secs_after_read,
			priority = excluded.priority,
			modified_at = excluded.modified_at
	`,
		m.ID,
		nullString(m.Namespace),
		m.Type,
		m.FromUserID,
		string(payload),
		db.FormatTimePtr(m.DeliverNoEarlierThan),
		db.FormatTimePtr(m.ExpiresAt),
		m.ExpiresSecsAfterRead,
		int(m.Priority),
		db.FormatTime(m.Created),
		db.FormatTime(m.Modified),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save message %s", m.ID)
	}
	return nil
}

const messageColumns = `m.id, m.namespace, m.msg_type, m.from_user_id, m.payload,
		       m.deliver_no_earlier_than, m.expires_at, m.expires_secs_after_read, m.priority,
		       m.created_at, m.modified_at`

// GetMessage retrieves a message by ID
func (s *Store) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM notification_messages m WHERE m.id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("message %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get message %s", id)
	}
	return m, nil
}

// Publish delivers a stored message to each user. Users who already have
// the message are skipped. Returns how many user notifications were created.
func (s *Store) Publish(ctx context.Context, msgID string, userIDs []int64) (int, error) {
	if _, err := s.GetMessage(ctx, msgID); err != nil {
		return 0, err
	}
	if len(userIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin publish")
	}
	defer tx.Rollback()

	now := db.FormatTime(s.now())
	created := 0
	for start := 0; start < len(userIDs); start += PublishChunkSize {
		end := min(start+PublishChunkSize, len(userIDs))
		chunk := userIDs[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*5)
		for i, userID := range chunk {
			placeholders[i] = "(?, ?, ?, ?, ?)"
			args = append(args, uuid.NewString(), userID, msgID, now, now)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO user_notifications (id, user_id, msg_id, created_at, modified_at)
			VALUES `+strings.Join(placeholders, ", "), args...)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to publish message %s", msgID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "failed to count published rows")
		}
		created += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit publish")
	}

	s.log.Infow("Message published",
		logger.FieldMessageID, msgID,
		"recipients", len(userIDs),
		"created", created)
	return created, nil
}

const userNotificationColumns = `un.id, un.user_id, un.read_at, un.user_context, un.created_at, un.modified_at, ` + messageColumns

// GetUserNotification retrieves one user's copy of a message
func (s *Store) GetUserNotification(ctx context.Context, userID int64, msgID string) (*UserNotification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userNotificationColumns+`
		FROM user_notifications un
		JOIN notification_messages m ON m.id = un.msg_id
		WHERE un.user_id = ? AND un.msg_id = ?
	`, userID, msgID)
	un, err := scanUserNotification(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("notification %s for user %d", msgID, userID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get notification %s for user %d", msgID, userID)
	}
	return un, nil
}

// visibleWhere builds the WHERE clause shared by list and count: messages
// not yet deliverable or already expired are hidden.
func (s *Store) visibleWhere(userID int64, f Filters) (string, []interface{}) {
	now := db.FormatTime(s.now())
	clauses := []string{
		"un.user_id = ?",
		"(m.deliver_no_earlier_than IS NULL OR m.deliver_no_earlier_than <= ?)",
		"(m.expires_at IS NULL OR m.expires_at > ?)",
	}
	args := []interface{}{userID, now, now}

	if f.Read != nil {
		if *f.Read {
			clauses = append(clauses, "un.read_at IS NOT NULL")
		} else {
			clauses = append(clauses, "un.read_at IS NULL")
		}
	}
	if f.Namespace != "" {
		clauses = append(clauses, "m.namespace = ?")
		args = append(args, f.Namespace)
	}
	if f.Type != "" {
		clauses = append(clauses, "m.msg_type = ?")
		args = append(args, f.Type)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ListUserNotifications returns a user's visible notifications, newest first
func (s *Store) ListUserNotifications(ctx context.Context, userID int64, f Filters) ([]*UserNotification, error) {
	limit := f.Limit
	if limit <= 0 || limit > s.maxListSize {
		limit = s.maxListSize
	}
	offset := max(f.Offset, 0)

	where, args := s.visibleWhere(userID, f)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userNotificationColumns+`
		FROM user_notifications un
		JOIN notification_messages m ON m.id = un.msg_id
		`+where+`
		ORDER BY un.created_at DESC, m.priority DESC, un.id
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list notifications for user %d", userID)
	}
	defer rows.Close()

	var out []*UserNotification
	for rows.Next() {
		un, err := scanUserNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user notification")
		}
		out = append(out, un)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate user notifications")
	}
	return out, nil
}

// CountUserNotifications counts a user's visible notifications. Limit and
// Offset in f are ignored.
func (s *Store) CountUserNotifications(ctx context.Context, userID int64, f Filters) (int, error) {
	where, args := s.visibleWhere(userID, f)
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM user_notifications un
		JOIN notification_messages m ON m.id = un.msg_id
		`+where, args...).Scan(&n)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count notifications for user %d", userID)
	}
	return n, nil
}

// MarkRead sets or clears the read mark on one user notification
func (s *Store) MarkRead(ctx context.Context, userID int64, msgID string, read bool) error {
	now := db.FormatTime(s.now())
	var readAt interface{}
	if read {
		readAt = now
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_notifications SET read_at = ?, modified_at = ?
		WHERE user_id = ? AND msg_id = ?
	`, readAt, now, userID, msgID)
	if err != nil {
		return errors.Wrapf(err, "failed to mark notification %s for user %d", msgID, userID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check mark result")
	}
	if n == 0 {
		return errors.NewNotFoundError("notification %s for user %d", msgID, userID)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read,
// optionally only within namespace. Returns how many were marked.
func (s *Store) MarkAllRead(ctx context.Context, userID int64, namespace string) (int, error) {
	now := db.FormatTime(s.now())
	query := `
		UPDATE user_notifications SET read_at = ?, modified_at = ?
		WHERE user_id = ? AND read_at IS NULL`
	args := []interface{}{now, now, userID}
	if namespace != "" {
		query += ` AND msg_id IN (SELECT id FROM notification_messages WHERE namespace = ?)`
		args = append(args, namespace)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to mark all read for user %d", userID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to check mark result")
	}
	return int(n), nil
}

// PurgeExpired removes messages past expires_at (their user rows go with
// them) and user notifications whose read-expiry has elapsed. Returns the
// number of user notifications removed.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	at := db.FormatTime(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin expiry purge")
	}
	defer tx.Rollback()

	expiredUsers := `
		SELECT un.id FROM user_notifications un
		JOIN notification_messages m ON m.id = un.msg_id
		WHERE (m.expires_at IS NOT NULL AND m.expires_at <= ?)
		   OR (un.read_at IS NOT NULL
		       AND m.expires_secs_after_read IS NOT NULL
		       AND julianday(un.read_at) + m.expires_secs_after_read / 86400.0 <= julianday(?))`

	if s.archive {
		if err := archiveWhere(ctx, tx, "id IN ("+expiredUsers+")", at, at, at); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM user_notifications WHERE id IN (`+expiredUsers+`)`, at, at)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge expired user notifications")
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count purged rows")
	}

	msgs, err := tx.ExecContext(ctx, `DELETE FROM notification_messages WHERE expires_at IS NOT NULL AND expires_at <= ?`, at)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge expired messages")
	}
	msgCount, err := msgs.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count purged messages")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit expiry purge")
	}

	s.log.Infow("Expired notifications purged",
		logger.FieldCount, purged,
		"messages", msgCount,
		"archived", s.archive)
	return purged, nil
}

// PurgeOlderThan removes read (or unread) user notifications created before cutoff
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time, read bool) (int64, error) {
	cond := "created_at < ? AND read_at IS NULL"
	if read {
		cond = "created_at < ? AND read_at IS NOT NULL"
	}
	at := db.FormatTime(cutoff)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin purge")
	}
	defer tx.Rollback()

	if s.archive {
		if err := archiveWhere(ctx, tx, cond, db.FormatTime(s.now()), at); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM user_notifications WHERE `+cond, at)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge old user notifications")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count purged rows")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit purge")
	}

	s.log.Infow("Old notifications purged",
		logger.FieldCount, n,
		"read", read,
		"cutoff", cutoff)
	return n, nil
}

// archiveWhere copies matching user notifications into the archive table.
// The first arg is archived_at; the rest bind cond.
func archiveWhere(ctx context.Context, tx *sql.Tx, cond string, args ...interface{}) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_notifications_archive
			(id, user_id, msg_id, read_at, user_context, created_at, modified_at, archived_at)
		SELECT id, user_id, msg_id, read_at, user_context, created_at, modified_at, ?
		FROM user_notifications
		WHERE `+cond, args...)
	if err != nil {
		return errors.Wrap(err, "failed to archive user notifications")
	}
	return nil
}

// CountArchived returns how many user notifications have been archived
func (s *Store) CountArchived(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_notifications_archive`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count archived notifications")
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var namespace, deliverAt, expiresAt sql.NullString
	var fromUser, expiresAfterRead sql.NullInt64
	var payload, createdAt, modifiedAt string
	var priority int

	if err := row.Scan(
		&m.ID, &namespace, &m.Type, &fromUser, &payload,
		&deliverAt, &expiresAt, &expiresAfterRead, &priority,
		&createdAt, &modifiedAt,
	); err != nil {
		return nil, err
	}
	if err := fillMessage(&m, namespace, fromUser, payload, deliverAt, expiresAt, expiresAfterRead, priority, createdAt, modifiedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanUserNotification(row rowScanner) (*UserNotification, error) {
	var un UserNotification
	var m Message
	var readAt, userContext sql.NullString
	var unCreated, unModified string

	var namespace, deliverAt, expiresAt sql.NullString
	var fromUser, expiresAfterRead sql.NullInt64
	var payload, createdAt, modifiedAt string
	var priority int

	if err := row.Scan(
		&un.ID, &un.UserID, &readAt, &userContext, &unCreated, &unModified,
		&m.ID, &namespace, &m.Type, &fromUser, &payload,
		&deliverAt, &expiresAt, &expiresAfterRead, &priority,
		&createdAt, &modifiedAt,
	); err != nil {
		return nil, err
	}
	if err := fillMessage(&m, namespace, fromUser, payload, deliverAt, expiresAt, expiresAfterRead, priority, createdAt, modifiedAt); err != nil {
		return nil, err
	}
	un.Message = &m

	var err error
	if un.ReadAt, err = parseNullTime(readAt); err != nil {
		return nil, err
	}
	if userContext.Valid && userContext.String != "" {
		if err := json.Unmarshal([]byte(userContext.String), &un.UserContext); err != nil {
			return nil, errors.Wrap(err, "invalid user_context")
		}
	}
	if un.Created, err = db.ParseTime(unCreated); err != nil {
		return nil, err
	}
	if un.Modified, err = db.ParseTime(unModified); err != nil {
		return nil, err
	}
	return &un, nil
}

func fillMessage(m *Message, namespace sql.NullString, fromUser sql.NullInt64, payload string,
	deliverAt, expiresAt sql.NullString, expiresAfterRead sql.NullInt64, priority int, createdAt, modifiedAt string) error {
	var err error
	m.Namespace = namespace.String
	if fromUser.Valid {
		id := fromUser.Int64
		m.FromUserID = &id
	}
	if expiresAfterRead.Valid {
		secs := int(expiresAfterRead.Int64)
		m.ExpiresSecsAfterRead = &secs
	}
	m.Priority = Priority(priority)
	if err := json.Unmarshal([]byte(payload), &m.Payload); err != nil {
		return errors.Wrapf(err, "message %s: invalid payload", m.ID)
	}
	if m.DeliverNoEarlierThan, err = parseNullTime(deliverAt); err != nil {
		return err
	}
	if m.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return err
	}
	if m.Created, err = db.ParseTime(createdAt); err != nil {
		return err
	}
	if m.Modified, err = db.ParseTime(modifiedAt); err != nil {
		return err
	}
	return nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := db.ParseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
