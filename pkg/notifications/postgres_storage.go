package notifications

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

// Migrations holds the goose migrations for PostgresStorage, under "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the SQL files.
const MigrationsDir = "migrations"

// insertChannel is the LISTEN/NOTIFY channel the insert trigger publishes to.
const insertChannel = "notifications_inserted"

const notificationColumns = `id, recipient_type, recipient_id, title, message,
	COALESCE(order_id, ''), priority, COALESCE(url, ''), read, sent, created_at`

// PostgresStorage stores notifications in PostgreSQL and feeds inserts through
// LISTEN/NOTIFY. Each open stream holds one pooled connection.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// PostgresStorageOption configures a PostgresStorage.
type PostgresStorageOption func(*PostgresStorage)

// WithPostgresLogger sets the logger for the PostgresStorage.
func WithPostgresLogger(l *slog.Logger) PostgresStorageOption {
	return func(s *PostgresStorage) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewPostgresStorage creates a storage over pool. The schema is applied with
// pg.MigrateFS(ctx, pool, Migrations, MigrationsDir, ...).
func NewPostgresStorage(pool *pgxpool.Pool, opts ...PostgresStorageOption) *PostgresStorage {
	s := &PostgresStorage{
		pool:   pool,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *PostgresStorage) Insert(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		return Notification{}, ErrMissingID
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications
			(id, recipient_type, recipient_id, title, message, order_id, priority, url, read, sent, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10, $11)`,
		n.ID, string(n.RecipientType), n.RecipientID, n.Title, n.Message,
		n.OrderID, string(n.Priority.OrDefault()), n.URL, n.Read, n.Sent, n.CreatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return Notification{}, errors.Join(ErrNotificationExists, err)
		}
		return Notification{}, err
	}
	return n, nil
}

func (s *PostgresStorage) Query(ctx context.Context, f Filter) ([]Notification, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.RecipientType != "" {
		where = append(where, "recipient_type = "+arg(string(f.RecipientType)))
	}
	if f.RecipientID != "" {
		where = append(where, "recipient_id = "+arg(f.RecipientID))
	}
	if f.OrderID != "" {
		where = append(where, "order_id = "+arg(f.OrderID))
	}
	if !f.CreatedAfter.IsZero() {
		where = append(where, "created_at > "+arg(f.CreatedAfter))
	}
	if f.OnlyUnread {
		where = append(where, "NOT read")
	}

	var q strings.Builder
	q.WriteString("SELECT " + notificationColumns + " FROM notifications")
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	q.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		q.WriteString(" LIMIT " + arg(f.Limit))
	}
	if f.Offset > 0 {
		q.WriteString(" OFFSET " + arg(f.Offset))
	}

	rows, err := s.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}

	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		return scanNotification(row)
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Notification{}
	}
	return items, nil
}

func (s *PostgresStorage) MarkRead(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = ANY($1) AND NOT read`, ids)
	return err
}

func (s *PostgresStorage) MarkSent(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE notifications SET sent = TRUE WHERE id = ANY($1) AND NOT sent`, ids)
	return err
}

func (s *PostgresStorage) MarkAllRead(ctx context.Context, scope Scope) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE recipient_type = $1 AND ($2 = '' OR recipient_id = $2) AND NOT read`,
		string(scope.RecipientType), scope.RecipientID,
	)
	return err
}

func (s *PostgresStorage) CountUnread(ctx context.Context, scope Scope) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE recipient_type = $1 AND ($2 = '' OR recipient_id = $2) AND NOT read`,
		string(scope.RecipientType), scope.RecipientID,
	).Scan(&count)
	return count, err
}

// Get returns a single notification by id.
func (s *PostgresStorage) Get(ctx context.Context, id string) (Notification, error) {
	n, err := scanNotification(s.pool.QueryRow(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = $1", id))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return Notification{}, ErrNotificationNotFound
		}
		return Notification{}, err
	}
	return n, nil
}

// insertPayload is the JSON body published by the insert trigger.
type insertPayload struct {
	ID            string        `json:"id"`
	RecipientType RecipientType `json:"recipient_type"`
	RecipientID   string        `json:"recipient_id"`
}

// SubscribeToInserts listens on the insert channel using a dedicated pooled
// connection and loads each matching record by id.
func (s *PostgresStorage) SubscribeToInserts(ctx context.Context, scope Scope) (Stream, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{insertChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, err
	}

	pump := func(ctx context.Context, emit func(Notification) bool) error {
		for {
			msg, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			var p insertPayload
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				s.logger.LogAttrs(ctx, slog.LevelWarn, "Skipping malformed insert notification",
					logger.Error(err),
				)
				continue
			}
			if !scope.Matches(Notification{RecipientType: p.RecipientType, RecipientID: p.RecipientID}) {
				continue
			}

			n, err := s.Get(ctx, p.ID)
			if errors.Is(err, ErrNotificationNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if !emit(n.Normalize()) {
				return nil
			}
		}
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
			// A connection in an unknown state must not go back to the pool.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}

	return startFeedStream(ctx, pump, cleanup), nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n             Notification
		recipientType string
		priority      string
	)
	err := row.Scan(
		&n.ID, &recipientType, &n.RecipientID, &n.Title, &n.Message,
		&n.OrderID, &priority, &n.URL, &n.Read, &n.Sent, &n.CreatedAt,
	)
	if err != nil {
		return Notification{}, err
	}
	n.RecipientType = RecipientType(recipientType)
	n.Priority = Priority(priority)
	return n.Normalize(), nil
}
