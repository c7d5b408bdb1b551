package presence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	upsertQuery = `INSERT INTO chat_users (user_id, name, connected_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, connected_at = EXCLUDED.connected_at`
	deleteQuery = `DELETE FROM chat_users WHERE user_id = $1`
	clearQuery  = `DELETE FROM chat_users`
	listQuery   = `SELECT user_id, name, connected_at FROM chat_users ORDER BY connected_at, user_id`
	tableQuery  = `SELECT EXISTS (
	SELECT FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = 'chat_users'
)`
)

// Migrations returns the chat_users schema.
func Migrations() *migrate.MemoryMigrationSource {
	return &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "0001_chat_users",
				Up: []string{`CREATE TABLE IF NOT EXISTS chat_users (
	user_id VARCHAR(255) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	connected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`},
				Down: []string{`DROP TABLE IF EXISTS chat_users`},
			},
			{
				Id:   "0002_chat_users_connected_at",
				Up:   []string{`CREATE INDEX IF NOT EXISTS idx_chat_users_connected_at ON chat_users(connected_at)`},
				Down: []string{`DROP INDEX IF EXISTS idx_chat_users_connected_at`},
			},
		},
	}
}

// PostgresStore keeps presence in the chat_users table.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a connection pool for dsn. No connection is made until
// first use.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("presence: empty database url")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("presence: open postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies pending schema migrations and returns how many ran.
func (s *PostgresStore) Migrate() (int, error) {
	n, err := migrate.Exec(s.db, "postgres", Migrations(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("presence: migrate: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("presence: ping: %s", DescribeError(err))
	}
	return nil
}

// DatabaseName reports the database the pool is connected to.
func (s *PostgresStore) DatabaseName(ctx context.Context) (string, error) {
	var name string
	if err := s.db.QueryRowContext(ctx, `SELECT current_database()`).Scan(&name); err != nil {
		return "", fmt.Errorf("presence: current database: %w", err)
	}
	return name, nil
}

// TableExists reports whether chat_users has been created.
func (s *PostgresStore) TableExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, tableQuery).Scan(&exists); err != nil {
		return false, fmt.Errorf("presence: table lookup: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, rec.UserID, rec.Name, rec.ConnectedAt.UTC()); err != nil {
		return fmt.Errorf("presence: upsert %s: %w", rec.UserID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, deleteQuery, userID); err != nil {
		return fmt.Errorf("presence: delete %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, clearQuery); err != nil {
		return fmt.Errorf("presence: clear: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("presence: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.UserID, &rec.Name, &rec.ConnectedAt); err != nil {
			return nil, fmt.Errorf("presence: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DescribeError turns common connection failures into operator hints.
func DescribeError(err error) string {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err.Error()
	}
	switch pqErr.Code.Name() {
	case "invalid_catalog_name":
		return "database does not exist; create it first"
	case "invalid_password", "invalid_authorization_specification":
		return "invalid database credentials; check DATABASE_URL"
	default:
		return fmt.Sprintf("%s (%s)", pqErr.Message, pqErr.Code.Name())
	}
}
