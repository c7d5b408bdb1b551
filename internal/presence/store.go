//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

package presence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend names accepted by Open.
const (
	BackendNone     = "none"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

var ErrUnknownBackend = errors.New("unknown presence backend")

// Record is one online user as persisted.
type Record struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Store persists presence records.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, userID string) error
	Clear(ctx context.Context) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Options selects and configures a Store backend.
type Options struct {
	Backend     string
	DatabaseURL string
	BadgerPath  string
}

// Open returns the Store named by opts.Backend. The postgres backend is
// migrated before it is returned.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendNone:
		return Nop{}, nil
	case BackendPostgres:
		st, err := OpenPostgres(opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		if _, err := st.Migrate(); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case BackendBadger:
		return OpenBadger(opts.BadgerPath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// Nop discards every write.
type Nop struct{}

func (Nop) Upsert(context.Context, Record) error   { return nil }
func (Nop) Delete(context.Context, string) error   { return nil }
func (Nop) Clear(context.Context) error            { return nil }
func (Nop) List(context.Context) ([]Record, error) { return nil, nil }
func (Nop) Close() error                           { return nil }
