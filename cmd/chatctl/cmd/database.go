package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/pairchat/internal/presence"
)

type dbConfig struct {
	DatabaseURL string `env:"DATABASE_URL,required=true"`
}

// openStore connects to DATABASE_URL and verifies the connection.
func openStore(ctx context.Context, timeout time.Duration) (*presence.PostgresStore, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg dbConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	store, err := presence.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connection failed: %s", presence.DescribeError(err))
	}
	return store, nil
}
