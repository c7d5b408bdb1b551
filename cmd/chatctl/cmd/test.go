package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"
)

func init() { register("test", &testCmd{}) }

type testCmd struct {
	timeout time.Duration
}

func (testCmd) desc() string  { return "check the database connection and schema" }
func (testCmd) usage() string { return "test [--timeout=DURATION]" }

func (testCmd) longdesc() string {
	return `
	Connect to DATABASE_URL, print the current database name and report
	whether the chat_users table exists.
`[1:]
}

func (cmd *testCmd) flags() *flag.FlagSet {
	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	flags.DurationVar(&cmd.timeout, "timeout", 5*time.Second, "connection timeout")
	return flags
}

func (cmd *testCmd) run(ctx context.Context, _ []string) error {
	store, err := openStore(ctx, cmd.timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	name, err := store.DatabaseName(ctx)
	if err != nil {
		return err
	}
	exists, err := store.TableExists(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "connected to database %q\n", name)
	if exists {
		fmt.Fprintln(out, "chat_users table exists")
	} else {
		fmt.Fprintln(out, "chat_users table missing; run init")
	}
	return nil
}
