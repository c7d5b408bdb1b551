package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"
)

func init() { register("init", &initCmd{}) }

type initCmd struct {
	timeout time.Duration
	keep    bool
}

func (initCmd) desc() string  { return "create the presence schema and clear stale rows" }
func (initCmd) usage() string { return "init [--timeout=DURATION] [--keep]" }

func (initCmd) longdesc() string {
	return `
	Apply any pending presence schema migrations to DATABASE_URL, then delete
	every row left behind by a previous run. Use --keep to migrate without
	clearing.
`[1:]
}

func (cmd *initCmd) flags() *flag.FlagSet {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	flags.DurationVar(&cmd.timeout, "timeout", 5*time.Second, "connection timeout")
	flags.BoolVar(&cmd.keep, "keep", false, "keep existing presence rows")
	return flags
}

func (cmd *initCmd) run(ctx context.Context, _ []string) error {
	store, err := openStore(ctx, cmd.timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Migrate()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "applied %d migration(s)\n", n)

	if cmd.keep {
		return nil
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "cleared presence table")
	return nil
}
