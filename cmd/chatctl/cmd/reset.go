package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"
)

func init() { register("reset", &resetCmd{}) }

type resetCmd struct {
	timeout time.Duration
}

func (resetCmd) desc() string  { return "delete every presence row" }
func (resetCmd) usage() string { return "reset [--timeout=DURATION]" }

func (resetCmd) longdesc() string {
	return `
	Delete every row from chat_users. Run this after an unclean shutdown to
	drop users the server will never see disconnect.
`[1:]
}

func (cmd *resetCmd) flags() *flag.FlagSet {
	flags := flag.NewFlagSet("reset", flag.ContinueOnError)
	flags.DurationVar(&cmd.timeout, "timeout", 5*time.Second, "connection timeout")
	return flags
}

func (cmd *resetCmd) run(ctx context.Context, _ []string) error {
	store, err := openStore(ctx, cmd.timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "cleared presence table")
	return nil
}
