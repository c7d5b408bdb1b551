package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Tyrowin/pairchat/internal/presence"
)

func init() { register("list", &listCmd{}) }

type listCmd struct {
	timeout time.Duration
	asJSON  bool
}

func (listCmd) desc() string  { return "print the users recorded as online" }
func (listCmd) usage() string { return "list [--timeout=DURATION] [--json]" }

func (listCmd) longdesc() string {
	return `
	Print every chat_users row ordered by connection time.
`[1:]
}

func (cmd *listCmd) flags() *flag.FlagSet {
	flags := flag.NewFlagSet("list", flag.ContinueOnError)
	flags.DurationVar(&cmd.timeout, "timeout", 5*time.Second, "connection timeout")
	flags.BoolVar(&cmd.asJSON, "json", false, "print rows as JSON")
	return flags
}

func (cmd *listCmd) run(ctx context.Context, _ []string) error {
	store, err := openStore(ctx, cmd.timeout)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.List(ctx)
	if err != nil {
		return err
	}
	return printRecords(recs, cmd.asJSON)
}

func printRecords(recs []presence.Record, asJSON bool) error {
	if asJSON {
		if recs == nil {
			recs = []presence.Record{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	tw := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tNAME\tCONNECTED AT")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", rec.UserID, rec.Name, rec.ConnectedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
