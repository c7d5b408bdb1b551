package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
)

func init() { register("help", helpCmd{}) }

// helpCmd prints the command overview or the manual of a single command.
type helpCmd struct{}

func (helpCmd) desc() string  { return "show the command overview, or the manual for one command" }
func (helpCmd) usage() string { return "help [command]" }

func (helpCmd) longdesc() string {
	return "\tWithout arguments help prints the command overview. Given a command name\n" +
		"\tit prints that command's usage, description and flags.\n"
}

func (helpCmd) flags() *flag.FlagSet { return flag.NewFlagSet("help", flag.ContinueOnError) }

func (helpCmd) run(_ context.Context, args []string) error {
	switch len(args) {
	case 0:
		generalHelp(out)
		return nil
	case 1:
	default:
		return fmt.Errorf("help takes at most one command, got %d", len(args))
	}

	cmd, ok := subcommands[args[0]]
	if !ok {
		return fmt.Errorf("no such command %q; run 'chatctl help' for the list", args[0])
	}
	return printManual(out, args[0], cmd)
}

// printManual writes the usage, description and flag table of cmd.
func printManual(w io.Writer, name string, cmd subcommand) error {
	fmt.Fprintf(w, "chatctl %s: %s\n\n", name, cmd.desc())
	fmt.Fprintf(w, "Usage:\n  chatctl %s\n\n", cmd.usage())
	fmt.Fprintf(w, "%s\n", cmd.longdesc())

	var defined []*flag.Flag
	cmd.flags().VisitAll(func(f *flag.Flag) { defined = append(defined, f) })
	if len(defined) == 0 {
		return nil
	}

	fmt.Fprintln(w, "Flags:")
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, f := range defined {
		fmt.Fprintf(tw, "  --%s\t%s\t(default %s)\n", f.Name, f.Usage, f.DefValue)
	}
	return tw.Flush()
}
