// Package cmd implements the chatctl subcommands for administering the
// pairchat presence database.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
)

var (
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
)

type subcommand interface {
	desc() string
	longdesc() string
	usage() string
	flags() *flag.FlagSet
	run(context.Context, []string) error
}

var subcommands = map[string]subcommand{}

func register(name string, cmd subcommand) { subcommands[name] = cmd }

// Run executes the subcommand named by args[0] and returns the process exit
// code.
func Run(args []string) int {
	if len(args) == 0 {
		generalHelp(errOut)
		return 0
	}

	exe := filepath.Base(os.Args[0])
	cmd, ok := subcommands[args[0]]
	if !ok {
		fmt.Fprintf(errOut, "%s: invalid command: %s\n", exe, args[0])
		fmt.Fprintf(errOut, "Run '%s help' for usage.\n", exe)
		return 2
	}

	flags := cmd.flags()
	if err := flags.Parse(args[1:]); err != nil {
		fmt.Fprintf(errOut, "%s %s: %s\n", exe, args[0], err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, flags.Args()); err != nil {
		fmt.Fprintln(errOut, err.Error())
		return 1
	}
	return 0
}

func generalHelp(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
	defer tw.Flush()

	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(tw, "USAGE:\n\t%s <command> [command options] [arguments...]\n\n", exe)

	fmt.Fprintf(tw, "COMMANDS:\n")
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(tw, "\t%s\t%s\n", name, subcommands[name].desc())
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "ENVIRONMENT:\n\tDATABASE_URL\tPostgreSQL connection string (also read from .env)\n\n")
	fmt.Fprintf(tw, "Run \"%s help <command>\" for more details about a command.\n", exe)
}
