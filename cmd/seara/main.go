package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	_ "time/tzdata"

	"seara/internal/cli"
	applog "seara/internal/log"
)

const shutdownTimeout = 10 * time.Second

// invocation is the parsed command line: global flags, command name and the
// command's own arguments.
type invocation struct {
	identity cli.Identity
	command  string
	args     []string
}

func main() {
	inv, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, os.Stderr)
	inv.identity.ClientID = cfg.GoogleClientID

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)

	a, err := newApp(ctx, cfg, logger, os.Stdout, inv.identity)
	if err != nil {
		logger.LogError(ctx, "Failed to start", err, applog.OpStartup, nil)
		os.Exit(1)
	}
	err = a.run(ctx, inv.command, inv.args)
	a.close()

	if ctx.Err() != nil {
		<-done
	}
	if err != nil {
		logger.LogError(ctx, "Command failed", err, inv.command, nil)
		os.Exit(1)
	}
}

func parseArgs(args []string, stderr io.Writer) (invocation, error) {
	var inv invocation
	global := flag.NewFlagSet("seara", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.StringVar(&inv.identity.UserID, "user", "", "user id to act as")
	global.StringVar(&inv.identity.IDToken, "id-token", "", "Google ID token to sign in with")
	global.Usage = func() { usage(stderr, global) }

	if err := global.Parse(args); err != nil {
		return inv, err
	}
	if global.NArg() == 0 {
		global.Usage()
		return inv, errors.New("missing command")
	}
	inv.command, inv.args = global.Arg(0), global.Args()[1:]
	if _, ok := commands[inv.command]; !ok {
		return inv, fmt.Errorf("unknown command %q", inv.command)
	}
	return inv, nil
}

func usage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(w, "usage: seara [--user ID | --id-token TOKEN] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-11s %s\n", name, commands[name].help)
	}
	fmt.Fprintln(w)
	global.PrintDefaults()
}
