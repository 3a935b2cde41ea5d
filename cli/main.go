package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mwantia/unifs"
	"github.com/mwantia/unifs/cmd"
	"github.com/mwantia/unifs/cmd/builtin"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: unifs [--config file.yaml] <location> [command [args...]]")
	fmt.Fprintln(os.Stderr, "Without a command, commands are read line by line from stdin.")
	fmt.Fprintln(os.Stderr, "Locations:")
	fmt.Fprintln(os.Stderr, "  /local/path")
	fmt.Fprintln(os.Stderr, "  s3://<access>:<secret>@<endpoint>/<bucket>[?region=..&ssl=false]")
	fmt.Fprintln(os.Stderr, "  azure://<account>:<key>@<container>[?endpoint=..]")
	fmt.Fprintln(os.Stderr, "  bunnycdn://<access-key>@<zone>[?region=..]")
	fmt.Fprintln(os.Stderr, "  consul://[token@]<address>[/prefix][?scheme=..&dc=..]")
	fmt.Fprintln(os.Stderr, "  sqlite://<file|:memory:>, postgres://<user>:<pass>@<host>/<db>")
}

func main() {
	flags := flag.NewFlagSet("unifs", flag.ExitOnError)
	flags.Usage = usage
	configPath := flags.String("config", "", "YAML config file (optional)")
	_ = flags.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, *configPath, flags.Args(), os.Stdin, os.Stdout, os.Stderr)
	stop()

	os.Exit(code)
}

func run(ctx context.Context, configPath string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 2
	}

	location := cfg.Location
	if len(args) > 0 {
		location, args = args[0], args[1:]
	}
	if location == "" {
		usage()
		return 2
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to setup logger: %v\n", err)
		return 2
	}

	api, err := unifs.Open(ctx, location, cfg.Options(logger)...)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open location: %v\n", err)
		return 1
	}
	defer func() {
		if err := api.Close(context.Background()); err != nil {
			logger.Warn("Failed to close backend: %v", err)
		}
	}()

	manager := cmd.NewManager(api, logger)
	if err := builtin.Register(manager); err != nil {
		fmt.Fprintf(stderr, "Failed to register commands: %v\n", err)
		return 1
	}

	if len(args) > 0 {
		code, err := manager.Execute(ctx, stdout, args...)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
		}
		return code
	}

	return repl(ctx, manager, stdin, stdout, stderr)
}

// repl executes one command per input line and returns the exit code of
// the last failing command, or 0.
func repl(ctx context.Context, manager *cmd.Manager, stdin io.Reader, stdout, stderr io.Writer) int {
	result := 0

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return 130
		}

		code, err := manager.ExecuteLine(ctx, stdout, scanner.Text())
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		if code != 0 {
			result = code
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(stderr, "Failed to read input: %v\n", err)
		return 1
	}
	return result
}
