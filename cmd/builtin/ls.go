package builtin

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mwantia/unifs/cmd"
	"github.com/mwantia/unifs/data"
)

type LsCommand struct{}

// Name returns the command identifier
func (*LsCommand) Name() string {
	return "ls"
}

// Description returns human-readable help text
func (*LsCommand) Description() string {
	return "List directory entries, directories first"
}

// Usage returns a usage string for help
func (*LsCommand) Usage() string {
	return "ls [-l] [path]"
}

// GetFlags returns the flag set for this command
func (*LsCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"long": {Name: "long", Short: "l", Type: "bool", Description: "Show mode, size and modification time"},
		},
	}
}

// Execute lists the working directory when no path is given
func (c *LsCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) > 1 {
		return usageError(c)
	}

	entries, err := api.ListObjects(ctx, args.Arg(0, "."))
	if err != nil {
		return 1, err
	}

	if !args.Bool("long") {
		for _, entry := range entries {
			if _, err := fmt.Fprintln(w, displayName(entry)); err != nil {
				return 1, err
			}
		}
		return 0, nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", entry.Mode, entry.Size, formatTime(entry.ModifyTime), displayName(entry))
	}
	return failed(tw.Flush())
}

func displayName(stat *data.FileStat) string {
	if stat.IsDir() {
		return stat.Name + data.Separator
	}
	return stat.Name
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
