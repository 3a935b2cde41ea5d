package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/unifs/cmd"
)

type PwdCommand struct{}

func (*PwdCommand) Name() string                  { return "pwd" }
func (*PwdCommand) Description() string           { return "Print the working directory" }
func (*PwdCommand) Usage() string                 { return "pwd" }
func (*PwdCommand) GetFlags() *cmd.CommandFlagSet { return nil }

func (c *PwdCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) != 0 {
		return usageError(c)
	}

	_, err := fmt.Fprintln(w, api.CurrentDirectory())
	return failed(err)
}

type CdCommand struct{}

func (*CdCommand) Name() string                  { return "cd" }
func (*CdCommand) Description() string           { return "Change the working directory" }
func (*CdCommand) Usage() string                 { return "cd [path]" }
func (*CdCommand) GetFlags() *cmd.CommandFlagSet { return nil }

// Execute changes to path, or to the root when no path is given.
func (c *CdCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) > 1 {
		return usageError(c)
	}

	return failed(api.ChangeDirectory(ctx, args.Arg(0, "/")))
}
