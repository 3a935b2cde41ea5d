package builtin

import (
	"context"
	"io"

	"github.com/mwantia/unifs/cmd"
)

type RmCommand struct{}

func (*RmCommand) Name() string        { return "rm" }
func (*RmCommand) Description() string { return "Remove files, or whole directories with -r" }
func (*RmCommand) Usage() string       { return "rm [-r] <path>..." }

func (*RmCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"recursive": {Name: "recursive", Short: "r", Type: "bool", Description: "Remove directories and their contents"},
		},
	}
}

// Execute stops at the first path that could not be removed.
func (c *RmCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) == 0 {
		return usageError(c)
	}

	for _, path := range args.Args {
		remove := api.DeleteObject
		if args.Bool("recursive") {
			remove = api.DeleteTree
		}
		if err := remove(ctx, path); err != nil {
			return 1, err
		}
	}
	return 0, nil
}

type MvCommand struct{}

func (*MvCommand) Name() string                  { return "mv" }
func (*MvCommand) Description() string           { return "Rename a file or directory" }
func (*MvCommand) Usage() string                 { return "mv <from> <to>" }
func (*MvCommand) GetFlags() *cmd.CommandFlagSet { return nil }

func (c *MvCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) != 2 {
		return usageError(c)
	}

	return failed(api.RenameObject(ctx, args.Args[0], args.Args[1]))
}

type MkdirCommand struct{}

func (*MkdirCommand) Name() string                  { return "mkdir" }
func (*MkdirCommand) Description() string           { return "Create directories where the backend has real directories" }
func (*MkdirCommand) Usage() string                 { return "mkdir <path>..." }
func (*MkdirCommand) GetFlags() *cmd.CommandFlagSet { return nil }

func (c *MkdirCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) == 0 {
		return usageError(c)
	}

	for _, path := range args.Args {
		if err := api.EnsureDirectory(ctx, path); err != nil {
			return 1, err
		}
	}
	return 0, nil
}
