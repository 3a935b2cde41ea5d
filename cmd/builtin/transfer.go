package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/cmd"
	"github.com/mwantia/unifs/data"
)

// GetCommand downloads an object to stdout or into a local file.
type GetCommand struct{}

func (*GetCommand) Name() string {
	return "get"
}

func (*GetCommand) Description() string {
	return "Download a file, optionally starting at a byte offset"
}

func (*GetCommand) Usage() string {
	return "get [--offset N] <path> [local]"
}

func (*GetCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"offset": {Name: "offset", Short: "o", Type: "int", Default: int64(0), Description: "Byte offset to start reading at"},
		},
	}
}

func (c *GetCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) < 1 || len(args.Args) > 2 || args.Int("offset") < 0 {
		return usageError(c)
	}

	path := args.Args[0]
	reader, err := api.ReadObject(ctx, path, backend.ReadOptions{Offset: args.Int("offset")})
	if err != nil {
		return 1, err
	}
	defer reader.Close()

	if len(args.Args) == 1 {
		_, err := io.Copy(w, reader)
		return failed(err)
	}

	target := localTarget(args.Args[1], data.BaseName(data.ToKey(path)))
	file, err := os.Create(target)
	if err != nil {
		return 1, err
	}

	n, err := io.Copy(file, reader)
	if err = errors.Join(err, file.Close()); err != nil {
		return 1, err
	}

	_, err = fmt.Fprintf(w, "%s: %d bytes\n", target, n)
	return failed(err)
}

// localTarget appends name when local names an existing directory.
func localTarget(local, name string) string {
	if strings.HasSuffix(local, string(os.PathSeparator)) {
		return filepath.Join(local, name)
	}
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return filepath.Join(local, name)
	}
	return local
}

// PutCommand uploads a local file.
type PutCommand struct{}

func (*PutCommand) Name() string {
	return "put"
}

func (*PutCommand) Description() string {
	return "Upload a local file, replacing, appending to or patching the target"
}

func (*PutCommand) Usage() string {
	return "put [--append] [--offset N] <local> <path>"
}

func (*PutCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"append": {Name: "append", Short: "a", Type: "bool", Description: "Append to the existing content"},
			"offset": {Name: "offset", Short: "o", Type: "int", Default: int64(0), Description: "Byte offset to write at"},
		},
	}
}

func (c *PutCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) != 2 || args.Int("offset") < 0 {
		return usageError(c)
	}

	file, err := os.Open(args.Args[0])
	if err != nil {
		return 1, err
	}
	defer file.Close()

	session, err := api.WriteObject(ctx, args.Args[1], backend.WriteOptions{
		Append: args.Bool("append"),
		Offset: args.Int("offset"),
	})
	if err != nil {
		return 1, err
	}

	n, err := io.Copy(session, file)
	if err != nil {
		return 1, errors.Join(err, session.CloseWithError(err))
	}
	if err := session.Close(); err != nil {
		return 1, err
	}

	_, err = fmt.Fprintf(w, "%s: %d bytes\n", data.ToAbsolutePath(session.Key()), n)
	return failed(err)
}
