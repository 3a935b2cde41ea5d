package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/unifs/cmd"
)

type StatCommand struct{}

func (*StatCommand) Name() string {
	return "stat"
}

func (*StatCommand) Description() string {
	return "Show metadata of a file or directory"
}

func (*StatCommand) Usage() string {
	return "stat [--json] <path>"
}

func (*StatCommand) GetFlags() *cmd.CommandFlagSet {
	return &cmd.CommandFlagSet{
		Flags: map[string]*cmd.CommandFlag{
			"json": {Name: "json", Short: "j", Type: "bool", Description: "Print the record as JSON"},
		},
	}
}

func (c *StatCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) != 1 {
		return usageError(c)
	}

	stat, err := api.StatObject(ctx, args.Args[0])
	if err != nil {
		return 1, err
	}

	if args.Bool("json") {
		buf, err := stat.Marshal()
		if err != nil {
			return 1, err
		}
		_, err = fmt.Fprintf(w, "%s\n", buf)
		return failed(err)
	}

	kind := "file"
	if stat.IsDir() {
		kind = "directory"
	}

	_, err = fmt.Fprintf(w, "  Name: %s\n  Type: %s\n  Mode: %s\n  Size: %d\nModify: %s\nCreate: %s\nAccess: %s\n",
		displayName(stat), kind, stat.Mode, stat.Size,
		formatTime(stat.ModifyTime), formatTime(stat.CreateTime), formatTime(stat.AccessTime))
	if err == nil && stat.ContentType != "" {
		_, err = fmt.Fprintf(w, "  MIME: %s\n", stat.ContentType)
	}
	if err == nil && stat.ETag != "" {
		_, err = fmt.Fprintf(w, "  ETag: %s\n", stat.ETag)
	}
	return failed(err)
}
