package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/cmd"
	"github.com/mwantia/unifs/data"
)

type UrlCommand struct{}

func (*UrlCommand) Name() string {
	return "url"
}

func (*UrlCommand) Description() string {
	return "Print a time-limited download URL for a file"
}

func (*UrlCommand) Usage() string {
	return "url <path>"
}

func (*UrlCommand) GetFlags() *cmd.CommandFlagSet {
	return nil
}

func (c *UrlCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) != 1 {
		return usageError(c)
	}

	url, ok, err := backend.SignedURL(ctx, api, args.Args[0])
	if !ok {
		return 1, data.Unsupported("url", args.Args[0], fmt.Sprintf("%s backend cannot sign URLs", api.Name()))
	}
	if err != nil {
		return 1, err
	}

	_, err = fmt.Fprintln(w, url)
	return failed(err)
}
