package builtin

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/mwantia/unifs/cmd"
)

type HelpCommand struct {
	manager *cmd.Manager
}

func (*HelpCommand) Name() string                  { return "help" }
func (*HelpCommand) Description() string           { return "List commands or describe one" }
func (*HelpCommand) Usage() string                 { return "help [command]" }
func (*HelpCommand) GetFlags() *cmd.CommandFlagSet { return nil }

func (c *HelpCommand) Execute(ctx context.Context, api cmd.API, args *cmd.CommandArgs, w io.Writer) (int, error) {
	if len(args.Args) > 1 {
		return usageError(c)
	}

	if len(args.Args) == 1 {
		command, err := c.manager.Get(args.Args[0])
		if err != nil {
			return 2, err
		}

		fmt.Fprintf(w, "%s\n  %s\n", command.Usage(), command.Description())
		if flags := command.GetFlags(); flags != nil {
			for _, flag := range flags.Flags {
				fmt.Fprintf(w, "  -%s, --%s\t%s\n", flag.Short, flag.Name, flag.Description)
			}
		}
		return 0, nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, command := range c.manager.List() {
		fmt.Fprintf(tw, "%s\t%s\n", command.Usage(), command.Description())
	}
	return failed(tw.Flush())
}
