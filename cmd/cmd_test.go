package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
)

type echoCommand struct{}

func (*echoCommand) Name() string        { return "echo" }
func (*echoCommand) Description() string { return "Print the arguments" }
func (*echoCommand) Usage() string       { return "echo [-u] <word>..." }

func (*echoCommand) GetFlags() *CommandFlagSet {
	return &CommandFlagSet{
		Flags: map[string]*CommandFlag{
			"upper": {Name: "upper", Short: "u", Type: "bool"},
		},
	}
}

func (*echoCommand) Execute(ctx context.Context, api API, args *CommandArgs, w io.Writer) (int, error) {
	line := strings.Join(args.Args, " ")
	if args.Bool("upper") {
		line = strings.ToUpper(line)
	}

	_, err := fmt.Fprintln(w, line)
	return 0, err
}
