package builtin

import (
	"errors"
	"fmt"

	"github.com/mwantia/unifs/cmd"
)

// Register adds every builtin command to m.
func Register(m *cmd.Manager) error {
	commands := []cmd.Command{
		&PwdCommand{},
		&CdCommand{},
		&LsCommand{},
		&StatCommand{},
		&GetCommand{},
		&PutCommand{},
		&RmCommand{},
		&MvCommand{},
		&MkdirCommand{},
		&UrlCommand{},
		&HelpCommand{manager: m},
	}

	var errs []error
	for _, c := range commands {
		errs = append(errs, m.Register(c))
	}
	return errors.Join(errs...)
}

func usageError(c cmd.Command) (int, error) {
	return 2, fmt.Errorf("%w: usage: %s", cmd.ErrUsage, c.Usage())
}

func failed(err error) (int, error) {
	if err != nil {
		return 1, err
	}
	return 0, nil
}
