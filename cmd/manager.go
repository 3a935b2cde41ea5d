package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/mwantia/unifs/log"
)

// ErrUsage marks errors caused by malformed command lines.
var ErrUsage = errors.New("usage error")

// Manager handles command registration, parsing, and execution
type Manager struct {
	mu     sync.RWMutex
	api    API
	cmds   map[string]Command
	logger *log.Logger
}

func NewManager(api API, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}

	return &Manager{
		api:    api,
		cmds:   make(map[string]Command),
		logger: logger.Named("cmd"),
	}
}

// Register registers a command
func (m *Manager) Register(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("command cannot be nil")
	}

	name := cmd.Name()
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cmds[name]; exists {
		return fmt.Errorf("command already registered: %s", name)
	}

	m.cmds[name] = cmd
	return nil
}

// Unregister removes a registered command
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.cmds[name]; !exists {
		return fmt.Errorf("command not found: %s", name)
	}

	delete(m.cmds, name)
	return nil
}

// Get returns a command by name
func (m *Manager) Get(name string) (Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cmd, exists := m.cmds[name]
	if !exists {
		return nil, fmt.Errorf("%w: command not found: %s", ErrUsage, name)
	}

	return cmd, nil
}

// List returns all registered commands sorted by name
func (m *Manager) List() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()

	commands := make([]Command, 0, len(m.cmds))
	for _, cmd := range m.cmds {
		commands = append(commands, cmd)
	}

	slices.SortFunc(commands, func(a, b Command) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return commands
}

// Execute parses and executes a command, writing its output to w.
// The exit code is 2 for usage errors and 1 for failed operations.
func (m *Manager) Execute(ctx context.Context, w io.Writer, args ...string) (int, error) {
	if len(args) == 0 {
		return 2, fmt.Errorf("%w: no command specified", ErrUsage)
	}

	cmd, err := m.Get(args[0])
	if err != nil {
		return 2, err
	}

	parsed, err := NewParser(cmd.GetFlags()).Parse(args[1:])
	if err != nil {
		return 2, fmt.Errorf("%w: %s: %v (usage: %s)", ErrUsage, cmd.Name(), err, cmd.Usage())
	}

	m.logger.Debug("Execute: '%s' with %d argument(s)", cmd.Name(), len(parsed.Args))

	code, err := cmd.Execute(ctx, m.api, parsed, w)
	if err != nil {
		m.logger.Debug("Execute: '%s' failed with code %d: %v", cmd.Name(), code, err)
	}
	return code, err
}

// ExecuteLine splits line into words and executes them. Empty lines and
// lines starting with '#' are ignored.
func (m *Manager) ExecuteLine(ctx context.Context, w io.Writer, line string) (int, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return 0, nil
	}

	args, err := Split(line)
	if err != nil {
		return 2, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	return m.Execute(ctx, w, args...)
}

// Split breaks line into words at unquoted whitespace. Single and double
// quotes group words; a backslash escapes the next rune outside single quotes.
func Split(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inWord = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inWord = r, true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash")
	}
	if inWord {
		words = append(words, current.String())
	}

	return words, nil
}
