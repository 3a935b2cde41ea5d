package cmd

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser parses user-defined arguments into flags
type Parser struct {
	flagSet *CommandFlagSet
	long    map[string]string
	short   map[string]string
}

func NewParser(flagSet *CommandFlagSet) *Parser {
	if flagSet == nil {
		flagSet = &CommandFlagSet{}
	}

	p := &Parser{
		flagSet: flagSet,
		long:    make(map[string]string),
		short:   make(map[string]string),
	}
	for name, flag := range flagSet.Flags {
		p.long[flag.Name] = name
		if flag.Short != "" {
			p.short[flag.Short] = name
		}
	}

	return p
}

// Parse splits raw into flags and positional arguments. Short boolean flags
// may be grouped ("-rl"), values follow as "--name=v", "--name v" or "-nv".
// Everything after "--" is positional.
func (p *Parser) Parse(raw []string) (*CommandArgs, error) {
	args := &CommandArgs{
		Flags: make(map[string]any),
		Raw:   raw,
	}

	for name, flag := range p.flagSet.Flags {
		if flag.Default != nil {
			args.Flags[name] = flag.Default
		}
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		switch {
		case arg == "--":
			args.Args = append(args.Args, raw[i+1:]...)
			i = len(raw)

		case strings.HasPrefix(arg, "--"):
			consumed, err := p.parseLong(args, arg, raw[i+1:])
			if err != nil {
				return nil, err
			}
			i += consumed

		case strings.HasPrefix(arg, "-") && arg != "-":
			consumed, err := p.parseShort(args, arg, raw[i+1:])
			if err != nil {
				return nil, err
			}
			i += consumed

		default:
			args.Args = append(args.Args, arg)
		}
	}

	for name, flag := range p.flagSet.Flags {
		if _, ok := args.Flags[name]; ok || !flag.Required {
			continue
		}
		if flag.Short != "" {
			return nil, fmt.Errorf("required flag: -%s / --%s", flag.Short, flag.Name)
		}
		return nil, fmt.Errorf("required flag: --%s", flag.Name)
	}

	return args, nil
}

func (p *Parser) parseLong(args *CommandArgs, arg string, rest []string) (int, error) {
	key, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
	name, exists := p.long[key]
	if !exists {
		return 0, fmt.Errorf("unknown flag: --%s", key)
	}

	flag := p.flagSet.Flags[name]
	consumed := 0
	switch {
	case flag.Type == "bool" && !hasValue:
		value = "true"
	case hasValue:
	case len(rest) > 0 && !strings.HasPrefix(rest[0], "-"):
		value = rest[0]
		consumed = 1
	default:
		return 0, fmt.Errorf("flag --%s requires a value", key)
	}

	v, err := coerce(value, flag.Type)
	if err != nil {
		return 0, fmt.Errorf("flag --%s: %w", key, err)
	}

	args.Flags[name] = v
	return consumed, nil
}

func (p *Parser) parseShort(args *CommandArgs, arg string, rest []string) (int, error) {
	shorts := arg[1:]

	for j, r := range shorts {
		key := string(r)
		name, exists := p.short[key]
		if !exists {
			return 0, fmt.Errorf("unknown flag: -%s", key)
		}

		flag := p.flagSet.Flags[name]
		if flag.Type == "bool" {
			args.Flags[name] = true
			continue
		}

		value, consumed := shorts[j+len(key):], 0
		if value == "" {
			if len(rest) == 0 || strings.HasPrefix(rest[0], "-") {
				return 0, fmt.Errorf("flag -%s requires a value", key)
			}
			value, consumed = rest[0], 1
		}

		v, err := coerce(value, flag.Type)
		if err != nil {
			return 0, fmt.Errorf("flag -%s: %w", key, err)
		}

		args.Flags[name] = v
		return consumed, nil
	}

	return 0, nil
}

func coerce(value string, typeStr string) (any, error) {
	switch typeStr {
	case "int":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer '%s'", value)
		}
		return v, nil
	case "bool":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean '%s'", value)
		}
		return v, nil
	default:
		return value, nil
	}
}
