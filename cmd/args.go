package cmd

// CommandArgs contains parsed command arguments
type CommandArgs struct {
	// Positional arguments (command-specific)
	Args []string

	// Parsed flags
	Flags map[string]any

	// Raw unparsed arguments (for custom parsing)
	Raw []string
}

// Bool returns the boolean flag name, false when it is unset.
func (ca *CommandArgs) Bool(name string) bool {
	v, _ := ca.Flags[name].(bool)
	return v
}

// Int returns the integer flag name, 0 when it is unset.
func (ca *CommandArgs) Int(name string) int64 {
	v, _ := ca.Flags[name].(int64)
	return v
}

func (ca *CommandArgs) String(name string) string {
	v, _ := ca.Flags[name].(string)
	return v
}

// Arg returns the positional argument at index i or fallback.
func (ca *CommandArgs) Arg(i int, fallback string) string {
	if i < len(ca.Args) {
		return ca.Args[i]
	}
	return fallback
}

// CommandFlagSet defines the expected flags for a command
type CommandFlagSet struct {
	Flags map[string]*CommandFlag
}

// CommandFlag represents a single command-line flag
type CommandFlag struct {
	Name        string `json:"name"`              // e.g., "offset"
	Short       string `json:"short"`             // Single-char shorthand (e.g., "o")
	Type        string `json:"type"`              // "string", "bool", "int"
	Default     any    `json:"default,omitempty"` // Default value
	Required    bool   `json:"required"`          // Must be provided
	Description string `json:"description"`       // Help text
}
