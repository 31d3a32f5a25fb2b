package ytdlp

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Flags owned by the client; extra arguments may not override them.
var reservedFlags = []string{
	"-o", "--output", "-P", "--paths", "-f", "--format",
	"--exec", "--exec-before-download", "-a", "--batch-file", "--config-locations",
}

// SplitArgs splits an operator supplied argument string without a shell.
func SplitArgs(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	return args, nil
}

// ValidateArgs rejects extra arguments that could redirect output, run
// commands or carry shell metacharacters.
func ValidateArgs(args []string) error {
	for _, arg := range args {
		name, _, _ := strings.Cut(arg, "=")
		for _, reserved := range reservedFlags {
			if name == reserved {
				return fmt.Errorf("flag %s is managed by the service", reserved)
			}
		}
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}
	return nil
}

// ParseExtraArgs splits and validates in one step. An empty string yields no args.
func ParseExtraArgs(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, nil
	}
	args, err := SplitArgs(command)
	if err != nil {
		return nil, err
	}
	if err := ValidateArgs(args); err != nil {
		return nil, err
	}
	return args, nil
}
