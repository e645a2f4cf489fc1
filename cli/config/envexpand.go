// Package config loads the ipcpipe.yaml configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches $$, ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// ErrRequiredEnv is returned when a ${VAR:?message} variable is unset or empty.
var ErrRequiredEnv = errors.New("required environment variable not set")

// ExpandEnv replaces environment references in input:
//
//	${VAR}          value of VAR, empty when unset
//	${VAR:-default} value of VAR, default when unset or empty
//	${VAR:?message} value of VAR, an error naming message when unset or empty
//	$$              a literal $
//
// Every missing required variable is reported.
func ExpandEnv(input string) (string, error) {
	var (
		b    strings.Builder
		errs []error
		last int
	)
	for _, m := range envVarPattern.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		if input[m[0]:m[1]] == "$$" {
			b.WriteByte('$')
			continue
		}

		name := input[m[2]:m[3]]
		var op, arg string
		if m[4] >= 0 {
			op = input[m[4]:m[5]]
			arg = input[m[6]:m[7]]
		}

		value := os.Getenv(name)
		switch {
		case value != "":
			b.WriteString(value)
		case op == ":-":
			b.WriteString(arg)
		case op == ":?":
			if arg == "" {
				arg = "not set"
			}
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrRequiredEnv, name, arg))
		}
	}
	b.WriteString(input[last:])
	return b.String(), errors.Join(errs...)
}
