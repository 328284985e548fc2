package config

import (
	"fmt"
	"strings"
)

// FieldError describes one configuration problem.
// Missing is true when required value is absent, otherwise value failed Rule.
type FieldError struct {
	Field   string
	Missing bool
	Rule    string
}

func (fe FieldError) String() string {
	if fe.Missing {
		return fe.Field + " missing"
	}
	return fmt.Sprintf("%s invalid (%s)", fe.Field, fe.Rule)
}

// ConfigError is fatal at boot.
type ConfigError struct {
	Fields []FieldError
}

func (e ConfigError) Error() string {
	ss := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		ss[i] = fe.String()
	}
	return "config: " + strings.Join(ss, ", ")
}

func (e ConfigError) MissingFields() []string {
	var names []string
	for _, fe := range e.Fields {
		if fe.Missing {
			names = append(names, fe.Field)
		}
	}
	return names
}
