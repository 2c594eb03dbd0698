package config

import (
	"fmt"
	"strings"

	"github.com/fakeyudi/replaymock/internal/logging"
	"github.com/fakeyudi/replaymock/internal/traffic"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e))
	for _, err := range e {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate reports every invalid setting, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	switch c.General.ServerProtocol {
	case traffic.ProtocolClassic, traffic.ProtocolLine:
	default:
		errs = append(errs, ValidationError{
			Field:   "general.server_protocol",
			Value:   c.General.ServerProtocol,
			Message: "must be \"classic\" or \"line\"",
		})
	}
	if !logging.ValidLevel(c.General.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "general.log_level",
			Value:   c.General.LogLevel,
			Message: "must be DEBUG, INFO, WARN or ERROR",
		})
	}
	for _, name := range c.Replay.Exclude {
		if _, err := traffic.ParseKind(name); err != nil {
			errs = append(errs, ValidationError{
				Field:   "replay.exclude",
				Value:   name,
				Message: "must name a traffic kind: " + strings.Join(traffic.KindNames(), ", "),
			})
		}
	}
	for _, name := range c.CommandLine.Intercepts {
		if strings.ContainsRune(name, '/') {
			errs = append(errs, ValidationError{
				Field:   "command_line.intercepts",
				Value:   name,
				Message: "must be a command name, not a path",
			})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
