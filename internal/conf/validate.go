package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/tphakala/lanemix/internal/errors"
	"github.com/tphakala/lanemix/internal/logging"
)

// ValidationError collects every problem found in a Settings value.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings checks the whole configuration and reports all problems
// at once.
func ValidateSettings(s *Settings) error {
	ve := ValidationError{}
	add := func(format string, args ...any) {
		ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
	}

	if !logging.KnownLevel(s.Log.Level) {
		add("log.level %q is not one of trace, debug, info, warn, error", s.Log.Level)
	}
	if s.Log.File != "" && s.Log.MaxSize <= 0 {
		add("log.maxsize must be positive when log.file is set")
	}

	if strings.TrimSpace(s.Output.Name) == "" {
		add("output.name must not be empty")
	}
	if err := s.OutputParams().Validate(); err != nil {
		add("output: %v", fieldOf(err))
	}
	if s.Output.Gain < 0 || s.Output.Gain > 10 {
		add("output.gain %.2f must be between 0 and 10", s.Output.Gain)
	}

	if s.Duplex.Enabled {
		if err := s.DuplexParams().ValidateDuplex(); err != nil {
			add("duplex: %v", fieldOf(err))
		}
	}
	if s.Duplex.Gain < 0 || s.Duplex.Gain > 10 {
		add("duplex.gain %.2f must be between 0 and 10", s.Duplex.Gain)
	}

	if s.Engine.CloseDelay < 0 || s.Engine.GracePeriod < 0 {
		add("engine delays must not be negative")
	}
	if s.Engine.ReapInterval <= 0 {
		add("engine.reapinterval must be positive")
	}
	if s.Engine.PoolSize < 0 {
		add("engine.poolsize must not be negative")
	}
	if s.Engine.Backend != "" && !slices.Contains(knownBackends, s.Engine.Backend) {
		add("engine.backend %q is not one of %s", s.Engine.Backend, strings.Join(knownBackends, ", "))
	}

	if s.Telemetry.Enabled {
		if _, _, err := net.SplitHostPort(s.Telemetry.Listen); err != nil {
			add("telemetry.listen %q: %v", s.Telemetry.Listen, err)
		}
	}

	if len(ve.Errors) == 0 {
		return nil
	}
	return errors.New(ve).
		Component("configuration").
		Category(errors.CategoryConfiguration).
		Context("error_count", len(ve.Errors)).
		Build()
}

// knownBackends are the malgo backend names accepted in engine.backend.
var knownBackends = []string{"auto", "alsa", "pulseaudio", "jack", "coreaudio", "wasapi", "null"}

// fieldOf renders a stream parameter error as field=value.
func fieldOf(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		ctx := ee.GetContext()
		if field, ok := ctx["field"]; ok {
			return fmt.Sprintf("invalid %v (%v)", field, ctx["value"])
		}
	}
	return err.Error()
}
