// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// ErrorHook is called synchronously for every error built while reporting is active.
type ErrorHook func(ee *EnhancedError)

var (
	reporterMu             sync.RWMutex
	globalReporter         TelemetryReporter
	errorHooks             []ErrorHook
	hasActiveReporting     atomic.Bool
	urlQueryRegex          = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	queryParamRegex        = regexp.MustCompile(`[?&]([^=\s]+)=([^&\s]+)`)
	sensitiveValuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`dsn[=:]\S+`),
		regexp.MustCompile(`token[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
)

// SetTelemetryReporter sets the global telemetry reporter. Passing nil disables it.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	globalReporter = reporter
	refreshActiveReporting()
	reporterMu.Unlock()
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return globalReporter
}

// AddErrorHook registers a hook invoked for every built error.
func AddErrorHook(hook ErrorHook) {
	if hook == nil {
		return
	}
	reporterMu.Lock()
	errorHooks = append(errorHooks, hook)
	refreshActiveReporting()
	reporterMu.Unlock()
}

// ClearErrorHooks removes all registered hooks.
func ClearErrorHooks() {
	reporterMu.Lock()
	errorHooks = nil
	refreshActiveReporting()
	reporterMu.Unlock()
}

// refreshActiveReporting must be called with reporterMu held.
func refreshActiveReporting() {
	active := len(errorHooks) > 0 || (globalReporter != nil && globalReporter.IsEnabled())
	hasActiveReporting.Store(active)
}

func reportError(ee *EnhancedError) {
	reporterMu.RLock()
	reporter := globalReporter
	hooks := errorHooks
	reporterMu.RUnlock()

	for _, hook := range hooks {
		hook(ee)
	}
	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// SentryReporter implements TelemetryReporter for Sentry.
// Only high and critical priority errors are sent unless reportAll is set.
type SentryReporter struct {
	enabled   bool
	reportAll bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled, reportAll bool) *SentryReporter {
	return &SentryReporter{enabled: enabled, reportAll: reportAll}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}
	if !sr.reportAll && ee.Priority != PriorityHigh && ee.Priority != PriorityCritical {
		return
	}

	message := basicURLScrub(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	component := ee.GetComponent()

	sentry.WithScope(func(scope *sentry.Scope) {
		title := generateErrorTitle(component, ee)

		scope.SetTag("error_title", title)
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = basicURLScrub(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := getErrorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}

		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// generateErrorTitle creates a grouping title from component and category
func generateErrorTitle(component string, ee *EnhancedError) string {
	var parts []string
	if component != "" && component != ComponentUnknown {
		parts = append(parts, titleCase(component))
	}
	if ee.Category != "" {
		parts = append(parts, formatCategoryForTitle(ee.Category))
	}
	if op, ok := ee.Context["operation"].(string); ok && op != "" {
		parts = append(parts, titleCase(strings.ReplaceAll(op, "_", " ")))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryValidation:
		return "Validation Error"
	case CategoryAudioDevice:
		return "Audio Device Error"
	case CategoryWorker:
		return "Worker Error"
	case CategoryFileIO:
		return "File I/O Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategorySystem:
		return "System Error"
	default:
		return string(category)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// getErrorLevel returns appropriate Sentry level based on category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryValidation, CategoryAudioDevice, CategoryConfiguration, CategorySystem:
		return sentry.LevelError
	case CategoryWorker, CategoryFileIO, CategoryFileParsing, CategoryAudio, CategoryHTTP:
		return sentry.LevelWarning
	case CategoryTimeout:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

// basicURLScrub strips query strings and secret-looking values from a message
func basicURLScrub(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	scrubbed = queryParamRegex.ReplaceAllString(scrubbed, "?[REDACTED]")
	for _, re := range sensitiveValuePatterns {
		scrubbed = re.ReplaceAllString(scrubbed, "[REDACTED]")
	}
	return scrubbed
}
