// Package errors provides categorized errors for lanemix. Errors are built
// with a fluent builder, carry component and context metadata, and are
// forwarded to registered hooks and an optional telemetry reporter.
package errors

import (
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for metrics and telemetry.
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryNotFound      ErrorCategory = "not-found"
	CategoryState         ErrorCategory = "state"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryGeneric       ErrorCategory = "generic"

	CategoryAudio       ErrorCategory = "audio-processing"
	CategoryAudioDevice ErrorCategory = "audio-device"
	CategoryBuffer      ErrorCategory = "audio-buffer" // frame queue and lanes
	CategoryWorker      ErrorCategory = "worker-pool"

	CategoryFileIO      ErrorCategory = "file-io"
	CategoryFileParsing ErrorCategory = "file-parsing"
	CategoryHTTP        ErrorCategory = "http-request"
	CategorySystem      ErrorCategory = "system-resource"
)

// Priorities. Only high and critical errors reach Sentry unless the
// reporter is configured to report everything.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with its component, category and context.
// It is immutable once built apart from the reported flag.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Priority  string
	Context   map[string]any
	Timestamp time.Time

	component string
	reported  atomic.Bool
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError with the same category and message, so
// package level sentinels keep matching after being wrapped with context.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category && ee.Err.Error() == other.Err.Error()
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component that raised the error.
func (ee *EnhancedError) GetComponent() string { return ee.component }

// GetCategory returns the category as a metric label value.
func (ee *EnhancedError) GetCategory() string { return string(ee.Category) }

// GetPriority returns the explicit priority, or "" when none was set.
func (ee *EnhancedError) GetPriority() string { return ee.Priority }

// GetContext returns a copy of the context map.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// MarkReported records that telemetry has been sent for this error.
func (ee *EnhancedError) MarkReported() { ee.reported.Store(true) }

// IsReported reports whether MarkReported was called.
func (ee *EnhancedError) IsReported() bool { return ee.reported.Load() }

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	priority  string
	context   map[string]any
}

// New starts building an error that wraps err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building an error from a format string.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name. Without it the component is detected
// from the call stack when reporting is active.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Priority sets the priority. Unknown values become medium.
func (eb *ErrorBuilder) Priority(priority string) *ErrorBuilder {
	switch priority {
	case "":
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		eb.priority = priority
	default:
		eb.priority = PriorityMedium
	}
	return eb
}

// Context adds one context value.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any, 4)
	}
	eb.context[key] = value
	return eb
}

// FileContext records the extension and a size class of a file. The path
// itself is not stored.
func (eb *ErrorBuilder) FileContext(filePath string, fileSize int64) *ErrorBuilder {
	if filePath != "" {
		eb.Context("file_extension", fileExtension(filePath))
	}
	if fileSize > 0 {
		eb.Context("file_size_category", fileSizeClass(fileSize))
	}
	return eb
}

// Timing records an operation and its duration in milliseconds.
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	eb.Context("duration_ms", duration.Milliseconds())
	return eb
}

// Build creates the error. When hooks or a reporter are registered, missing
// component and category are detected and the error is reported.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Category:  eb.category,
		Priority:  eb.priority,
		Context:   eb.context,
		Timestamp: time.Now(),
		component: eb.component,
	}

	if !hasActiveReporting.Load() {
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
		if ee.Category == "" {
			ee.Category = CategoryGeneric
		}
		return ee
	}

	if ee.component == "" {
		ee.component = detectComponent()
	}
	if ee.Category == "" {
		ee.Category = detectCategory(ee.Err, ee.component)
	}
	reportError(ee)
	return ee
}

func fileExtension(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "none"
	}
	return strings.ToLower(ext)
}

func fileSizeClass(size int64) string {
	const mb = 1 << 20
	switch {
	case size < 1<<10:
		return "tiny"
	case size < mb:
		return "small"
	case size < 10*mb:
		return "medium"
	case size < 100*mb:
		return "large"
	default:
		return "very-large"
	}
}
