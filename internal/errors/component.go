package errors

import (
	"runtime"
	"strings"
	"sync"
)

const selfPackage = "github.com/tphakala/lanemix/internal/errors"

var (
	registryMu sync.RWMutex
	// package path fragment -> component name
	components = map[string]string{
		"audiocore/devices/malgo":   "audiocore.malgo",
		"audiocore/devices/virtual": "audiocore.virtual",
		"audiocore/devices/period":  "audiocore.period",
		"audiocore":                 "audiocore",
		"audiofile":                 "audiofile",
		"patches":                   "patches",
		"httpserver":                "httpserver",
		"conf":                      "configuration",
		"internal/app":              "app",
	}
)

// RegisterComponent maps functions whose name contains pattern to component.
func RegisterComponent(pattern, component string) {
	registryMu.Lock()
	components[pattern] = component
	registryMu.Unlock()
}

// detectComponent walks the stack to the first frame outside this package.
func detectComponent() string {
	var pcs [24]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, selfPackage) {
			return lookupComponent(frame.Function)
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// lookupComponent resolves a function name to a component. The longest
// matching pattern wins, so subpackages resolve before their parents. An
// unregistered function falls back to its package name.
func lookupComponent(funcName string) string {
	registryMu.RLock()
	best, component := "", ""
	for pattern, name := range components {
		if len(pattern) > len(best) && strings.Contains(funcName, pattern) {
			best, component = pattern, name
		}
	}
	registryMu.RUnlock()
	if component != "" {
		return component
	}

	last := funcName[strings.LastIndex(funcName, "/")+1:]
	if dot := strings.IndexByte(last, '.'); dot > 0 {
		return last[:dot]
	}
	return ComponentUnknown
}

// detectCategory derives a category from a wrapped EnhancedError, the
// message, or the component, in that order.
func detectCategory(err error, component string) ErrorCategory {
	var inner *EnhancedError
	if As(err, &inner) && inner.Category != "" {
		return inner.Category
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, word := range rule.words {
			if strings.Contains(msg, word) {
				return rule.category
			}
		}
	}

	switch {
	case strings.HasPrefix(component, "audiocore"):
		return CategoryAudio
	case component == "audiofile":
		return CategoryFileParsing
	case component == "httpserver":
		return CategoryHTTP
	case component == "configuration":
		return CategoryConfiguration
	}
	return CategoryGeneric
}

var messageRules = []struct {
	words    []string
	category ErrorCategory
}{
	{[]string{"device", "backend"}, CategoryAudioDevice},
	{[]string{"file", "open"}, CategoryFileIO},
	{[]string{"validation", "mismatch", "invalid"}, CategoryValidation},
	{[]string{"timeout", "deadline"}, CategoryTimeout},
}
