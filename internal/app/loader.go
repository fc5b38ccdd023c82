package app

import (
	"github.com/tphakala/lanemix/internal/buildinfo"
	"github.com/tphakala/lanemix/internal/conf"
)

// Loader carries the global command line flags until a command needs the
// application context.
type Loader struct {
	ConfigFile string
	Debug      bool
	Verbose    bool
	Build      *buildinfo.Context
}

// Settings loads the configuration and applies the flag overrides.
func (l *Loader) Settings() (*conf.Settings, error) {
	settings, err := conf.Load(l.ConfigFile)
	if err != nil {
		return nil, err
	}
	if l.Debug {
		settings.Debug = true
	}
	if l.Verbose {
		settings.Verbose = true
	}
	return settings, nil
}

// Open loads the settings and builds the application context. The caller
// must Close it.
func (l *Loader) Open() (*Context, error) {
	settings, err := l.Settings()
	if err != nil {
		return nil, err
	}
	build := l.Build
	if build == nil {
		build = buildinfo.Current()
	}
	return New(settings, build)
}
