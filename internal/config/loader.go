// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/extkit/internal/xdg"
	"github.com/holomush/extkit/pkg/errutil"
)

// Loader error codes.
const (
	CodeNotFound    = "CONFIG_NOT_FOUND"
	CodeParseFailed = "CONFIG_PARSE_FAILED"
	CodeWatchFailed = "CONFIG_WATCH_FAILED"
)

// flagKeys maps the flags registered by BindFlags to configuration keys.
// Flags missing from this map are ignored by the loader.
var flagKeys = map[string]string{
	"name":               "name",
	"debug":              "debug",
	"plugins-dir":        "plugins_dir",
	"call-timeout":       "call_timeout",
	"log-level":          "log.level",
	"log-format":         "log.format",
	"storage-driver":     "storage.driver",
	"storage-dsn":        "storage.dsn",
	"storage-path":       "storage.path",
	"persist":            "storage.persist",
	"persist-key":        "storage.persist_key",
	"observability-addr": "observability.addr",
}

// BindFlags registers the configuration flags on flags with the defaults
// from Default.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("name", d.Name, "manager name reported by status (default \"SDK Manager\")")
	flags.Bool("debug", d.Debug, "enable debug mode")
	flags.String("plugins-dir", d.PluginsDir, "directory containing plugin subdirectories")
	flags.Duration("call-timeout", d.CallTimeout, "timeout for each Lua lifecycle call (0 = none)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("storage-driver", d.Storage.Driver, "state storage driver (memory, file, postgres, sqlite)")
	flags.String("storage-dsn", d.Storage.DSN, "postgres connection string")
	flags.String("storage-path", d.Storage.Path, "file or sqlite location (default: XDG data dir)")
	flags.Bool("persist", d.Storage.Persist, "persist state to the storage driver")
	flags.String("persist-key", d.Storage.PersistKey, "storage key for persisted state")
	flags.String("observability-addr", d.Observability.Addr, "metrics/health HTTP address (empty = disabled)")
}

// Loader reads one configuration file and overlays a flag set on top.
type Loader struct {
	path     string
	explicit bool
	flags    *pflag.FlagSet
	logger   *slog.Logger

	mu      sync.Mutex
	watcher *file.File
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used for reload messages. Without it the
// loader logs to slog.Default() as of each message.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

func (l *Loader) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

// NewLoader creates a loader for path. An empty path selects
// $XDG_CONFIG_HOME/extkit/extkit.yaml, which may be absent; an explicit path
// must exist. flags may be nil.
func NewLoader(path string, flags *pflag.FlagSet, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{
		path:     path,
		explicit: path != "",
		flags:    flags,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.path == "" {
		defaultPath, err := xdg.ConfigFile()
		if err != nil {
			return nil, err
		}
		l.path = defaultPath
	}
	return l, nil
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// Load builds a validated Config: defaults, then the file, then flags. A
// flag left at its default does not override a value from the file.
func (l *Loader) Load() (*Config, error) {
	k := koanf.New(".")

	if err := l.loadFile(k); err != nil {
		return nil, err
	}
	if l.flags != nil {
		provider := posflag.ProviderWithFlag(l.flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(l.flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code(CodeParseFailed).In("config").Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeParseFailed).In("config").With("path", l.path).Wrapf(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) loadFile(k *koanf.Koanf) error {
	if _, err := os.Stat(l.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !l.explicit {
			return nil
		}
		return oops.Code(CodeNotFound).In("config").With("path", l.path).Wrap(err)
	}
	if err := k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
		return oops.Code(CodeParseFailed).In("config").With("path", l.path).Wrap(err)
	}
	return nil
}

// Watch reloads the configuration whenever the file changes and passes
// each valid result to onChange. Invalid reloads are logged and dropped.
func (l *Loader) Watch(onChange func(*Config)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.watcher != nil {
		return oops.Code(CodeWatchFailed).In("config").With("path", l.path).Errorf("already watching")
	}

	provider := file.Provider(l.path)
	err := provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			l.log().Warn("config watch error", "path", l.path, "error", err)
			return
		}
		cfg, err := l.Load()
		if err != nil {
			errutil.LogWarn(l.log(), "ignoring invalid config reload", err)
			return
		}
		l.log().Info("config reloaded", "path", l.path)
		onChange(cfg)
	})
	if err != nil {
		return oops.Code(CodeWatchFailed).In("config").With("path", l.path).Wrap(err)
	}
	l.watcher = provider
	return nil
}

// StopWatching ends a Watch. It is a no-op when nothing is watched.
func (l *Loader) StopWatching() error {
	l.mu.Lock()
	watcher := l.watcher
	l.watcher = nil
	l.mu.Unlock()

	if watcher == nil {
		return nil
	}
	if err := watcher.Unwatch(); err != nil {
		return oops.Code(CodeWatchFailed).In("config").With("path", l.path).Wrap(err)
	}
	return nil
}
