// Package config loads the YAML configuration of the geventd command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joeycumines/go-gevent"
	"github.com/joeycumines/logiface"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by all validation failures.
var ErrInvalid = errors.New("config: invalid")

type (
	// Config models the geventd configuration file.
	Config struct {
		// Backend is the name of a built-in backend, defaults to the
		// platform default.
		Backend string `yaml:"backend"`
		// LogLevel is a syslog style keyword, e.g. "info" or "debug".
		LogLevel        string        `yaml:"log_level"`
		FailureRates    []Rate        `yaml:"failure_rates"`
		Timers          []Timer       `yaml:"timers"`
		// DispatchTimeout bounds each dispatch, negative blocks.
		DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
		// Duration stops the reactor after the given time, zero runs until
		// interrupted.
		Duration       time.Duration `yaml:"duration"`
		FatalThreshold int           `yaml:"fatal_threshold"`
		// Stdin registers standard input for readability.
		Stdin bool `yaml:"stdin"`
	}

	// Rate is one dispatch failure limit, see gevent.WithFailureRates.
	Rate struct {
		Window time.Duration `yaml:"window"`
		Limit  int           `yaml:"limit"`
	}

	// Timer is a timer event registered by geventd.
	Timer struct {
		Name    string        `yaml:"name"`
		Period  time.Duration `yaml:"period"`
		OneShot bool          `yaml:"one_shot"`
	}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend:         gevent.DefaultBackend.String(),
		LogLevel:        logiface.LevelInformational.String(),
		DispatchTimeout: -1,
		FatalThreshold:  gevent.DefaultFatalThreshold,
		Timers: []Timer{
			{Name: "tick", Period: time.Second},
		},
	}
}

// Load reads and validates the file at path, applied over Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and validates YAML from r, applied over Default. Unknown
// fields are rejected.
func Decode(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: yaml decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse is Decode for an in-memory document.
func Parse(data []byte) (*Config, error) {
	return Decode(bytes.NewReader(data))
}

// Validate checks the configuration, without applying it.
func (c *Config) Validate() error {
	if _, err := c.BackendKind(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.FatalThreshold < 1 {
		return fmt.Errorf("%w: fatal_threshold must be positive, got %d", ErrInvalid, c.FatalThreshold)
	}
	if c.DispatchTimeout == 0 {
		return fmt.Errorf("%w: dispatch_timeout must be non-zero, negative blocks", ErrInvalid)
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: negative duration %s", ErrInvalid, c.Duration)
	}
	for i, r := range c.FailureRates {
		if r.Window <= 0 || r.Limit <= 0 {
			return fmt.Errorf("%w: failure_rates[%d]: window and limit must be positive", ErrInvalid, i)
		}
	}
	names := make(map[string]struct{}, len(c.Timers))
	for i, t := range c.Timers {
		if t.Name == "" {
			return fmt.Errorf("%w: timers[%d]: missing name", ErrInvalid, i)
		}
		if _, ok := names[t.Name]; ok {
			return fmt.Errorf("%w: timers[%d]: duplicate name %q", ErrInvalid, i, t.Name)
		}
		names[t.Name] = struct{}{}
		if t.Period <= 0 {
			return fmt.Errorf("%w: timer %q: period must be positive", ErrInvalid, t.Name)
		}
	}
	return nil
}

// BackendKind resolves Backend.
func (c *Config) BackendKind() (gevent.BackendKind, error) {
	if c.Backend == "" {
		return gevent.DefaultBackend, nil
	}
	kind, ok := gevent.ParseBackendKind(c.Backend)
	if !ok {
		return 0, fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	return kind, nil
}

// Level resolves LogLevel, accepting the keywords of logiface.Level.String.
func (c *Config) Level() (logiface.Level, error) {
	if c.LogLevel == "" {
		return logiface.LevelInformational, nil
	}
	for level := logiface.LevelDisabled; level <= logiface.LevelTrace; level++ {
		if level.String() == c.LogLevel {
			return level, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.LogLevel)
}

// Options converts the configuration to base options, logging to logger.
func (c *Config) Options(logger *logiface.Logger[logiface.Event]) ([]gevent.BaseOption, error) {
	kind, err := c.BackendKind()
	if err != nil {
		return nil, err
	}
	opts := []gevent.BaseOption{
		gevent.WithBackend(kind),
		gevent.WithLogger(logger),
		gevent.WithDispatchTimeout(c.DispatchTimeout),
		gevent.WithFatalThreshold(c.FatalThreshold),
	}
	if len(c.FailureRates) != 0 {
		rates := make(map[time.Duration]int, len(c.FailureRates))
		for _, r := range c.FailureRates {
			rates[r.Window] = r.Limit
		}
		opts = append(opts, gevent.WithFailureRates(rates))
	}
	return opts, nil
}

// TimerType returns the gevent recurrence of the timer.
func (t Timer) TimerType() gevent.TimerType {
	if t.OneShot {
		return gevent.TimerOneShot
	}
	return gevent.TimerPersistent
}
