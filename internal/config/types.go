// Package config loads and validates ServerConfig from a YAML file,
// mirroring original_source/src/config.c's key layout and the teacher's
// httpserver config-validation shape.
package config

import "github.com/marlecce/emme/internal/logging"

// Technology enumerates the two route handling strategies spec.md §3
// defines for Route.
type Technology string

const (
	TechStatic       Technology = "static"
	TechReverseProxy Technology = "reverse_proxy"
)

const MaxRoutes = 16

// Route is {path_prefix, technology, document_root?, backend?}.
// Backend is required for reverse_proxy routes and kept as a literal
// IPv4:PORT string; its format is not validated at load, and it is
// re-parsed on every proxied request, per spec.md §3.
type Route struct {
	Path          string     `mapstructure:"path" validate:"required"`
	Technology    Technology `mapstructure:"technology" validate:"required,oneof=static reverse_proxy"`
	DocumentRoot  string     `mapstructure:"document_root" validate:"required_if=Technology static"`
	Backend       string     `mapstructure:"backend" validate:"required_if=Technology reverse_proxy"`
}

// LoggingConfig mirrors the `logging.*` YAML section.
type LoggingConfig struct {
	File          string   `mapstructure:"file"`
	Level         string   `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format        string   `mapstructure:"format" validate:"omitempty,oneof=plain json"`
	BufferSize    int      `mapstructure:"buffer_size"`
	RolloverSize  int64    `mapstructure:"rollover_size"`
	RolloverDaily bool     `mapstructure:"rollover_daily"`
	AppenderFlags []string `mapstructure:"appender_flags" validate:"dive,oneof=file console"`
}

// ToLoggingConfig turns the YAML-shaped section into the logging
// package's own Config (bitmask flags, Format enum).
func (l LoggingConfig) ToLoggingConfig() logging.Config {
	var flags int
	for _, f := range l.AppenderFlags {
		switch f {
		case "file":
			flags |= logging.AppenderFile
		case "console":
			flags |= logging.AppenderConsole
		}
	}

	format := logging.FormatPlain
	if l.Format == "json" {
		format = logging.FormatJSON
	}

	return logging.Config{
		File:          l.File,
		Level:         l.Level,
		Format:        format,
		BufferSize:    l.BufferSize,
		RolloverSize:  l.RolloverSize,
		RolloverDaily: l.RolloverDaily,
		AppenderFlags: flags,
	}
}

// SSLConfig mirrors the `ssl.*` YAML section.
type SSLConfig struct {
	Certificate string `mapstructure:"certificate" validate:"required"`
	PrivateKey  string `mapstructure:"private_key" validate:"required"`
}

// ServerConfig is the immutable-after-load configuration shared
// read-only by every worker, per spec.md §3.
type ServerConfig struct {
	Port           int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	MaxConnections int           `mapstructure:"max_connections" validate:"required,min=1"`
	LogLevel       string        `mapstructure:"log_level"`
	MetricsPort    int           `mapstructure:"metrics_port" validate:"omitempty,min=1,max=65535"`
	SSL            SSLConfig     `mapstructure:"-"`
	Logging        LoggingConfig `mapstructure:"-"`
	Routes         []Route       `mapstructure:"-" validate:"max=16,dive"`
}

// Clone deep-copies the config so a hot-reload (see Watch) never mutates
// a ServerConfig a worker already holds a reference to.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Routes = make([]Route, len(c.Routes))
	copy(cp.Routes, c.Routes)
	cp.Logging.AppenderFlags = append([]string(nil), c.Logging.AppenderFlags...)
	return &cp
}

// FirstMatch scans Routes in declaration order and returns the first
// whose Path is a prefix of reqPath, per spec.md §4.7's "first prefix
// match wins" rule (no longest-match upgrade).
func (c *ServerConfig) FirstMatch(reqPath string, tech Technology) (Route, bool) {
	for _, r := range c.Routes {
		if r.Technology != tech {
			continue
		}
		if len(reqPath) < len(r.Path) {
			continue
		}
		if reqPath[:len(r.Path)] == r.Path {
			return r, true
		}
	}
	return Route{}, false
}
