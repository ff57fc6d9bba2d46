package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/marlecce/emme/internal/errs"
)

var validate = validator.New()

// Load reads and validates a ServerConfig from path, mirroring
// original_source/src/config.c's load_config() section layout
// (server/logging/ssl/routes) but via viper instead of a hand-rolled
// YAML node walk.
func Load(path string) (*ServerConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("EMME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("server.metrics_port", 9090)

	if err := v.ReadInConfig(); err != nil {
		return nil, errs.New(errs.ErrConfigLoad, "reading configuration file "+path, err)
	}

	cfg := &ServerConfig{}

	if err := v.UnmarshalKey("server", cfg); err != nil {
		return nil, errs.New(errs.ErrConfigLoad, "decoding server section", err)
	}
	if err := v.UnmarshalKey("ssl", &cfg.SSL); err != nil {
		return nil, errs.New(errs.ErrConfigLoad, "decoding ssl section", err)
	}
	if err := v.UnmarshalKey("logging", &cfg.Logging); err != nil {
		return nil, errs.New(errs.ErrConfigLoad, "decoding logging section", err)
	}
	if err := v.UnmarshalKey("routes", &cfg.Routes); err != nil {
		return nil, errs.New(errs.ErrConfigLoad, "decoding routes section", err)
	}
	if len(cfg.Routes) > MaxRoutes {
		cfg.Routes = cfg.Routes[:MaxRoutes]
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate runs struct-tag validation over cfg, mirroring the teacher's
// ServerConfig.Validate() liberr.Error shape.
func Validate(cfg *ServerConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return errs.New(errs.ErrConfigValidate, "invalid configuration", err)
	}
	for i := range cfg.Routes {
		if err := validate.Struct(cfg.Routes[i]); err != nil {
			return errs.New(errs.ErrConfigValidate, "invalid route", err)
		}
	}
	return nil
}

// Watch installs a hot-reload callback invoked whenever the config file
// changes on disk, supplementing the original C server's load-once
// model with certificate-rotation-without-restart (see SPEC_FULL.md §2.1).
func Watch(path string, onChange func(*ServerConfig)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := Load(path)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
