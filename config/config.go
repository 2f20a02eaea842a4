// Package config loads engine configuration for the demo binary from
// environment variables and flags via viper. The mvcc package itself never
// imports viper or reads the environment directly; it only accepts the
// resulting Config value.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config carries the knobs a caller can set when constructing a Database.
type Config struct {
	DefaultIsolation string // "read-uncommitted" | "read-committed" | "repeatable-read" | "snapshot" | "serializable"
	LogLevel         string // zap level name, e.g. "info", "debug", "warn"
	Scenario         string // which §8 scenario the demo binary replays
}

// Load reads MVCCDEMO_* environment variables into a Config, applying
// defaults for anything unset. Flags bound into v (via BindPFlag) take
// precedence over the environment, per viper's normal precedence rules.
func Load(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix("MVCCDEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("isolation", "serializable")
	v.SetDefault("log-level", "info")
	v.SetDefault("scenario", "s6")

	return Config{
		DefaultIsolation: v.GetString("isolation"),
		LogLevel:         v.GetString("log-level"),
		Scenario:         v.GetString("scenario"),
	}
}
