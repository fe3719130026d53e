package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/victorseo0526-a/minister-reservation/internal/reservation"
)

// Config is the deployment configuration for reservationd.
type Config struct {
	Addr          string
	DBPath        string
	AdminToken    string
	Roles         []string
	Retention     time.Duration // how long past records linger before the sweep removes them
	SweepInterval time.Duration
	Horizon       time.Duration // booking window past start-of-today; 0 disables
}

func Default() Config {
	return Config{
		Addr:          ":8080",
		DBPath:        "./reservationd.db",
		Roles:         reservation.DefaultRoles(),
		Retention:     31 * time.Minute,
		SweepInterval: time.Minute,
		Horizon:       48 * time.Hour,
	}
}

type fileConfig struct {
	Addr          string   `toml:"addr"`
	DBPath        string   `toml:"db_path"`
	AdminToken    string   `toml:"admin_token"`
	Roles         []string `toml:"roles"`
	Retention     string   `toml:"retention"`
	SweepInterval string   `toml:"sweep_interval"`
	Horizon       string   `toml:"horizon"`
}

// Load reads path over the defaults. Only keys present in the file override;
// durations use Go syntax ("31m", "24h").
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			cfg.Addr = addr
		}
	}

	if meta.IsDefined("db_path") {
		if p := strings.TrimSpace(raw.DBPath); p != "" {
			cfg.DBPath = p
		}
	}

	if meta.IsDefined("admin_token") {
		cfg.AdminToken = raw.AdminToken
	}

	if meta.IsDefined("roles") {
		roles := normalizeRoles(raw.Roles)
		if len(roles) == 0 {
			return Config{}, fmt.Errorf("roles must not be empty")
		}
		cfg.Roles = roles
	}

	if meta.IsDefined("retention") {
		d, err := parsePositiveDuration("retention", raw.Retention)
		if err != nil {
			return Config{}, err
		}
		cfg.Retention = d
	}

	if meta.IsDefined("sweep_interval") {
		d, err := parsePositiveDuration("sweep_interval", raw.SweepInterval)
		if err != nil {
			return Config{}, err
		}
		cfg.SweepInterval = d
	}

	if meta.IsDefined("horizon") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Horizon))
		if err != nil {
			return Config{}, fmt.Errorf("parse horizon: %w", err)
		}
		if d < 0 {
			return Config{}, fmt.Errorf("horizon must be >= 0")
		}
		cfg.Horizon = d
	}

	return cfg, nil
}

func parsePositiveDuration(key, val string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return d, nil
}

func normalizeRoles(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
