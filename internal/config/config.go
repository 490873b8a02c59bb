package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	dsnEnvVariable    = "CRAFTPANEL_PG_DSN"
	secretEnvVariable = "CRAFTPANEL_AUTH_SECRET"
)

// Config holds all application configuration. It is loaded once at startup
// and passed explicitly into constructors; nothing re-reads it at runtime.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	GRPCAddr   string         `yaml:"grpc_addr"`
	Database   DatabaseConfig `yaml:"database"`
	Auth       AuthConfig     `yaml:"auth"`
	RateLimit  RateLimit      `yaml:"rate_limit"`
	Seed       Seed           `yaml:"seed"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig holds token and credential settings.
type AuthConfig struct {
	Secret        string `yaml:"secret"`
	Issuer        string `yaml:"issuer"`
	AccessTTLMins int    `yaml:"access_ttl_mins"`
	HashScheme    string `yaml:"hash_scheme"`

	// DemoMode marks a restricted demonstration deployment. Read-only; it is
	// only ever compared with ==.
	DemoMode bool `yaml:"demo_mode"`
}

// AccessTTL returns the access token lifetime as time.Duration.
func (c AuthConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMins) * time.Minute
}

// RateLimit holds per-IP request throttling settings.
type RateLimit struct {
	Burst     int `yaml:"burst"`
	PerSecond int `yaml:"per_second"`
}

// Seed describes the group ladder and permission catalog applied once at
// startup.
type Seed struct {
	Groups      []SeedGroup      `yaml:"groups"`
	Permissions []SeedPermission `yaml:"permissions"`
}

// SeedGroup is one rung of the group ladder.
type SeedGroup struct {
	Name    string `yaml:"name"`
	Level   int    `yaml:"level"`
	Default bool   `yaml:"default"`
}

// SeedPermission maps a named capability to the lowest group level that
// receives it.
type SeedPermission struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Level    int    `yaml:"level"`
}

// Load reads the YAML config at path, applies environment overrides for
// secrets, and validates the result. An empty path yields pure defaults plus
// environment values.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if dsn := strings.TrimSpace(os.Getenv(dsnEnvVariable)); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(secretEnvVariable)); secret != "" {
		cfg.Auth.Secret = secret
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ListenAddr: ":8080",
		Auth: AuthConfig{
			Issuer:        "craftpanel",
			AccessTTLMins: 60,
			HashScheme:    "argon2id",
		},
		RateLimit: RateLimit{Burst: 20, PerSecond: 10},
		Seed:       DefaultSeed(),
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("config: auth secret is not configured")
	}
	if c.Auth.AccessTTLMins <= 0 {
		return errors.New("config: access_ttl_mins must be positive")
	}
	switch c.Auth.HashScheme {
	case "argon2id", "bcrypt":
	default:
		return fmt.Errorf("config: unsupported hash_scheme %q", c.Auth.HashScheme)
	}
	defaults := 0
	for _, g := range c.Seed.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return errors.New("config: seed group name is required")
		}
		if g.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return errors.New("config: at most one default seed group is allowed")
	}
	return nil
}

// DefaultSeed returns the stock group ladder and permission catalog. Each
// group at level L receives every permission mapped to levels 0..L.
func DefaultSeed() Seed {
	return Seed{
		Groups: []SeedGroup{
			{Name: "Guest", Level: 0},
			{Name: "User", Level: 1, Default: true},
			{Name: "Helper", Level: 2},
			{Name: "Moderator", Level: 3},
			{Name: "Admin", Level: 4},
			{Name: "Owner", Level: 5},
		},
		Permissions: []SeedPermission{
			{Name: "launcher.play", Category: "launcher", Level: 1},
			{Name: "profile.changeusername", Category: "profile", Level: 1},
			{Name: "profile.changeskin", Category: "profile", Level: 1},
			{Name: "profile.changecape", Category: "profile", Level: 1},
			{Name: "profile.linkdiscord", Category: "profile", Level: 1},
			{Name: "admin.notes", Category: "admin", Level: 2},
			{Name: "admin.users", Category: "admin", Level: 3},
			{Name: "admin.sessions", Category: "admin", Level: 3},
			{Name: "admin.groups", Category: "admin", Level: 4},
			{Name: "admin.permissions", Category: "admin", Level: 4},
			{Name: "admin.owner", Category: "admin", Level: 5},
		},
	}
}
