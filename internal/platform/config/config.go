// Package config builds process configuration from the environment once at
// startup. Components receive their settings through constructors; nothing in
// this package is mutated after Load returns.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config captures every knob the server needs. Prefix is ACCREDO_, so for
// example Addr comes from ACCREDO_ADDR.
type Config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Session store backend selection. Memory is the dev default; set
	// DatabaseURL or RedisAddr to pick a durable backend.
	SessionBackend string `envconfig:"SESSION_BACKEND" default:"memory"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`

	// Voter registry and reference data, loaded once at startup.
	VoterRegistryPath string `envconfig:"VOTER_REGISTRY_PATH" default:"data/voters.json"`
	PollingUnitsPath  string `envconfig:"POLLING_UNITS_PATH" default:"data/polling_units.json"`
	PartiesPath       string `envconfig:"PARTIES_PATH" default:"data/political_parties.json"`

	// Behavior when a 6-character VIN suffix matches several registrants in
	// the same polling unit: "first_registered" or "reject".
	SuffixTieBreak string `envconfig:"SUFFIX_TIE_BREAK" default:"first_registered"`

	// Identity extraction collaborator.
	ExtractorURL     string        `envconfig:"EXTRACTOR_URL"`
	ExtractorAPIKey  string        `envconfig:"EXTRACTOR_API_KEY"`
	ExtractorTimeout time.Duration `envconfig:"EXTRACTOR_TIMEOUT" default:"10s"`

	// Fire-and-forget notification sender. Empty URL disables sending.
	NotifyURL       string        `envconfig:"NOTIFY_URL"`
	NotifyRecipient string        `envconfig:"NOTIFY_RECIPIENT"`
	NotifyTimeout   time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"5s"`

	// Audit sink. With no brokers configured events stay in memory.
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	AuditTopic   string   `envconfig:"AUDIT_TOPIC" default:"accredo.audit.events"`

	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// Load reads configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("accredo", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}
	switch cfg.SessionBackend {
	case "memory", "postgres", "redis":
	default:
		return Config{}, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
	if cfg.SessionBackend == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("postgres session backend requires ACCREDO_DATABASE_URL")
	}
	if cfg.SessionBackend == "redis" && cfg.RedisAddr == "" {
		return Config{}, fmt.Errorf("redis session backend requires ACCREDO_REDIS_ADDR")
	}
	switch cfg.SuffixTieBreak {
	case "first_registered", "reject":
	default:
		return Config{}, fmt.Errorf("unknown suffix tie-break policy %q", cfg.SuffixTieBreak)
	}
	return cfg, nil
}
