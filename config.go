package gocdi

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gocdi/gocdi/internal/validate"
)

// Config is the deployment configuration, typically loaded from a YAML
// file alongside the binary.
//
//	discovery: annotated
//	alternatives:
//	  - payments.SandboxGateway
//	session:
//	  store: redis
//	  redis:
//	    addrs: ["localhost:6379"]
//	    prefix: "shop:session:"
//	    ttl: 30m
type Config struct {
	// Discovery selects the discovery policy: "annotated" (default)
	// accepts only classes carrying a role marker, "all" accepts every
	// valid class.
	Discovery string `yaml:"discovery"`

	// Alternatives is the ordered enable-list. A listed alternative is
	// enabled even without a priority marker; later entries outrank
	// earlier ones and the list rank wins over a declared priority.
	Alternatives []string `yaml:"alternatives"`

	// Session configures session passivation.
	Session SessionConfig `yaml:"session"`
}

// SessionConfig selects and tunes the passivation store.
type SessionConfig struct {
	// Store is "memory" (default) or "redis".
	Store string `yaml:"store"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig tunes the redis-backed passivation store.
type RedisConfig struct {
	Addrs    []string      `yaml:"addrs"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration bytes.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Discovery {
	case "", "annotated", "all":
	default:
		return fmt.Errorf("unknown discovery policy %q", c.Discovery)
	}
	switch c.Session.Store {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	return nil
}

// alternativeRankBase keeps enable-list ranks above any reasonable declared
// priority, so a listed alternative outranks one enabled by its marker.
const alternativeRankBase = 1 << 20

// validatorConfig translates the public configuration into the validator's
// terms.
func (c Config) validatorConfig() validate.Config {
	mode := validate.Annotated
	if c.Discovery == "all" {
		mode = validate.All
	}
	enabled := make(map[string]int, len(c.Alternatives))
	for i, name := range c.Alternatives {
		enabled[name] = alternativeRankBase + i
	}
	return validate.Config{Mode: mode, EnabledAlternatives: enabled}
}
