package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fleetdns/zonekeeper/pkg/types"
)

// Defaults applied to optional fields.
const (
	DefaultCheckIntervalSeconds = 30
	DefaultTTL                  = 120
	DefaultFleetTimeoutSeconds  = 10
	DefaultDNSTimeoutSeconds    = 15
	DefaultMaxUsersPerNode      = 50
	DefaultRecoverUsersPerNode  = 30
	DefaultMinActiveNodes       = 1
)

// Config is the full typed configuration. Every recognized option is
// enumerated here; unknown keys are rejected at load.
type Config struct {
	Logging       LoggingConfig  `yaml:"logging"`
	CheckInterval int            `yaml:"check-interval"` // seconds
	Metrics       MetricsConfig  `yaml:"metrics"`
	Fleet         FleetConfig    `yaml:"fleet"`
	Cloudflare    DNSConfig      `yaml:"cloudflare"`
	Telegram      TelegramConfig `yaml:"telegram"`
	LoadBalancing LBConfig       `yaml:"load-balancing"`
	Domains       []DomainConfig `yaml:"domains"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// FleetConfig points at the node health API.
type FleetConfig struct {
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout"` // seconds
}

// DNSConfig holds DNS provider credentials and call timeouts.
type DNSConfig struct {
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout"` // seconds
}

// TelegramConfig controls the notification sink.
type TelegramConfig struct {
	Enabled  bool         `yaml:"enabled"`
	BotToken string       `yaml:"bot-token"`
	ChatID   int64        `yaml:"chat-id"`
	Notify   NotifyConfig `yaml:"notify"`
}

// NotifyConfig toggles notification categories.
type NotifyConfig struct {
	DNSChanges  *bool `yaml:"dns-changes"`
	NodeChanges *bool `yaml:"node-changes"`
	Errors      *bool `yaml:"errors"`
	Critical    *bool `yaml:"critical"`
}

// LBConfig holds the load-balancing hysteresis thresholds.
type LBConfig struct {
	Enabled             bool `yaml:"enabled"`
	MaxUsersPerNode     int  `yaml:"max-users-per-node"`
	RecoverUsersPerNode int  `yaml:"recover-users-per-node"`
	MinActiveNodes      int  `yaml:"min-active-nodes"`
}

// DomainConfig is one registered domain with its zones.
type DomainConfig struct {
	Domain string       `yaml:"domain"`
	Zones  []ZoneConfig `yaml:"zones"`
}

// ZoneConfig is one subdomain and its configured IP set.
type ZoneConfig struct {
	Name    string   `yaml:"name"`
	TTL     *int     `yaml:"ttl"`
	Proxied *bool    `yaml:"proxied"`
	IPs     []string `yaml:"ips"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// Load reads, expands and validates the configuration file.
// Validation failures are fatal by design: the engine refuses to run
// with an unsafe hysteresis configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration bytes after ${ENV_VAR} substitution.
func Parse(data []byte) (*Config, error) {
	expanded := envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckIntervalSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Fleet.Timeout <= 0 {
		c.Fleet.Timeout = DefaultFleetTimeoutSeconds
	}
	if c.Cloudflare.Timeout <= 0 {
		c.Cloudflare.Timeout = DefaultDNSTimeoutSeconds
	}
	if c.LoadBalancing.MaxUsersPerNode == 0 {
		c.LoadBalancing.MaxUsersPerNode = DefaultMaxUsersPerNode
	}
	if c.LoadBalancing.RecoverUsersPerNode == 0 {
		c.LoadBalancing.RecoverUsersPerNode = DefaultRecoverUsersPerNode
	}
	if c.LoadBalancing.MinActiveNodes == 0 {
		c.LoadBalancing.MinActiveNodes = DefaultMinActiveNodes
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}
}

// Validate checks the configuration eagerly. The hysteresis invariant
// max-users-per-node >= recover-users-per-node must hold; violating it
// would let a node flap between throttled and normal on every tick.
func (c *Config) Validate() error {
	if c.Fleet.URL == "" {
		return fmt.Errorf("fleet.url is required")
	}
	if c.Cloudflare.Token == "" {
		return fmt.Errorf("cloudflare.token is required")
	}
	if len(c.Domains) == 0 {
		return fmt.Errorf("at least one domain must be configured")
	}

	lb := c.LoadBalancing
	if lb.MaxUsersPerNode < lb.RecoverUsersPerNode {
		return fmt.Errorf("load-balancing: max-users-per-node (%d) must be >= recover-users-per-node (%d)",
			lb.MaxUsersPerNode, lb.RecoverUsersPerNode)
	}
	if lb.MinActiveNodes < 0 {
		return fmt.Errorf("load-balancing: min-active-nodes must not be negative")
	}

	for _, d := range c.Domains {
		if d.Domain == "" {
			return fmt.Errorf("domain name must not be empty")
		}
		for _, z := range d.Zones {
			if z.Name == "" {
				return fmt.Errorf("domain %s: zone name must not be empty", d.Domain)
			}
			if len(z.IPs) == 0 {
				return fmt.Errorf("zone %s.%s: at least one ip is required", z.Name, d.Domain)
			}
			for _, ip := range z.IPs {
				parsed := net.ParseIP(ip)
				if parsed == nil || parsed.To4() == nil {
					return fmt.Errorf("zone %s.%s: %q is not a valid IPv4 address", z.Name, d.Domain, ip)
				}
			}
			if z.TTL != nil && *z.TTL < 1 {
				return fmt.Errorf("zone %s.%s: ttl must be positive", z.Name, d.Domain)
			}
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot-token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat-id is required when telegram is enabled")
		}
	}

	return nil
}

// Zones flattens the domain tree into the zone list the engine works with,
// applying per-zone defaults.
func (c *Config) Zones() []types.Zone {
	var zones []types.Zone
	for _, d := range c.Domains {
		for _, z := range d.Zones {
			ttl := DefaultTTL
			if z.TTL != nil {
				ttl = *z.TTL
			}
			proxied := false
			if z.Proxied != nil {
				proxied = *z.Proxied
			}
			zones = append(zones, types.Zone{
				Name:    z.Name,
				Domain:  d.Domain,
				TTL:     ttl,
				Proxied: proxied,
				IPs:     append([]string(nil), z.IPs...),
			})
		}
	}
	return zones
}

// Interval returns the polling interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

// FleetTimeout returns the health API call timeout.
func (c *Config) FleetTimeout() time.Duration {
	return time.Duration(c.Fleet.Timeout) * time.Second
}

// DNSTimeout returns the per-operation DNS call timeout.
func (c *Config) DNSTimeout() time.Duration {
	return time.Duration(c.Cloudflare.Timeout) * time.Second
}

// NotifyDNSChanges reports whether DNS change notifications are enabled.
func (n NotifyConfig) NotifyDNSChanges() bool { return boolDefault(n.DNSChanges, true) }

// NotifyNodeChanges reports whether node transition notifications are enabled.
func (n NotifyConfig) NotifyNodeChanges() bool { return boolDefault(n.NodeChanges, true) }

// NotifyErrors reports whether error notifications are enabled.
func (n NotifyConfig) NotifyErrors() bool { return boolDefault(n.Errors, true) }

// NotifyCritical reports whether critical state notifications are enabled.
func (n NotifyConfig) NotifyCritical() bool { return boolDefault(n.Critical, true) }

func boolDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
