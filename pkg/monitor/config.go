// Copyright 2024-2026 Aiku AI

package monitor

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the monitor configuration. Secrets (password, admin token,
// archive URI) can be overridden from the environment so they stay out of
// the config file.
type Config struct {
	Homeserver string `yaml:"homeserver"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password" env:"BRIDGEWATCH_PASSWORD"`
	// AdminToken is the operator's Synapse admin credential, used only for
	// account provisioning and deletion.
	AdminToken string `yaml:"admin_token" env:"BRIDGEWATCH_ADMIN_TOKEN"`

	// GroupRoomsOnly narrows monitoring to group bridge rooms.
	GroupRoomsOnly bool `yaml:"group_rooms_only"`
	// Blacklist lists room IDs that never enter the catalog.
	Blacklist []string `yaml:"blacklist"`

	Sync    SyncSettings    `yaml:"sync"`
	QR      QRSettings      `yaml:"qr"`
	Archive ArchiveSettings `yaml:"archive"`

	// Platforms overrides the built-in bridge definitions. When empty, the
	// stock WhatsApp/Signal/Telegram set for the homeserver domain is used.
	Platforms []PlatformSettings `yaml:"platforms"`

	registry *Registry `yaml:"-"`
}

// SyncSettings tunes the sync pump.
type SyncSettings struct {
	PollTimeoutSeconds int `yaml:"poll_timeout_seconds"`
	TimelineLimit      int `yaml:"timeline_limit"`
	BackoffMinSeconds  int `yaml:"backoff_min_seconds"`
	BackoffMaxSeconds  int `yaml:"backoff_max_seconds"`
}

// QRSettings tunes the QR login handshake.
type QRSettings struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	GreetWaitSeconds    int `yaml:"greet_wait_seconds"`
	DeadlineSeconds     int `yaml:"deadline_seconds"`
	PageLimit           int `yaml:"page_limit"`
}

// ArchiveSettings points at the document store.
type ArchiveSettings struct {
	URI        string `yaml:"uri" env:"BRIDGEWATCH_ARCHIVE_URI"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// PlatformSettings is the yaml form of a BridgeConfig.
type PlatformSettings struct {
	Name           string   `yaml:"name"`
	Bot            string   `yaml:"bot"`
	NameIndicators []string `yaml:"name_indicators"`
	DirectMarkers  []string `yaml:"direct_markers"`
	SenderPattern  string   `yaml:"sender_pattern"`
	QRCommand      string   `yaml:"qr_command"`
}

// LoadConfig reads a yaml config file, applies environment overrides, and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PostProcess validates required fields and builds the platform registry.
func (c *Config) PostProcess() error {
	if c.Homeserver == "" {
		return fmt.Errorf("homeserver is required")
	}
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	domain, err := serverDomain(c.Homeserver)
	if err != nil {
		return err
	}
	if c.Archive.Database == "" {
		c.Archive.Database = "bridgewatch"
	}
	if c.Archive.Collection == "" {
		c.Archive.Collection = "messages"
	}

	platforms := DefaultPlatforms(domain)
	if len(c.Platforms) > 0 {
		platforms = platforms[:0]
		for _, p := range c.Platforms {
			bc := BridgeConfig{
				Name:           p.Name,
				BotUserID:      id.UserID(p.Bot),
				NameIndicators: p.NameIndicators,
				DirectMarkers:  p.DirectMarkers,
				QRCommand:      p.QRCommand,
			}
			if p.SenderPattern != "" {
				bc.SenderPattern, err = regexp.Compile(p.SenderPattern)
				if err != nil {
					return fmt.Errorf("platform %q: invalid sender pattern: %w", p.Name, err)
				}
			}
			platforms = append(platforms, bc)
		}
	}
	c.registry, err = NewRegistry(platforms...)
	return err
}

// Registry returns the platform registry built by PostProcess.
func (c *Config) Registry() *Registry {
	return c.registry
}

// BlacklistSet returns the configured blacklist as a set.
func (c *Config) BlacklistSet() Blacklist {
	bl := make(Blacklist, len(c.Blacklist))
	for _, r := range c.Blacklist {
		bl[id.RoomID(r)] = struct{}{}
	}
	return bl
}

// PumpConfig converts the sync settings to pump tunables.
func (c *Config) PumpConfig() PumpConfig {
	return PumpConfig{
		PollTimeout:   time.Duration(c.Sync.PollTimeoutSeconds) * time.Second,
		TimelineLimit: c.Sync.TimelineLimit,
		BackoffMin:    time.Duration(c.Sync.BackoffMinSeconds) * time.Second,
		BackoffMax:    time.Duration(c.Sync.BackoffMaxSeconds) * time.Second,
	}
}

// QRConfig converts the QR settings to orchestrator tunables.
func (c *Config) QRConfig() QRConfig {
	return QRConfig{
		PollInterval: time.Duration(c.QR.PollIntervalSeconds) * time.Second,
		GreetWait:    time.Duration(c.QR.GreetWaitSeconds) * time.Second,
		Deadline:     time.Duration(c.QR.DeadlineSeconds) * time.Second,
		PageLimit:    c.QR.PageLimit,
	}
}

// serverDomain extracts the homeserver domain from its base URL.
func serverDomain(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("cannot extract domain from %q", serverURL)
	}
	return u.Hostname(), nil
}
