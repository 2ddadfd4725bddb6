// Copyright 2024-2026 Aiku AI

package monitor

import (
	"fmt"
	"regexp"

	"maunium.net/go/mautrix/id"
)

// BridgeConfig describes one bridged platform: the bot account that owns its
// rooms on the homeserver, the substrings its room names carry, and how its
// relay lines and login handshake look. Values are immutable after
// construction.
type BridgeConfig struct {
	// Name is the platform identifier, e.g. "whatsapp".
	Name string
	// BotUserID is the Matrix user ID of the bridge bot, e.g. @whatsappbot:example.com.
	BotUserID id.UserID
	// NameIndicators are substrings that mark a room name as belonging to
	// this bridge when no bot membership evidence is available.
	NameIndicators []string
	// DirectMarkers are substrings that mark a named room as a direct chat
	// rather than a group room.
	DirectMarkers []string
	// SenderPattern splits a relay-formatted body into "sender" and
	// "message" groups. May be nil if the bridge never relays in that form.
	SenderPattern *regexp.Regexp
	// QRCommand is the message that asks the bot for a login QR code.
	QRCommand string
}

// Registry holds the configured platforms in registration order. The order is
// load-bearing: room classification tests platforms first to last, so the
// first-registered platform wins when a room matches more than one.
type Registry struct {
	platforms []BridgeConfig
	byName    map[string]int
}

// NewRegistry builds a registry from the given platforms. Platform names must
// be unique and bot user IDs must be set.
func NewRegistry(platforms ...BridgeConfig) (*Registry, error) {
	r := &Registry{
		platforms: platforms,
		byName:    make(map[string]int, len(platforms)),
	}
	for i, p := range platforms {
		if p.Name == "" {
			return nil, fmt.Errorf("platform %d has no name", i)
		}
		if p.BotUserID == "" {
			return nil, fmt.Errorf("platform %q has no bot user ID", p.Name)
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate platform %q", p.Name)
		}
		r.byName[p.Name] = i
	}
	return r, nil
}

// Platforms returns the configured platforms in registration order.
func (r *Registry) Platforms() []BridgeConfig {
	return r.platforms
}

// Get looks up a platform by name.
func (r *Registry) Get(name string) (BridgeConfig, bool) {
	i, ok := r.byName[name]
	if !ok {
		return BridgeConfig{}, false
	}
	return r.platforms[i], true
}

// defaultSenderPattern matches the "sender: message" relay format shared by
// the mautrix relaybots.
var defaultSenderPattern = regexp.MustCompile(`(?s)^([^:\n]+): (.+)$`)

// DefaultPlatforms returns the stock WhatsApp/Signal/Telegram bridge
// definitions for a homeserver at the given domain. Registration order
// doubles as the classification tie-break order.
func DefaultPlatforms(domain string) []BridgeConfig {
	return []BridgeConfig{
		{
			Name:           "whatsapp",
			BotUserID:      id.NewUserID("whatsappbot", domain),
			NameIndicators: []string{"WhatsApp", "WA"},
			DirectMarkers:  []string{"(WA)"},
			SenderPattern:  defaultSenderPattern,
			QRCommand:      "login qr",
		},
		{
			Name:           "signal",
			BotUserID:      id.NewUserID("signalbot", domain),
			NameIndicators: []string{"Signal"},
			DirectMarkers:  []string{"Signal"},
			SenderPattern:  defaultSenderPattern,
			QRCommand:      "login qr",
		},
		{
			Name:           "telegram",
			BotUserID:      id.NewUserID("telegrambot", domain),
			NameIndicators: []string{"Telegram"},
			// The Telegram bridge gives no naming signal for direct chats;
			// named rooms are treated as groups, unnamed ones are not.
			DirectMarkers: nil,
			SenderPattern: defaultSenderPattern,
			QRCommand:     "/login",
		},
	}
}
