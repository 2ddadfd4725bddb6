// Copyright 2024-2026 Aiku AI

package monitor

import (
	"testing"

	"maunium.net/go/mautrix/id"
)

func TestNewRegistry_Validation(t *testing.T) {
	t.Parallel()
	valid := BridgeConfig{Name: "whatsapp", BotUserID: id.NewUserID("whatsappbot", testDomain)}

	tests := []struct {
		name      string
		platforms []BridgeConfig
		wantErr   bool
	}{
		{"valid", []BridgeConfig{valid}, false},
		{"empty name", []BridgeConfig{{BotUserID: "@bot:example.com"}}, true},
		{"no bot", []BridgeConfig{{Name: "whatsapp"}}, true},
		{"duplicate name", []BridgeConfig{valid, valid}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewRegistry(tt.platforms...)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewRegistry: err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_Get(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)

	p, ok := reg.Get("signal")
	if !ok {
		t.Fatal("expected the signal platform")
	}
	if p.BotUserID != testBotSignal {
		t.Errorf("BotUserID: got %q, want %q", p.BotUserID, testBotSignal)
	}
	if _, ok := reg.Get("irc"); ok {
		t.Error("Get(irc): got ok, want miss")
	}
}

func TestRegistry_OrderIsPreserved(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(t)
	platforms := reg.Platforms()
	want := []string{"whatsapp", "signal", "telegram"}
	for i, name := range want {
		if platforms[i].Name != name {
			t.Errorf("platform %d: got %q, want %q", i, platforms[i].Name, name)
		}
	}
}
