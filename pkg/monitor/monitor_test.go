// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"strings"
	"testing"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Homeserver: "https://matrix." + testDomain,
		Username:   "researcher",
		Password:   "pw",
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	return cfg
}

func TestMonitor_OperationsRequireLogin(t *testing.T) {
	t.Parallel()
	m := New(newTestConfig(t), &fakeSink{}, testLogger())
	ctx := context.Background()

	results := map[string]Result{
		"ListRooms":       m.ListRooms(ctx, RoomJoined, false),
		"ApproveRoom":     m.ApproveRoom(ctx, "!r:example.com"),
		"DisableRoom":     m.DisableRoom(ctx, "!r:example.com"),
		"GenerateLoginQR": m.GenerateLoginQR(ctx, "whatsapp"),
		"RunForever":      m.RunForever(ctx),
		"DeleteAccount":   m.DeleteAccount(ctx),
	}
	for op, res := range results {
		if res.Status != StatusError {
			t.Errorf("%s: got status %q, want %q", op, res.Status, StatusError)
		}
		if !strings.Contains(res.Message, "not authenticated") {
			t.Errorf("%s: message %q does not mention authentication", op, res.Message)
		}
	}
}

func TestMonitor_HealthBeforeLogin(t *testing.T) {
	t.Parallel()
	m := New(newTestConfig(t), &fakeSink{}, testLogger())

	h := m.Health()
	if h.Healthy {
		t.Error("Healthy: got true before login")
	}
	if h.Failures != 0 {
		t.Errorf("Failures: got %d, want 0", h.Failures)
	}
}

func TestResultShapes(t *testing.T) {
	t.Parallel()
	ok := succeed("done", 42)
	if ok.Status != StatusSuccess || ok.Message != "done" || ok.Payload != 42 {
		t.Errorf("succeed: got %+v", ok)
	}
	bad := fail(ErrQRTimeout)
	if bad.Status != StatusError || bad.Message == "" || bad.Payload != nil {
		t.Errorf("fail: got %+v", bad)
	}
}
