// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// Status tags a Result as success or error.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the uniform shape every public operation returns to the
// dashboard/API layer.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
}

func succeed(message string, payload any) Result {
	return Result{Status: StatusSuccess, Message: message, Payload: payload}
}

func fail(err error) Result {
	return Result{Status: StatusError, Message: err.Error()}
}

// Monitor ties one user's session, catalog, pump, and QR orchestrator
// together behind the downstream operation surface. One Monitor per end
// user; instances share nothing. Operations on a single Monitor are expected
// to be serialized by the caller: the access token and sync cursor are not
// safe for concurrent use.
type Monitor struct {
	cfg  *Config
	sink Sink
	log  zerolog.Logger

	session    *Session
	catalog    *Catalog
	normalizer *Normalizer
	pump       *Pump
	qr         *QROrchestrator
}

// New creates a monitor from a validated config and an archive sink.
func New(cfg *Config, sink Sink, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		sink:    sink,
		log:     log,
		session: NewSession(cfg.Homeserver, cfg.Username, cfg.Password, cfg.AdminToken, log),
	}
}

// Login authenticates the session and wires up everything that needs the
// authenticated client. It is the prerequisite for every operation except
// Register.
func (m *Monitor) Login(ctx context.Context) Result {
	if err := m.session.Login(ctx); err != nil {
		return fail(err)
	}
	api, err := m.session.Client()
	if err != nil {
		return fail(err)
	}
	registry := m.cfg.Registry()
	m.catalog = NewCatalog(api, registry, m.log)
	m.normalizer = NewNormalizer(m.session.UserID(), registry)
	m.pump = NewPump(api, m.catalog, m.normalizer, m.sink, m.cfg.PumpConfig(), m.log)
	m.qr = NewQROrchestrator(api, registry, m.catalog, m.cfg.QRConfig(), m.log)
	return succeed(fmt.Sprintf("logged in as %s", m.session.UserID()), m.session.UserID())
}

// Register provisions a new homeserver account via the admin credential.
func (m *Monitor) Register(ctx context.Context, username, password string) Result {
	if err := m.session.Register(ctx, username, password); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Result{Status: StatusError, Message: err.Error(), Payload: "conflict"}
		}
		return fail(err)
	}
	return succeed(fmt.Sprintf("registered %s", username), nil)
}

// ListRooms enumerates classified bridge rooms of the given kind, honoring
// the configured blacklist.
func (m *Monitor) ListRooms(ctx context.Context, kind RoomKind, groupOnly bool) Result {
	if m.catalog == nil {
		return fail(ErrNotAuthenticated)
	}
	records, err := m.catalog.ListRooms(ctx, kind, groupOnly, m.cfg.BlacklistSet())
	if err != nil {
		return fail(err)
	}
	return succeed(fmt.Sprintf("%d rooms", len(records)), records)
}

// ApproveRoom joins a pending invite and refreshes the bridge-room index.
func (m *Monitor) ApproveRoom(ctx context.Context, roomID id.RoomID) Result {
	if m.catalog == nil {
		return fail(ErrNotAuthenticated)
	}
	if err := m.catalog.ApproveRoom(ctx, roomID); err != nil {
		return fail(err)
	}
	if err := m.catalog.Refresh(ctx, m.cfg.GroupRoomsOnly, m.cfg.BlacklistSet()); err != nil {
		m.log.Warn().Err(err).Msg("Index refresh after join failed")
	}
	return succeed(fmt.Sprintf("joined %s", roomID), nil)
}

// DisableRoom leaves a room and evicts it from the index.
func (m *Monitor) DisableRoom(ctx context.Context, roomID id.RoomID) Result {
	if m.catalog == nil {
		return fail(ErrNotAuthenticated)
	}
	if err := m.catalog.DisableRoom(ctx, roomID); err != nil {
		return fail(err)
	}
	return succeed(fmt.Sprintf("left %s", roomID), nil)
}

// GenerateLoginQR runs the QR handshake against the platform's bridge bot.
func (m *Monitor) GenerateLoginQR(ctx context.Context, platform string) Result {
	if m.qr == nil {
		return fail(ErrNotAuthenticated)
	}
	res, err := m.qr.GenerateLoginQR(ctx, platform)
	if err != nil {
		return fail(err)
	}
	return succeed(fmt.Sprintf("login code for %s ready", platform), res)
}

// RunForever builds the bridge-room index and drains the event stream until
// the context is cancelled. Cancellation reports success; anything else that
// escapes the pump (failed initial sync) is an error.
func (m *Monitor) RunForever(ctx context.Context) Result {
	if m.pump == nil {
		return fail(ErrNotAuthenticated)
	}
	if err := m.catalog.Refresh(ctx, m.cfg.GroupRoomsOnly, m.cfg.BlacklistSet()); err != nil {
		return fail(err)
	}
	if err := m.pump.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	return succeed("monitor stopped", nil)
}

// DeleteAccount deactivates the logged-in account and tears down the wiring.
func (m *Monitor) DeleteAccount(ctx context.Context) Result {
	if err := m.session.DeleteSelf(ctx); err != nil {
		return fail(err)
	}
	m.catalog = nil
	m.normalizer = nil
	m.pump = nil
	m.qr = nil
	return succeed("account deleted", nil)
}

// Health reports the sync pump's health snapshot for the dashboard layer.
func (m *Monitor) Health() Health {
	if m.pump == nil {
		return Health{}
	}
	return m.pump.Health()
}
