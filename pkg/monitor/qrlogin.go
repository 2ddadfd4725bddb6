// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// QRConfig tunes the login handshake. Zero values pick the defaults below.
type QRConfig struct {
	// PollInterval is the delay between timeline checks while waiting for
	// the bot's reply.
	PollInterval time.Duration
	// GreetWait bounds the wait for the bot to acknowledge the greeting.
	// Expiry here is tolerated; some bridges ignore greetings.
	GreetWait time.Duration
	// Deadline bounds the wait for the login code after the QR command.
	Deadline time.Duration
	// PageLimit is the number of recent messages fetched per check.
	PageLimit int
}

const (
	defaultQRPollInterval = 2 * time.Second
	defaultQRGreetWait    = 10 * time.Second
	defaultQRDeadline     = 45 * time.Second
	defaultQRPageLimit    = 20
)

func (cfg *QRConfig) applyDefaults() {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultQRPollInterval
	}
	if cfg.GreetWait <= 0 {
		cfg.GreetWait = defaultQRGreetWait
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultQRDeadline
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultQRPageLimit
	}
}

// QRResult is a recovered login payload rendered as a scannable code.
type QRResult struct {
	Platform string `json:"platform"`
	Payload  string `json:"payload"`
	PNG      []byte `json:"png"`
}

// QROrchestrator bootstraps a platform login by talking to its bridge bot
// the way a human client would: open a fresh direct room, greet, ask for a
// login QR, and scrape the bot's reply for the payload. The temporary room
// is always torn down, freeing the bot-side session slot.
type QROrchestrator struct {
	api      matrixAPI
	registry *Registry
	catalog  *Catalog
	cfg      QRConfig
	log      zerolog.Logger
}

// NewQROrchestrator assembles an orchestrator. The catalog is used for
// stale-session cleanup and may be nil.
func NewQROrchestrator(api matrixAPI, registry *Registry, catalog *Catalog, cfg QRConfig, log zerolog.Logger) *QROrchestrator {
	cfg.applyDefaults()
	return &QROrchestrator{
		api:      api,
		registry: registry,
		catalog:  catalog,
		cfg:      cfg,
		log:      log.With().Str("component", "qr_login").Logger(),
	}
}

const qrGreeting = "hi"

// GenerateLoginQR runs the handshake for one platform. It returns
// ErrQRTimeout when the bot produces no image-typed reply before the
// deadline; HTTP failures abort immediately. Either way the temporary room
// is left before returning.
func (o *QROrchestrator) GenerateLoginQR(ctx context.Context, platform string) (*QRResult, error) {
	p, ok := o.registry.Get(platform)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, platform)
	}

	o.leaveStaleDirectChats(ctx, p)

	resp, err := o.api.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Visibility: "private",
		Preset:     "trusted_private_chat",
		IsDirect:   true,
		Invite:     []id.UserID{p.BotUserID},
	})
	if err != nil {
		return nil, &TransportError{Op: "create login room", Err: err}
	}
	roomID := resp.RoomID
	log := o.log.With().Str("platform", p.Name).Str("room_id", roomID.String()).Logger()
	defer func() {
		// Cleanup must run even when the caller's context is already gone.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := o.api.LeaveRoom(cleanupCtx, roomID); err != nil {
			log.Warn().Err(err).Msg("Failed to leave login room")
		} else {
			log.Debug().Msg("Left login room")
		}
	}()

	if _, err := o.api.SendText(ctx, roomID, qrGreeting); err != nil {
		return nil, &TransportError{Op: "send greeting", Err: err}
	}
	// Wait for the bot to show up in the transcript before asking for the
	// code. Expiry is tolerated: not every bridge acknowledges a greeting.
	if _, err := o.waitForBotMessage(ctx, roomID, p.BotUserID, o.cfg.GreetWait, anyMessage); err != nil && !errors.Is(err, ErrQRTimeout) {
		return nil, err
	}

	if _, err := o.api.SendText(ctx, roomID, p.QRCommand); err != nil {
		return nil, &TransportError{Op: "send login command", Err: err}
	}
	evt, err := o.waitForBotMessage(ctx, roomID, p.BotUserID, o.cfg.Deadline, isImageMessage)
	if err != nil {
		return nil, err
	}

	payload := extractLoginPayload(evt.Content.AsMessage().Body)
	png, err := qrcode.Encode(payload, qrcode.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	log.Info().Msg("Recovered login payload")
	return &QRResult{Platform: p.Name, Payload: payload, PNG: png}, nil
}

// leaveStaleDirectChats leaves any existing direct chat with the platform's
// bot so the bridge frees its previous login slot. Failures only log: a
// stale room must not block a new handshake.
func (o *QROrchestrator) leaveStaleDirectChats(ctx context.Context, p BridgeConfig) {
	if o.catalog == nil {
		return
	}
	rooms, err := o.catalog.ListRooms(ctx, RoomJoined, false, nil)
	if err != nil {
		o.log.Warn().Err(err).Msg("Stale-chat sweep failed")
		return
	}
	for _, rec := range rooms {
		if rec.Platform != p.Name || rec.IsGroup {
			continue
		}
		if _, err := o.api.LeaveRoom(ctx, rec.ID); err != nil {
			o.log.Warn().Err(err).Str("room_id", rec.ID.String()).Msg("Failed to leave stale direct chat")
		} else {
			o.log.Debug().Str("room_id", rec.ID.String()).Msg("Left stale direct chat")
		}
	}
}

// waitForBotMessage polls the room's recent transcript (reverse
// chronological, bounded page) until a message from the bot satisfies the
// predicate or the deadline expires with ErrQRTimeout.
func (o *QROrchestrator) waitForBotMessage(ctx context.Context, roomID id.RoomID, bot id.UserID, deadline time.Duration, match func(*event.MessageEventContent) bool) (*event.Event, error) {
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()
	for {
		resp, err := o.api.Messages(ctx, roomID, "", "", mautrix.DirectionBackward, nil, o.cfg.PageLimit)
		if err != nil {
			return nil, &TransportError{Op: "page messages", Err: err}
		}
		for _, evt := range resp.Chunk {
			if evt.Sender != bot || evt.Type != event.EventMessage {
				continue
			}
			if err := evt.Content.ParseRaw(evt.Type); err != nil && !errors.Is(err, event.ErrContentAlreadyParsed) {
				continue
			}
			if match(evt.Content.AsMessage()) {
				return evt, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, ErrQRTimeout
		case <-time.After(o.cfg.PollInterval):
		}
	}
}

func anyMessage(*event.MessageEventContent) bool {
	return true
}

func isImageMessage(msg *event.MessageEventContent) bool {
	return msg.MsgType == event.MsgImage
}

// extractLoginPayload pulls the scannable payload out of the bot's image
// body. The Signal and Telegram bridges embed a URI-style link; the WhatsApp
// bridge puts the structured pairing code in the body directly, in which
// case the whole body is the payload.
func extractLoginPayload(body string) string {
	for _, field := range strings.Fields(body) {
		if strings.Contains(field, "://") {
			return field
		}
	}
	return body
}
