// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/jsontime"
	"maunium.net/go/mautrix"
)

// PumpConfig tunes the long-poll loop. Zero values pick the defaults below.
type PumpConfig struct {
	// PollTimeout is the server-side long-poll wait.
	PollTimeout time.Duration
	// TimelineLimit bounds each room's timeline per poll, capping memory and
	// catch-up latency after an outage.
	TimelineLimit int
	// BackoffMin and BackoffMax bound the exponential retry delay after a
	// failed poll.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

const (
	defaultPollTimeout   = 30 * time.Second
	defaultTimelineLimit = 50
	defaultBackoffMin    = 2 * time.Second
	defaultBackoffMax    = 60 * time.Second
)

func (cfg *PumpConfig) applyDefaults() {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.TimelineLimit <= 0 {
		cfg.TimelineLimit = defaultTimelineLimit
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = defaultBackoffMin
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = defaultBackoffMax
	}
}

// Health is a point-in-time snapshot of the pump for the dashboard layer.
type Health struct {
	Healthy     bool               `json:"healthy"`
	LastSuccess jsontime.UnixMilli `json:"last_success,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	Failures    int                `json:"consecutive_failures"`
}

// Pump drains the homeserver's event stream. It holds the sync cursor,
// long-polls for new activity, and feeds message events from known bridge
// rooms through the normalizer into the sink. It never terminates on its
// own: steady-state faults degrade to a capped-backoff retry loop, and only
// context cancellation stops it.
//
// The cursor is replaced only after a successful poll; a failed poll retries
// with the same, unconsumed cursor, so a transient outage replays nothing
// and loses nothing upstream. Delivery downstream is at-least-once.
type Pump struct {
	api        matrixAPI
	catalog    *Catalog
	normalizer *Normalizer
	sink       Sink
	cfg        PumpConfig
	log        zerolog.Logger

	cursor string

	healthMu sync.Mutex
	health   Health
}

// NewPump assembles a pump. The catalog decides which rooms are visible to
// archiving; everything else in the stream is skipped.
func NewPump(api matrixAPI, catalog *Catalog, normalizer *Normalizer, sink Sink, cfg PumpConfig, log zerolog.Logger) *Pump {
	cfg.applyDefaults()
	return &Pump{
		api:        api,
		catalog:    catalog,
		normalizer: normalizer,
		sink:       sink,
		cfg:        cfg,
		log:        log.With().Str("component", "sync_pump").Logger(),
	}
}

// Health returns the current health snapshot.
func (p *Pump) Health() Health {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()
	return p.health
}

func (p *Pump) recordSuccess() {
	p.healthMu.Lock()
	p.health = Health{Healthy: true, LastSuccess: jsontime.UM(time.Now().UTC())}
	p.healthMu.Unlock()
}

func (p *Pump) recordFailure(err error) {
	p.healthMu.Lock()
	p.health.Healthy = false
	p.health.LastError = err.Error()
	p.health.Failures++
	p.healthMu.Unlock()
}

func (p *Pump) filterJSON() string {
	return fmt.Sprintf(`{"room":{"timeline":{"limit":%d}}}`, p.cfg.TimelineLimit)
}

// Run primes the cursor and polls until the context is cancelled. Only a
// failed initial sync is fatal; every later fault is retried indefinitely
// with exponential backoff. Cancellation is cooperative and checked once per
// cycle, so worst-case shutdown latency is one poll timeout.
func (p *Pump) Run(ctx context.Context) error {
	if err := p.prime(ctx); err != nil {
		return err
	}
	backoff := p.cfg.BackoffMin
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp, err := p.api.SyncRequest(ctx, int(p.cfg.PollTimeout.Milliseconds()), p.cursor, p.filterJSON(), false, "")
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.recordFailure(err)
			p.log.Warn().Err(err).Dur("backoff", backoff).Msg("Poll failed, retrying with same cursor")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, p.cfg.BackoffMax)
			continue
		}
		backoff = p.cfg.BackoffMin
		p.cursor = resp.NextBatch
		p.recordSuccess()
		p.dispatch(ctx, resp)
	}
}

// prime issues the initial sync that establishes the first cursor. Events
// before that cursor are intentionally dropped: only activity from the
// monitor's start time onward is archived.
func (p *Pump) prime(ctx context.Context) error {
	resp, err := p.api.SyncRequest(ctx, 0, "", p.filterJSON(), false, "")
	if err != nil {
		return &TransportError{Op: "initial sync", Err: err}
	}
	p.cursor = resp.NextBatch
	p.recordSuccess()
	p.log.Info().Msg("Primed sync cursor")
	return nil
}

// dispatch walks the joined-room timelines of one sync response. Rooms
// outside the bridge catalog are invisible to archiving even if the user is
// a member; within a room, events are handled synchronously in
// server-delivered order. A sink failure drops that record and moves on.
func (p *Pump) dispatch(ctx context.Context, resp *mautrix.RespSync) {
	for roomID, room := range resp.Rooms.Join {
		rec, known := p.catalog.Lookup(roomID)
		if !known {
			continue
		}
		for _, evt := range room.Timeline.Events {
			evt.RoomID = roomID
			msg, ok := p.normalizer.Normalize(rec, evt)
			if !ok {
				continue
			}
			if err := p.sink.Insert(ctx, msg); err != nil {
				p.log.Error().Err(err).
					Str("event_id", msg.EventID).
					Str("room_id", msg.RoomID).
					Msg("Archive write failed, record dropped")
				continue
			}
			p.log.Debug().
				Str("event_id", msg.EventID).
				Str("platform", msg.Platform).
				Str("room_id", msg.RoomID).
				Msg("Archived message")
		}
	}
}
