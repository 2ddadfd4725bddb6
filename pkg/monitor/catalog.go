// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Blacklist is a set of room IDs excluded from discovery.
type Blacklist map[id.RoomID]struct{}

// BlacklistOf builds a Blacklist from room IDs.
func BlacklistOf(rooms ...id.RoomID) Blacklist {
	bl := make(Blacklist, len(rooms))
	for _, r := range rooms {
		bl[r] = struct{}{}
	}
	return bl
}

// snapshotFilter bounds the one-off sync used to discover pending invites.
// Invites arrive in invite_state regardless of the timeline limit.
const snapshotFilter = `{"room":{"timeline":{"limit":1}},"presence":{"types":[]},"account_data":{"types":[]}}`

// Catalog discovers and indexes the bridge rooms the user can see. The index
// is an in-memory, rebuildable cache: call Refresh at startup and after any
// join or leave. Not safe for concurrent mutation with a running refresh;
// lookups are guarded for the sync pump's benefit.
type Catalog struct {
	api        matrixAPI
	classifier *Classifier
	log        zerolog.Logger

	mu    sync.RWMutex
	index map[id.RoomID]*RoomRecord
}

// NewCatalog creates a catalog over the given API and registry.
func NewCatalog(api matrixAPI, registry *Registry, log zerolog.Logger) *Catalog {
	return &Catalog{
		api:        api,
		classifier: NewClassifier(registry),
		log:        log.With().Str("component", "catalog").Logger(),
		index:      make(map[id.RoomID]*RoomRecord),
	}
}

// ListRooms enumerates joined rooms or pending invites, drops blacklisted
// IDs, classifies the rest, and optionally keeps only group rooms. Joined
// rooms cost one state lookup each, so the sweep is O(rooms).
func (c *Catalog) ListRooms(ctx context.Context, kind RoomKind, groupOnly bool, blacklist Blacklist) ([]*RoomRecord, error) {
	switch kind {
	case RoomJoined:
		return c.listJoined(ctx, groupOnly, blacklist)
	case RoomInvited:
		return c.listInvited(ctx, groupOnly, blacklist)
	default:
		return nil, fmt.Errorf("unknown room kind %q", kind)
	}
}

func (c *Catalog) listJoined(ctx context.Context, groupOnly bool, blacklist Blacklist) ([]*RoomRecord, error) {
	resp, err := c.api.JoinedRooms(ctx)
	if err != nil {
		return nil, &TransportError{Op: "list joined rooms", Err: err}
	}
	var records []*RoomRecord
	for _, roomID := range resp.JoinedRooms {
		if _, skip := blacklist[roomID]; skip {
			continue
		}
		stateMap, err := c.api.State(ctx, roomID)
		if err != nil {
			return nil, &TransportError{Op: fmt.Sprintf("get state of %s", roomID), Err: err}
		}
		rec, ok := c.classifier.Classify(roomID, RoomJoined, flattenState(stateMap))
		if !ok {
			continue
		}
		if groupOnly && !rec.IsGroup {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Catalog) listInvited(ctx context.Context, groupOnly bool, blacklist Blacklist) ([]*RoomRecord, error) {
	// There is no dedicated invite-listing endpoint; a fresh snapshot sync
	// returns every pending invite with its invite_state.
	resp, err := c.api.SyncRequest(ctx, 0, "", snapshotFilter, false, "")
	if err != nil {
		return nil, &TransportError{Op: "list invites", Err: err}
	}
	var records []*RoomRecord
	for roomID, invite := range resp.Rooms.Invite {
		if _, skip := blacklist[roomID]; skip {
			continue
		}
		rec, ok := c.classifier.Classify(roomID, RoomInvited, invite.State.Events)
		if !ok {
			continue
		}
		if groupOnly && !rec.IsGroup {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Refresh rebuilds the bridge-room index from the current joined rooms.
// groupOnly narrows monitoring to group rooms; blacklisted rooms never enter
// the index.
func (c *Catalog) Refresh(ctx context.Context, groupOnly bool, blacklist Blacklist) error {
	records, err := c.listJoined(ctx, groupOnly, blacklist)
	if err != nil {
		return err
	}
	index := make(map[id.RoomID]*RoomRecord, len(records))
	for _, rec := range records {
		index[rec.ID] = rec
	}
	c.mu.Lock()
	c.index = index
	c.mu.Unlock()
	c.log.Info().Int("rooms", len(index)).Msg("Rebuilt bridge room index")
	return nil
}

// Lookup returns the indexed record for a room, if it is a known bridge room.
func (c *Catalog) Lookup(roomID id.RoomID) (*RoomRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.index[roomID]
	return rec, ok
}

// Size returns the number of indexed bridge rooms.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// ApproveRoom joins a pending invite. Joining a room the user is already in
// is a no-op success on the server side.
func (c *Catalog) ApproveRoom(ctx context.Context, roomID id.RoomID) error {
	if _, err := c.api.JoinRoomByID(ctx, roomID); err != nil {
		return &TransportError{Op: fmt.Sprintf("join %s", roomID), Err: err}
	}
	c.log.Info().Str("room_id", roomID.String()).Msg("Joined room")
	return nil
}

// DisableRoom leaves a joined room and evicts it from the index. Leaving a
// room the user is not in reports ErrAlreadyDone rather than failing.
func (c *Catalog) DisableRoom(ctx context.Context, roomID id.RoomID) error {
	if _, err := c.api.LeaveRoom(ctx, roomID); err != nil {
		if errors.Is(err, mautrix.MForbidden) || errors.Is(err, mautrix.MNotFound) {
			return fmt.Errorf("%w: not a member of %s", ErrAlreadyDone, roomID)
		}
		return &TransportError{Op: fmt.Sprintf("leave %s", roomID), Err: err}
	}
	c.mu.Lock()
	delete(c.index, roomID)
	c.mu.Unlock()
	c.log.Info().Str("room_id", roomID.String()).Msg("Left room")
	return nil
}

// flattenState turns a state map into the flat event list the classifier
// consumes, matching the shape of invite_state.
func flattenState(stateMap mautrix.RoomStateMap) []*event.Event {
	var events []*event.Event
	for _, byKey := range stateMap {
		for _, evt := range byKey {
			events = append(events, evt)
		}
	}
	return events
}
