// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"errors"
	"strings"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// RoomKind distinguishes rooms the user has joined from pending invites.
type RoomKind string

const (
	RoomJoined  RoomKind = "joined"
	RoomInvited RoomKind = "invited"
)

// RoomRecord is the classification result for one bridge room. Records are
// re-derived on every catalog refresh and live only in process memory.
type RoomRecord struct {
	ID         id.RoomID `json:"room_id"`
	Name       string    `json:"name,omitempty"`
	Platform   string    `json:"platform"`
	Membership RoomKind  `json:"membership"`
	IsGroup    bool      `json:"is_group"`
	// Bot is the bridge bot that owns the room. Messages authored by it are
	// relay echoes and are never archived.
	Bot id.UserID `json:"bot"`
}

// Classifier decides which bridge a room belongs to from its state events.
type Classifier struct {
	registry *Registry
}

// NewClassifier creates a classifier over the given platform registry.
func NewClassifier(registry *Registry) *Classifier {
	return &Classifier{registry: registry}
}

// Classify inspects a room's state event list (full state for a joined room,
// invite_state for a pending invite) and returns the matching record. The
// second return value is false when no configured platform matches; such
// rooms are invisible to the catalog.
//
// Platforms are tested in registration order; for each one, a joined
// membership event for its bot OR a name-indicator substring match wins.
func (c *Classifier) Classify(roomID id.RoomID, membership RoomKind, state []*event.Event) (*RoomRecord, bool) {
	name := roomDisplayName(state)
	for _, p := range c.registry.Platforms() {
		if !hasJoinedMember(state, p.BotUserID) && !containsAny(name, p.NameIndicators) {
			continue
		}
		return &RoomRecord{
			ID:         roomID,
			Name:       name,
			Platform:   p.Name,
			Membership: membership,
			IsGroup:    isGroupName(name, p),
			Bot:        p.BotUserID,
		}, true
	}
	return nil, false
}

// roomDisplayName recovers the room name from an m.room.name state event, or
// "" if the room was never named.
func roomDisplayName(state []*event.Event) string {
	for _, evt := range state {
		if evt.Type != event.StateRoomName {
			continue
		}
		if err := evt.Content.ParseRaw(evt.Type); err != nil && !errors.Is(err, event.ErrContentAlreadyParsed) {
			continue
		}
		return evt.Content.AsRoomName().Name
	}
	return ""
}

// hasJoinedMember reports whether the state list contains a member event for
// the given user with membership "join".
func hasJoinedMember(state []*event.Event, user id.UserID) bool {
	for _, evt := range state {
		if evt.Type != event.StateMember || evt.GetStateKey() != user.String() {
			continue
		}
		if err := evt.Content.ParseRaw(evt.Type); err != nil && !errors.Is(err, event.ErrContentAlreadyParsed) {
			continue
		}
		if evt.Content.AsMember().Membership == event.MembershipJoin {
			return true
		}
	}
	return false
}

func containsAny(name string, indicators []string) bool {
	if name == "" {
		return false
	}
	for _, ind := range indicators {
		if strings.Contains(name, ind) {
			return true
		}
	}
	return false
}

// isGroupName applies the naming heuristic for group vs direct chats: a name
// carrying one of the platform's direct-chat markers is a direct chat, any
// other named room is a group, and an unnamed room is not a group.
func isGroupName(name string, p BridgeConfig) bool {
	if name == "" {
		return false
	}
	for _, marker := range p.DirectMarkers {
		if strings.Contains(name, marker) {
			return false
		}
	}
	return true
}
