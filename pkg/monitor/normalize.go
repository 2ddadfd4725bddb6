// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"errors"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MessageRecord is the canonical, platform-agnostic form of one inbound
// message, ready for archival. EventID doubles as the sink's idempotency
// key. Records are immutable once created.
type MessageRecord struct {
	EventID    string    `bson:"_id" json:"event_id"`
	BridgeUser string    `bson:"bridge_user" json:"bridge_user"`
	RoomID     string    `bson:"room_id" json:"room_id"`
	RoomName   string    `bson:"room_name" json:"room_name"`
	Sender     string    `bson:"sender" json:"sender"`
	Body       string    `bson:"body" json:"body"`
	Platform   string    `bson:"platform" json:"platform"`
	// Timestamp is the origin wall clock of the event as HH:MM:SS (UTC).
	Timestamp  string    `bson:"timestamp" json:"timestamp"`
	IngestedAt time.Time `bson:"ingested_at" json:"ingested_at"`
}

// Placeholder bodies for non-text message kinds.
const (
	bodyImage    = "Image"
	bodyAudio    = "Audio"
	bodyVideo    = "Video"
	bodyFile     = "File"
	bodyLocation = "Location"
	bodyEmote    = "Emote"
	bodyUnknown  = "Unknown"
)

// Normalizer converts raw room events into canonical records. It is a pure
// mapping apart from the ingestion timestamp.
type Normalizer struct {
	self     id.UserID
	registry *Registry
	now      func() time.Time
}

// NewNormalizer creates a normalizer attributing records to the given
// monitor identity.
func NewNormalizer(self id.UserID, registry *Registry) *Normalizer {
	return &Normalizer{self: self, registry: registry, now: time.Now}
}

// Normalize maps one raw event from a known bridge room to a canonical
// record. The second return value is false when the event must be skipped:
// non-message events, events with no recognizable message kind (redacted
// messages included), and everything authored by the room's own bridge bot,
// whose relay echoes would otherwise be double-counted.
func (n *Normalizer) Normalize(room *RoomRecord, evt *event.Event) (*MessageRecord, bool) {
	if evt.Type != event.EventMessage {
		return nil, false
	}
	if evt.Sender == room.Bot {
		return nil, false
	}
	if err := evt.Content.ParseRaw(evt.Type); err != nil && !errors.Is(err, event.ErrContentAlreadyParsed) {
		return nil, false
	}
	msg := evt.Content.AsMessage()
	if msg.MsgType == "" {
		return nil, false
	}

	sender := localpart(evt.Sender)
	body := canonicalBody(msg)
	if msg.MsgType == event.MsgText {
		if p, ok := n.registry.Get(room.Platform); ok && p.SenderPattern != nil {
			if m := p.SenderPattern.FindStringSubmatch(body); m != nil {
				sender = m[1]
				body = m[2]
			}
		}
	}

	return &MessageRecord{
		EventID:    evt.ID.String(),
		BridgeUser: n.self.String(),
		RoomID:     room.ID.String(),
		RoomName:   room.Name,
		Sender:     sender,
		Body:       body,
		Platform:   room.Platform,
		Timestamp:  time.UnixMilli(evt.Timestamp).UTC().Format("15:04:05"),
		IngestedAt: n.now().UTC(),
	}, true
}

// canonicalBody maps every known message kind to its canonical body. The
// mapping is total: kinds outside the closed set become "Unknown" regardless
// of their literal body.
func canonicalBody(msg *event.MessageEventContent) string {
	switch msg.MsgType {
	case event.MsgText:
		return msg.Body
	case event.MsgImage:
		return bodyImage
	case event.MsgAudio:
		return bodyAudio
	case event.MsgVideo:
		return bodyVideo
	case event.MsgFile:
		return bodyFile
	case event.MsgLocation:
		return bodyLocation
	case event.MsgEmote:
		return bodyEmote
	default:
		return bodyUnknown
	}
}

// localpart strips the sigil and domain from a Matrix user ID:
// "@alice:example.com" becomes "alice".
func localpart(user id.UserID) string {
	local := strings.TrimPrefix(string(user), "@")
	if i := strings.IndexByte(local, ':'); i >= 0 {
		local = local[:i]
	}
	return local
}
