// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package monitor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"go.mau.fi/util/ptr"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// fakeAPI implements matrixAPI with overridable function fields so each test
// scripts only the calls it cares about.
type fakeAPI struct {
	joinedRooms func(ctx context.Context) (*mautrix.RespJoinedRooms, error)
	state       func(ctx context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error)
	syncRequest func(ctx context.Context, timeout int, since, filterID string, fullState bool, setPresence event.Presence) (*mautrix.RespSync, error)
	createRoom  func(ctx context.Context, req *mautrix.ReqCreateRoom) (*mautrix.RespCreateRoom, error)
	sendText    func(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	messages    func(ctx context.Context, roomID id.RoomID, from, to string, dir mautrix.Direction, filter *mautrix.FilterPart, limit int) (*mautrix.RespMessages, error)
	joinRoom    func(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error)
	leaveRoom   func(ctx context.Context, roomID id.RoomID, optionalReq ...*mautrix.ReqLeave) (*mautrix.RespLeaveRoom, error)
}

var _ matrixAPI = (*fakeAPI)(nil)

func (f *fakeAPI) JoinedRooms(ctx context.Context) (*mautrix.RespJoinedRooms, error) {
	if f.joinedRooms == nil {
		return &mautrix.RespJoinedRooms{}, nil
	}
	return f.joinedRooms(ctx)
}

func (f *fakeAPI) State(ctx context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error) {
	if f.state == nil {
		return mautrix.RoomStateMap{}, nil
	}
	return f.state(ctx, roomID)
}

func (f *fakeAPI) SyncRequest(ctx context.Context, timeout int, since, filterID string, fullState bool, setPresence event.Presence) (*mautrix.RespSync, error) {
	if f.syncRequest == nil {
		return &mautrix.RespSync{}, nil
	}
	return f.syncRequest(ctx, timeout, since, filterID, fullState, setPresence)
}

func (f *fakeAPI) CreateRoom(ctx context.Context, req *mautrix.ReqCreateRoom) (*mautrix.RespCreateRoom, error) {
	if f.createRoom == nil {
		return &mautrix.RespCreateRoom{RoomID: "!created:example.com"}, nil
	}
	return f.createRoom(ctx, req)
}

func (f *fakeAPI) SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error) {
	if f.sendText == nil {
		return &mautrix.RespSendEvent{}, nil
	}
	return f.sendText(ctx, roomID, text)
}

func (f *fakeAPI) Messages(ctx context.Context, roomID id.RoomID, from, to string, dir mautrix.Direction, filter *mautrix.FilterPart, limit int) (*mautrix.RespMessages, error) {
	if f.messages == nil {
		return &mautrix.RespMessages{}, nil
	}
	return f.messages(ctx, roomID, from, to, dir, filter, limit)
}

func (f *fakeAPI) JoinRoomByID(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error) {
	if f.joinRoom == nil {
		return &mautrix.RespJoinRoom{RoomID: roomID}, nil
	}
	return f.joinRoom(ctx, roomID)
}

func (f *fakeAPI) LeaveRoom(ctx context.Context, roomID id.RoomID, optionalReq ...*mautrix.ReqLeave) (*mautrix.RespLeaveRoom, error) {
	if f.leaveRoom == nil {
		return &mautrix.RespLeaveRoom{}, nil
	}
	return f.leaveRoom(ctx, roomID, optionalReq...)
}

// fakeSink records inserts and can be told to fail.
type fakeSink struct {
	records []*MessageRecord
	err     error
}

func (s *fakeSink) Insert(_ context.Context, rec *MessageRecord) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

const testDomain = "example.com"

var (
	testBotWhatsApp = id.NewUserID("whatsappbot", testDomain)
	testBotSignal   = id.NewUserID("signalbot", testDomain)
	testBotTelegram = id.NewUserID("telegrambot", testDomain)
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(DefaultPlatforms(testDomain)...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func nameEvent(name string) *event.Event {
	return &event.Event{
		Type:     event.StateRoomName,
		StateKey: ptr.Ptr(""),
		Content:  event.Content{Parsed: &event.RoomNameEventContent{Name: name}},
	}
}

func memberEvent(user id.UserID, membership event.Membership) *event.Event {
	return &event.Event{
		Type:     event.StateMember,
		StateKey: ptr.Ptr(user.String()),
		Sender:   user,
		Content:  event.Content{Parsed: &event.MemberEventContent{Membership: membership}},
	}
}

func messageEvent(eventID string, sender id.UserID, msgType event.MessageType, body string) *event.Event {
	return &event.Event{
		ID:        id.EventID(eventID),
		Type:      event.EventMessage,
		Sender:    sender,
		Timestamp: 1700000000000,
		Content:   event.Content{Parsed: &event.MessageEventContent{MsgType: msgType, Body: body}},
	}
}

func joinedTimeline(next string, rooms map[id.RoomID][]*event.Event) *mautrix.RespSync {
	resp := &mautrix.RespSync{NextBatch: next}
	resp.Rooms.Join = make(map[id.RoomID]*mautrix.SyncJoinedRoom, len(rooms))
	for roomID, events := range rooms {
		room := &mautrix.SyncJoinedRoom{}
		room.Timeline.Events = events
		resp.Rooms.Join[roomID] = room
	}
	return resp
}
