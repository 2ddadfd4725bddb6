// Copyright 2024-2026 Aiku AI

package monitor

import (
	"context"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// matrixAPI is the slice of the Matrix client-server API the monitor uses.
// *mautrix.Client satisfies it; tests inject fakes instead of requiring a
// live homeserver.
type matrixAPI interface {
	JoinedRooms(ctx context.Context) (*mautrix.RespJoinedRooms, error)
	State(ctx context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error)
	SyncRequest(ctx context.Context, timeout int, since, filterID string, fullState bool, setPresence event.Presence) (*mautrix.RespSync, error)
	CreateRoom(ctx context.Context, req *mautrix.ReqCreateRoom) (*mautrix.RespCreateRoom, error)
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	Messages(ctx context.Context, roomID id.RoomID, from, to string, dir mautrix.Direction, filter *mautrix.FilterPart, limit int) (*mautrix.RespMessages, error)
	JoinRoomByID(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error)
	LeaveRoom(ctx context.Context, roomID id.RoomID, optionalReq ...*mautrix.ReqLeave) (*mautrix.RespLeaveRoom, error)
}

var _ matrixAPI = (*mautrix.Client)(nil)
