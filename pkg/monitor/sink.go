// Copyright 2024-2026 Aiku AI

package monitor

import "context"

// Sink persists canonical message records. Insert must be idempotent on
// EventID: the pump may redeliver an event after a crash between a
// successful poll and a successful insert.
type Sink interface {
	Insert(ctx context.Context, rec *MessageRecord) error
}
