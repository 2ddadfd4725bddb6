// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package monitor watches the bridge rooms of a Matrix homeserver that
// gateways WhatsApp, Signal, and Telegram, and archives every inbound
// message into a document store.
//
// # Core Types
//
// [Session] owns one user's authenticated connection: password login,
// admin-API account provisioning, and deletion.
//
// [Catalog] discovers which joined and invited rooms belong to which bridge,
// using [Classifier] over room state: bot-membership evidence first, room
// name indicators second, registry order as the tie-break. The resulting
// index is an in-memory cache rebuilt on every refresh.
//
// [Pump] is the long-poll loop. It primes a sync cursor, drains the event
// stream with a bounded per-room timeline window, and hands message events
// from cataloged rooms to [Normalizer], which maps every payload kind onto
// one canonical [MessageRecord]. Records land in a [Sink] keyed by event ID.
//
// [QROrchestrator] bootstraps a platform login by conversing with the bridge
// bot: fresh direct room, greeting, login command, bounded polling for the
// image reply carrying the payload, teardown.
//
// [Monitor] wraps all of the above behind the operation surface consumed by
// the dashboard layer; every operation returns the uniform [Result] shape.
//
// # Echo Prevention
//
// Events authored by a room's own bridge bot are relay echoes of traffic the
// bridge itself produced and are never archived; only far-end participants
// and native server users are.
package monitor
