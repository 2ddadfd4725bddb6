// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package archive provides the document-store sinks that persist canonical
// message records, keyed by event ID so replayed deliveries are harmless.
package archive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/aiku/bridgewatch/pkg/monitor"
)

// MongoSink stores records in one MongoDB collection. The event ID is the
// document _id, so the uniqueness constraint lives at the sink and a
// redelivered event is a silent no-op.
type MongoSink struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    zerolog.Logger
}

var _ monitor.Sink = (*MongoSink)(nil)

// NewMongoSink connects to the document store and verifies the connection.
func NewMongoSink(ctx context.Context, uri, database, collection string, log zerolog.Logger) (*MongoSink, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to archive: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("archive unreachable: %w", err)
	}
	return &MongoSink{
		client: client,
		coll:   client.Database(database).Collection(collection),
		log:    log.With().Str("component", "mongo_sink").Logger(),
	}, nil
}

// Insert persists one record. A duplicate event ID means the record was
// already archived by an earlier run and is reported as success.
func (s *MongoSink) Insert(ctx context.Context, rec *monitor.MessageRecord) error {
	_, err := s.coll.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			s.log.Debug().Str("event_id", rec.EventID).Msg("Duplicate event, already archived")
			return nil
		}
		return fmt.Errorf("failed to insert %s: %w", rec.EventID, err)
	}
	return nil
}

// Count returns the number of archived records for one bridge user.
func (s *MongoSink) Count(ctx context.Context, bridgeUser string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"bridge_user": bridgeUser})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Close disconnects from the document store.
func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
