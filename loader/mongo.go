//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of DQETL.
//
// DQETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// DQETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with DQETL. If not, see https://www.gnu.org/licenses/.

package loader

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/aaronlmathis/dqetl"
	"github.com/aaronlmathis/dqetl/schema"
	"github.com/aaronlmathis/dqetl/store"
)

// MongoOptions configures a MongoLoader.
type MongoOptions struct {
	Policy store.ConflictPolicy
	// Transactions wraps each dataset in a session transaction (replica set required).
	Transactions bool
	AuditUser    string
}

// MongoLoader upserts datasets into collections keyed by _id.
type MongoLoader struct {
	db   *mongo.Database
	opts MongoOptions
	log  *zap.Logger
	now  func() time.Time
}

// ConnectMongo connects and pings the server at uri.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &LoaderError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &LoaderError{Op: "ping", Err: err}
	}
	return client, nil
}

// NewMongoLoader loads into the named database of client.
func NewMongoLoader(client *mongo.Client, database string, log *zap.Logger, opts MongoOptions) *MongoLoader {
	if opts.Policy == "" {
		opts.Policy = store.ConflictUpdate
	}
	if opts.AuditUser == "" {
		opts.AuditUser = schema.DefaultAuditUser
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MongoLoader{db: client.Database(database), opts: opts, log: log, now: time.Now}
}

// Load upserts every record of ds into collection. Without transactions the
// models go out as one ordered bulk write, so a failure stops at that record.
func (m *MongoLoader) Load(ctx context.Context, ds *dqetl.Dataset, collection string) (LoadStats, error) {
	stats := LoadStats{Table: collection}
	if ds.Len() == 0 {
		return stats, nil
	}
	start := time.Now()

	models, err := upsertModels(ds, collection, m.opts, m.now())
	if err != nil {
		return stats, &LoaderError{Table: collection, Op: "columns", Err: err}
	}

	coll := m.db.Collection(collection)
	bulkOpts := options.BulkWrite().SetOrdered(true)

	if m.opts.Transactions {
		sess, err := m.db.Client().StartSession()
		if err != nil {
			return stats, &LoaderError{Table: collection, Op: "session", Err: err}
		}
		defer sess.EndSession(ctx)

		_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return coll.BulkWrite(sc, models, bulkOpts)
		})
		if err != nil {
			return stats, &LoaderError{Table: collection, Op: "transaction", Err: err}
		}
	} else if _, err := coll.BulkWrite(ctx, models, bulkOpts); err != nil {
		return stats, &LoaderError{Table: collection, Op: "bulk_write", Err: err}
	}

	stats.Rows = int64(ds.Len())
	stats.Statements = 1
	stats.Duration = time.Since(start)
	m.log.Debug("dataset loaded",
		zap.String("collection", collection),
		zap.Int64("rows", stats.Rows),
		zap.Bool("transaction", m.opts.Transactions),
		zap.Duration("elapsed", stats.Duration))
	return stats, nil
}

// upsertModels builds one upserting UpdateOne per record, keyed by _id.
func upsertModels(ds *dqetl.Dataset, collection string, opts MongoOptions, now time.Time) ([]mongo.WriteModel, error) {
	columns, key, err := storeColumns(ds)
	if err != nil {
		return nil, err
	}
	coerce := coercers(collection, columns)

	models := make([]mongo.WriteModel, 0, ds.Len())
	for _, rec := range ds.Records {
		var id interface{}
		fields := bson.M{}
		for i, col := range ds.Columns {
			v := coerce[i](rec[col])
			if columns[i] == key {
				id = v
				continue
			}
			fields[columns[i]] = v
		}
		if id == nil {
			return nil, fmt.Errorf("record without %s", key)
		}

		var update bson.M
		if opts.Policy == store.ConflictIgnore {
			fields[schema.CreatedBy] = opts.AuditUser
			fields[schema.CreatedAt] = now
			fields[schema.UpdatedBy] = opts.AuditUser
			fields[schema.UpdatedAt] = now
			update = bson.M{"$setOnInsert": fields}
		} else {
			fields[schema.UpdatedBy] = opts.AuditUser
			update = bson.M{
				"$set":         fields,
				"$setOnInsert": bson.M{schema.CreatedBy: opts.AuditUser, schema.CreatedAt: now},
				"$currentDate": bson.M{schema.UpdatedAt: true},
			}
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(update).
			SetUpsert(true))
	}
	return models, nil
}
