package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/analytics-service/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultConnectTimeout = 10 * time.Second

// Connect opens a client for cfg.URI, verifies it with a primary ping and
// returns the configured database. Documents decode into bson.M so nested
// metadata round-trips as plain maps.
func Connect(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName("analytics-service").
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return client, client.Database(DatabaseName(cfg)), nil
}

// DatabaseName prefers the explicit database setting and falls back to the
// path of the connection URI.
func DatabaseName(cfg config.MongoConfig) string {
	if cfg.Database != "" {
		return cfg.Database
	}
	if cs, err := connstring.ParseAndValidate(cfg.URI); err == nil && cs.Database != "" {
		return cs.Database
	}
	return "analyticsdb"
}
