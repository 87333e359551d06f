package db

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ReportsCollection = "reports"
	UsersCollection   = "users"
	OrphansCollection = "media_orphans"
)

// Store holds the Mongo client and the collections the API works with.
type Store struct {
	Client   *mongo.Client
	Database *mongo.Database

	Reports *mongo.Collection
	Users   *mongo.Collection
	Orphans *mongo.Collection
}

// Connect opens the Mongo connection and pings it.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI not set")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	log.WithFields(log.Fields{
		"uri":      redactURI(uri),
		"database": database,
		"took":     time.Since(start).Round(time.Millisecond).String(),
	}).Info("connected to MongoDB")
	return New(client, database), nil
}

func New(client *mongo.Client, database string) *Store {
	d := client.Database(database)
	return &Store{
		Client:   client,
		Database: d,
		Reports:  d.Collection(ReportsCollection),
		Users:    d.Collection(UsersCollection),
		Orphans:  d.Collection(OrphansCollection),
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Client.Ping(ctx, nil)
}

// Disconnect closes the connection.
func (s *Store) Disconnect() {
	if s == nil || s.Client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Client.Disconnect(ctx); err != nil {
		log.WithError(err).Warn("failed to disconnect MongoDB")
		return
	}
	log.Info("disconnected from MongoDB")
}

// EnsureIndexes creates the indexes the list, geo and mine queries rely
// on. Every index is attempted; failures are collected.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.Reports: {
			{Keys: bson.D{{Key: "location.point", Value: "2dsphere"}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "reportedBy", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		s.Orphans: {
			{Keys: bson.D{{Key: "attempts", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}

	var errs []string
	for col, idx := range indexes {
		if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
			errs = append(errs, col.Name()+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func redactURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}
