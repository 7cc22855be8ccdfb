// Package firestore provides a Google Cloud Firestore-backed
// gateway.QuotaStore: one document per provider under a usage_counters
// collection.
package firestore

import (
	"context"
	"fmt"
	"math"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Config holds Firestore storage configuration.
type Config struct {
	// Collection is the Firestore collection holding counter documents.
	// Default: "usage_counters".
	Collection string
}

// Store implements gateway.QuotaStore using Google Cloud Firestore.
type Store struct {
	client     *firestore.Client
	ctx        context.Context
	collection string
}

// New creates a Firestore-backed store.
func New(ctx context.Context, client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.Collection == "" {
		config.Collection = "usage_counters"
	}
	return &Store{client: client, ctx: ctx, collection: config.Collection}, nil
}

// Load reads every provider's counter document.
func (s *Store) Load() (map[string]int, error) {
	iter := s.client.Collection(s.collection).Documents(s.ctx)
	defer iter.Stop()

	counters := make(map[string]int)
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("failed to load counters: %w", err)
		}
		counters[snap.Ref.ID] = getInt(snap.Data(), "used")
	}
	return counters, nil
}

// Save replaces each provider's counter document inside a single
// transaction: existing documents not present in counters are deleted so
// Save fully replaces prior state rather than merging with it.
func (s *Store) Save(counters map[string]int) error {
	coll := s.client.Collection(s.collection)

	return s.client.RunTransaction(s.ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		iter := coll.Documents(ctx)
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err != nil {
				if err == iterator.Done {
					break
				}
				return err
			}
			if _, ok := counters[snap.Ref.ID]; !ok {
				if err := tx.Delete(snap.Ref); err != nil {
					return err
				}
			}
		}

		for provider, used := range counters {
			ref := coll.Doc(provider)
			if err := tx.Set(ref, map[string]interface{}{"used": used}); err != nil {
				return err
			}
		}
		return nil
	})
}

func getInt(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	default:
		return 0
	}
}
