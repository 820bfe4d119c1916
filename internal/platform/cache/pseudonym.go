package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const pseudonymKeyPrefix = "carelink:pseudonyms:"

// PseudonymStore keeps one hash per patient mapping field type to pseudonym.
type PseudonymStore struct {
	client *redis.Client
}

func NewPseudonymStore(client *redis.Client) *PseudonymStore {
	return &PseudonymStore{client: client}
}

func pseudonymKey(patientID string) string {
	return pseudonymKeyPrefix + patientID
}

// GetOrCreate stores candidate unless a pseudonym already exists for the
// field, and returns whichever value is stored.
func (s *PseudonymStore) GetOrCreate(ctx context.Context, patientID, fieldType, candidate string) (string, error) {
	key := pseudonymKey(patientID)
	if err := s.client.HSetNX(ctx, key, fieldType, candidate).Err(); err != nil {
		return "", fmt.Errorf("store pseudonym: %w", err)
	}
	val, err := s.client.HGet(ctx, key, fieldType).Result()
	if err != nil {
		return "", fmt.Errorf("load pseudonym: %w", err)
	}
	return val, nil
}

func (s *PseudonymStore) Clear(ctx context.Context, patientID string) error {
	if err := s.client.Del(ctx, pseudonymKey(patientID)).Err(); err != nil {
		return fmt.Errorf("clear pseudonyms: %w", err)
	}
	return nil
}
