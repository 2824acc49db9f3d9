// Package session stores live interview sessions between requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidConfig    = errors.New("invalid session store configuration")
	ErrInvalidStoreType = errors.New("invalid session store type")
	ErrVersionConflict  = errors.New("session version conflict")
	ErrNotFound         = errors.New("session not found")
	ErrExists           = errors.New("session already exists")
)

// DefaultTTL is how long an untouched session is kept.
const DefaultTTL = 24 * time.Hour

// SessionData is the serialized form of one live interview.
type SessionData struct {
	ID        string          `json:"id"`
	LearnerID string          `json:"learner_id"`
	CaseID    string          `json:"case_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int64           `json:"version"` // incremented on every Update
	State     json.RawMessage `json:"state"`
}

// Store is the session storage interface.
type Store interface {
	// Create stores a new session with Version 1.
	// Returns ErrExists if the id is taken.
	Create(ctx context.Context, data *SessionData) error

	// Get returns a session by id, or nil if it does not exist.
	Get(ctx context.Context, id string) (*SessionData, error)

	// Update replaces a session if data.Version matches the stored version,
	// then increments data.Version.
	// Returns ErrVersionConflict on mismatch and ErrNotFound if the session is gone.
	Update(ctx context.Context, data *SessionData) error

	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the store's resources.
	Close() error
}

// StoreType names a session store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	keyPrefix   string
	now         func() time.Time
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithTTL sets how long an untouched session lives.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.ttl = ttl }
}

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) { c.keyPrefix = prefix }
}

// WithClock replaces time.Now for timestamps and memory expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// NewStore creates a session store of the given type.
// The redis driver requires WithRedisClient.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{
		ttl:       DefaultTTL,
		keyPrefix: "casecoach:session:",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}

	switch storeType {
	case StoreTypeMemory, "":
		return newMemoryStore(cfg), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedisStore(cfg), nil
	default:
		return nil, ErrInvalidStoreType
	}
}
