package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrUploadExpired means the token was never issued, already consumed, or
// outlived its TTL.
var ErrUploadExpired = errors.New("upload token expired or unknown")

const pendingKeyPrefix = "pending_upload:"

// PendingUploads holds the first half of the two-step garment-swap flow:
// step 1 stores the person image path under an opaque token, step 2 must
// present that token. Keyed per upload in Redis with a TTL, so concurrent
// users never observe each other's pending uploads.
type PendingUploads struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPendingUploads creates the token store.
func NewPendingUploads(rdb *redis.Client, ttl time.Duration) *PendingUploads {
	return &PendingUploads{rdb: rdb, ttl: ttl}
}

// Put stores path and returns the token step 2 must present.
func (p *PendingUploads) Put(ctx context.Context, path string) (string, error) {
	token := uuid.NewString()
	if err := p.rdb.Set(ctx, pendingKeyPrefix+token, path, p.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Take consumes the token and returns the stored path. A token is valid
// at most once.
func (p *PendingUploads) Take(ctx context.Context, token string) (string, error) {
	path, err := p.rdb.GetDel(ctx, pendingKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUploadExpired
	}
	if err != nil {
		return "", err
	}
	return path, nil
}
