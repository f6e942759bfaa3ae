package data

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	oauthStatePrefix = "oauthstate:"
	voteCountsKey    = "votes.counts"

	oauthStateTTL = 5 * time.Minute
	voteCountsTTL = 60 * time.Second
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

// SetOAuthState records a single-use OAuth state nonce.
func SetOAuthState(ctx context.Context, rdb *redis.Client, state string) error {
	return rdb.Set(ctx, oauthStatePrefix+state, "1", oauthStateTTL).Err()
}

// TakeOAuthState consumes a state nonce; an error means it was never
// issued, expired, or already used.
func TakeOAuthState(ctx context.Context, rdb *redis.Client, state string) error {
	return rdb.GetDel(ctx, oauthStatePrefix+state).Err()
}

// VoteCounts is the per-project aggregate cached between reads.
type VoteCounts struct {
	Up   int64 `json:"up"`
	Down int64 `json:"down"`
}

func CachedVoteCounts(ctx context.Context, rdb *redis.Client) (map[uint32]VoteCounts, bool) {
	raw, err := rdb.Get(ctx, voteCountsKey).Bytes()
	if err != nil {
		return nil, false
	}
	var out map[uint32]VoteCounts
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func StoreVoteCounts(ctx context.Context, rdb *redis.Client, counts map[uint32]VoteCounts) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, voteCountsKey, raw, voteCountsTTL).Err()
}

// InvalidateVoteCounts drops the cached aggregate after a write.
func InvalidateVoteCounts(ctx context.Context, rdb *redis.Client) error {
	return rdb.Del(ctx, voteCountsKey).Err()
}
