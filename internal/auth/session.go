package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sessions are keyed by the memory owner id rather than the numeric
// user id: the same identifier scopes the vector-store reads, so one
// string ties a redis session to the memories it may touch.
const sessionKeyPrefix = "memsession:"

func sessionKey(ownerID string) string {
	return sessionKeyPrefix + ownerID
}

func SetSession(ctx context.Context, rdb *redis.Client, ownerID, token string, duration time.Duration) error {
	return rdb.Set(ctx, sessionKey(ownerID), token, duration).Err()
}

func GetSession(ctx context.Context, rdb *redis.Client, ownerID string) (string, error) {
	return rdb.Get(ctx, sessionKey(ownerID)).Result()
}

func DeleteSession(ctx context.Context, rdb *redis.Client, ownerID string) error {
	return rdb.Del(ctx, sessionKey(ownerID)).Err()
}

// OnlineOwnerCount returns the number of distinct memory owners with
// an active session.
func OnlineOwnerCount(ctx context.Context, rdb *redis.Client) (int, error) {
	var cursor uint64
	owners := make(map[string]struct{})
	for {
		keys, next, err := rdb.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			if owner := strings.TrimPrefix(key, sessionKeyPrefix); owner != "" {
				owners[owner] = struct{}{}
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return len(owners), nil
}
