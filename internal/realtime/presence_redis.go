package realtime

import (
	"context"
	"log"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// redisPresenceRegistry keeps connection handles locally (handles are not
// serializable across processes) and mirrors online membership into a shared
// Redis set so other instances can observe who is reachable somewhere.
// Direct delivery still only reaches handles of this instance.
type redisPresenceRegistry struct {
	local  PresenceRegistry
	client *redis.Client
	key    string
}

// NewRedisPresenceRegistry creates a presence registry that mirrors online
// membership into the Redis set named by key.
func NewRedisPresenceRegistry(client *redis.Client, key string) PresenceRegistry {
	return &redisPresenceRegistry{
		local:  NewMemoryPresenceRegistry(),
		client: client,
		key:    key,
	}
}

func (p *redisPresenceRegistry) Register(userID uint, h ConnectionHandle) {
	p.local.Register(userID, h)
	if err := p.client.SAdd(context.Background(), p.key, uint64(userID)).Err(); err != nil {
		log.Printf("Failed to mirror presence of user %d into Redis: %v", userID, err)
	}
}

func (p *redisPresenceRegistry) Unregister(userID uint, h ConnectionHandle) {
	p.local.Unregister(userID, h)
	if len(p.local.HandlesFor(userID)) > 0 {
		return // other local handles remain
	}
	if err := p.client.SRem(context.Background(), p.key, uint64(userID)).Err(); err != nil {
		log.Printf("Failed to remove presence of user %d from Redis: %v", userID, err)
	}
}

func (p *redisPresenceRegistry) HandlesFor(userID uint) []ConnectionHandle {
	return p.local.HandlesFor(userID)
}

func (p *redisPresenceRegistry) OnlineUsers() []uint {
	members, err := p.client.SMembers(context.Background(), p.key).Result()
	if err != nil {
		log.Printf("Failed to read shared presence set, falling back to local view: %v", err)
		return p.local.OnlineUsers()
	}
	users := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			continue
		}
		users = append(users, uint(id))
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}
