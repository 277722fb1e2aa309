package storage

import (
	"context"
	"strconv"
	"time"

	"EchoChat/tools/errs"

	"github.com/redis/go-redis/v9"
)

// presence key: echo:presence:<user>
// hash: connections / node / seen，TTL 控制在线有效期
func presenceKey(user string) string { return "echo:presence:" + user }

// KEYS[1] = presence key
// ARGV[1] = connections
// ARGV[2] = ttlSeconds
// ARGV[3] = node
// ARGV[4] = nowUnix
// 返回：写入后的连接数，下线返回 0
const luaSetPresence = `
local n = tonumber(ARGV[1])
if n <= 0 then
  redis.call("DEL", KEYS[1])
  return 0
end
redis.call("HSET", KEYS[1], "connections", n, "node", ARGV[3], "seen", ARGV[4])
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[2]))
return n
`

var setPresenceScript = redis.NewScript(luaSetPresence)

type RedisPresence struct {
	rdb  *redis.Client
	node string
	ttl  time.Duration
}

func NewRedisPresence(rdb *redis.Client, node string, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPresence{rdb: rdb, node: node, ttl: ttl}
}

func (p *RedisPresence) TTL() time.Duration { return p.ttl }

func (p *RedisPresence) Set(ctx context.Context, userID string, connections int) error {
	err := setPresenceScript.Run(ctx, p.rdb, []string{presenceKey(userID)},
		connections, int64(p.ttl/time.Second), p.node, time.Now().Unix()).Err()
	return errs.WrapMsg(err, "set presence", "userId", userID)
}

func (p *RedisPresence) Lookup(ctx context.Context, userID string) (PresenceInfo, error) {
	info := PresenceInfo{UserID: userID}
	vals, err := p.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return info, errs.WrapMsg(err, "lookup presence", "userId", userID)
	}
	if len(vals) == 0 {
		return info, nil
	}
	info.Connections, _ = strconv.Atoi(vals["connections"])
	info.Online = info.Connections > 0
	info.Node = vals["node"]
	if sec, err := strconv.ParseInt(vals["seen"], 10, 64); err == nil {
		info.SeenAt = time.Unix(sec, 0).UTC()
	}
	return info, nil
}
