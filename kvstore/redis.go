package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	casStatusSwapped  int64 = 0
	casStatusMismatch int64 = 1
	casStatusMissing  int64 = 2
)

const compareAndSetFieldScript = `
local current = redis.call("HGET", KEYS[1], ARGV[1])
if not current then
  return {2}
end
if current ~= ARGV[2] then
  return {1, current}
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[3])
return {0, current}
`

var compareAndSetFieldLua = redis.NewScript(compareAndSetFieldScript)

const updateFieldIfExistsScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`

var updateFieldIfExistsLua = redis.NewScript(updateFieldIfExistsScript)

const putStringUnlessEqualsScript = `
if redis.call("GET", KEYS[1]) == ARGV[2] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`

var putStringUnlessEqualsLua = redis.NewScript(putStringUnlessEqualsScript)

// Redis implements [Store] on top of a go-redis client.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps a go-redis client. The client is not closed by the store.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func flattenFields(fields map[string]string) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

// GetHash returns all fields of a hash. An empty hash is reported as [ErrNotFound].
func (r *Redis) GetHash(ctx context.Context, key string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

// PutHash writes fields and the key TTL in one MULTI/EXEC.
func (r *Redis) PutHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return errors.New("kvstore: empty hash")
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, flattenFields(fields)...)
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) GetString(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", unavailable(err)
	}
	return v, nil
}

func (r *Redis) PutString(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// SetTTL reports false when the key does not exist.
func (r *Redis) SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.PExpire(ctx, key, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		addSet(ctx, pipe, key, ttl, members)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := r.client.SRem(ctx, key, args...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// SetMembers returns an empty slice for a missing set.
func (r *Redis) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, unavailable(err)
	}
	return members, nil
}

// CompareAndSetHashField runs a single Lua script so that two concurrent
// callers with the same expected value can never both observe CASSwapped.
func (r *Redis) CompareAndSetHashField(ctx context.Context, key, field, expected, next string) (CASResult, string, error) {
	result, err := compareAndSetFieldLua.Run(ctx, r.client, []string{key}, field, expected, next).Result()
	if err != nil {
		return CASMissing, "", unavailable(err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return CASMissing, "", fmt.Errorf("%w: invalid compare-and-set response", ErrUnavailable)
	}
	code, ok := parts[0].(int64)
	if !ok {
		return CASMissing, "", fmt.Errorf("%w: invalid compare-and-set status", ErrUnavailable)
	}

	var current string
	if len(parts) > 1 {
		switch v := parts[1].(type) {
		case string:
			current = v
		case []byte:
			current = string(v)
		}
	}

	switch code {
	case casStatusSwapped:
		return CASSwapped, current, nil
	case casStatusMismatch:
		return CASMismatch, current, nil
	case casStatusMissing:
		return CASMissing, "", nil
	default:
		return CASMissing, "", fmt.Errorf("%w: unknown compare-and-set status %d", ErrUnavailable, code)
	}
}

func (r *Redis) UpdateHashFieldIfExists(ctx context.Context, key, field, value string) (bool, error) {
	n, err := updateFieldIfExistsLua.Run(ctx, r.client, []string{key}, field, value).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// PutStringUnlessEquals never overwrites a key that holds keep, even when a
// concurrent writer stored keep a moment earlier.
func (r *Redis) PutStringUnlessEquals(ctx context.Context, key, value, keep string, ttl time.Duration) (bool, error) {
	ms := ttl.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	n, err := putStringUnlessEqualsLua.Run(ctx, r.client, []string{key}, value, keep, ms).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 && ttl > 0 {
		if err := r.client.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, unavailable(err)
		}
	}
	return count, nil
}

// Atomic applies ops in order inside one MULTI/EXEC.
func (r *Redis) Atomic(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}
	for _, op := range ops {
		if op.kind == opPutHash && len(op.fields) == 0 {
			return errors.New("kvstore: empty hash")
		}
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.kind {
			case opPutHash:
				pipe.HSet(ctx, op.key, flattenFields(op.fields)...)
				if op.ttl > 0 {
					pipe.PExpire(ctx, op.key, op.ttl)
				}
			case opPutString:
				ttl := op.ttl
				if ttl < 0 {
					ttl = 0
				}
				pipe.Set(ctx, op.key, op.value, ttl)
			case opSetAdd:
				addSet(ctx, pipe, op.key, op.ttl, op.members)
			case opExpire:
				if op.ttl > 0 {
					pipe.PExpire(ctx, op.key, op.ttl)
				}
			default:
				return fmt.Errorf("kvstore: unknown op kind %d", op.kind)
			}
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func addSet(ctx context.Context, pipe redis.Pipeliner, key string, ttl time.Duration, members []string) {
	if len(members) == 0 {
		return
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	pipe.SAdd(ctx, key, args...)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
}
