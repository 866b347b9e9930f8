package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or has expired.
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("kvstore: store unavailable")
)

// CASResult reports the outcome of [Store.CompareAndSetHashField].
type CASResult uint8

const (
	// CASSwapped means the field held the expected value and now holds the new one.
	CASSwapped CASResult = iota
	// CASMismatch means the field held a different value; nothing was written.
	CASMismatch
	// CASMissing means the key or field does not exist; nothing was written.
	CASMissing
)

func (r CASResult) String() string {
	switch r {
	case CASSwapped:
		return "swapped"
	case CASMismatch:
		return "mismatch"
	case CASMissing:
		return "missing"
	default:
		return "unknown"
	}
}

type opKind uint8

const (
	opPutHash opKind = iota + 1
	opPutString
	opSetAdd
	opExpire
)

// Op is one write inside an [Store.Atomic] batch.
type Op struct {
	kind    opKind
	key     string
	fields  map[string]string
	value   string
	members []string
	ttl     time.Duration
}

// PutHashOp writes hash fields and sets the key TTL.
func PutHashOp(key string, fields map[string]string, ttl time.Duration) Op {
	return Op{kind: opPutHash, key: key, fields: fields, ttl: ttl}
}

// PutStringOp writes a string value with a TTL.
func PutStringOp(key, value string, ttl time.Duration) Op {
	return Op{kind: opPutString, key: key, value: value, ttl: ttl}
}

// SetAddOp adds members to a set and refreshes the set TTL.
func SetAddOp(key string, ttl time.Duration, members ...string) Op {
	return Op{kind: opSetAdd, key: key, members: members, ttl: ttl}
}

// ExpireOp sets the TTL of an existing key. Missing keys are left missing.
func ExpireOp(key string, ttl time.Duration) Op {
	return Op{kind: opExpire, key: key, ttl: ttl}
}

// Store is the key-value contract the session layer is written against.
//
// A ttl <= 0 on a write means "no expiry"; callers in this module always pass
// a positive TTL.
type Store interface {
	GetHash(ctx context.Context, key string) (map[string]string, error)
	PutHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	PutString(ctx context.Context, key, value string, ttl time.Duration) error
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error

	SetAdd(ctx context.Context, key string, ttl time.Duration, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	// CompareAndSetHashField atomically replaces field with next when it
	// currently equals expected. The value observed before the call is
	// returned for CASSwapped and CASMismatch. The key TTL is preserved.
	CompareAndSetHashField(ctx context.Context, key, field, expected, next string) (CASResult, string, error)

	// UpdateHashFieldIfExists writes field only when key exists, so an
	// expired hash is never recreated without a TTL.
	UpdateHashFieldIfExists(ctx context.Context, key, field, value string) (bool, error)

	// PutStringUnlessEquals writes value with ttl unless the key currently
	// holds keep. The check and the write are one server-side step. It
	// reports whether the write happened.
	PutStringUnlessEquals(ctx context.Context, key, value, keep string, ttl time.Duration) (bool, error)

	// Incr increments a counter and applies ttl on the first increment of a window.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Atomic(ctx context.Context, ops ...Op) error
	Ping(ctx context.Context) error
}
