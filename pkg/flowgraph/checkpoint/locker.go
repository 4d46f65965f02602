package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLockLost indicates a lock expired or was taken over before release.
var ErrLockLost = errors.New("session lock lost before release")

// UnlockFunc releases a lock obtained from a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker grants exclusive access to a session for the length of one run.
// Lock blocks until the lock is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, sessionID string) (UnlockFunc, error)
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*lockSlot)}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	l.mu.Lock()
	s, ok := l.slots[sessionID]
	if !ok {
		s = &lockSlot{sem: make(chan struct{}, 1)}
		l.slots[sessionID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-s.sem
			l.release(sessionID, s)
		})
		return nil
	}, nil
}

// release drops a reference and forgets the slot when nobody holds or waits on it.
func (l *LocalLocker) release(sessionID string, s *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, sessionID)
	}
}

// RedisLocker is a distributed lock built on SET NX PX.
// The lock value is a random token so only the holder can release it.
// A held lock is renewed every ttl/3 until it is released, so a run may
// outlast ttl; ttl only bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// renewScript extends the key's expiry only if it still holds our token.
var renewScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// DefaultLockTTL is used when NewRedisLocker gets a non-positive ttl.
const DefaultLockTTL = 30 * time.Second

// NewRedisLocker creates a locker whose locks expire after ttl once their
// holder stops renewing them.
func NewRedisLocker(client *backend.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		poll:   50 * time.Millisecond,
	}
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (UnlockFunc, error) {
	key := l.prefix + "lock:" + sessionID
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			return l.hold(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold renews the lock in the background and returns its release func.
func (l *RedisLocker) hold(key, token string) UnlockFunc {
	stop := make(chan struct{})
	done := make(chan struct{})
	var lost atomic.Bool

	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				n, err := renewScript.Run(context.Background(), l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
				if err == nil && n == 0 {
					lost.Store(true)
					return
				}
			}
		}
	}()

	var once sync.Once
	var result error
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
			n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
			switch {
			case err != nil:
				result = fmt.Errorf("release session lock: %w", err)
			case n == 0 || lost.Load():
				result = ErrLockLost
			}
		})
		return result
	}
}
