package backends

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is used when RedisDialer.Key is empty.
const DefaultRedisKey = "logstash"

// RedisDialer pushes frames onto a Redis list, the layout read by logstash's redis input.
type RedisDialer struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisDialer creates a Redis list dialer with default timeouts.
func NewRedisDialer(addr, key string) *RedisDialer {
	return &RedisDialer{
		Addr:         addr,
		Key:          key,
		DialTimeout:  DefaultDialTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Dial creates a client and verifies the server answers PING.
func (d *RedisDialer) Dial(ctx context.Context) (Backend, error) {
	key := d.Key
	if key == "" {
		key = DefaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:         d.Addr,
		Password:     d.Password,
		DB:           d.DB,
		DialTimeout:  d.DialTimeout,
		WriteTimeout: d.WriteTimeout,
		MaxRetries:   -1,
		PoolSize:     1,
	})

	pingCtx := ctx
	if d.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, d.DialTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect redis %s", d.Addr)
	}

	return &RedisBackend{
		addr:         d.Addr,
		key:          key,
		client:       client,
		writeTimeout: d.WriteTimeout,
	}, nil
}

func (d *RedisDialer) String() string {
	key := d.Key
	if key == "" {
		key = DefaultRedisKey
	}
	return "redis://" + d.Addr + "/" + key
}

// RedisBackend appends each frame, without its NUL delimiter, to a Redis list.
type RedisBackend struct {
	addr         string
	key          string
	client       *redis.Client
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	stats  statsTracker
}

// Write pushes frame onto the list.
func (r *RedisBackend) Write(frame []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errors.Errorf("write redis %s: connection closed", r.addr)
	}

	ctx := context.Background()
	if r.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.writeTimeout)
		defer cancel()
	}

	if err := r.client.RPush(ctx, r.key, trimFrame(frame)).Err(); err != nil {
		r.stats.track(0, err)
		r.closed = true
		return 0, errors.Wrapf(err, "rpush %s", r.key)
	}
	r.stats.track(len(frame), nil)
	return len(frame), nil
}

// Close closes the client
func (r *RedisBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	r.closed = true
	err := r.client.Close()
	r.client = nil
	if err != nil {
		return errors.Wrap(err, "close redis")
	}
	return nil
}

// Closed reports whether the client was closed or a write failed.
func (r *RedisBackend) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Stats returns backend statistics
func (r *RedisBackend) Stats() BackendStats {
	return r.stats.snapshot("redis://" + r.addr + "/" + r.key)
}
