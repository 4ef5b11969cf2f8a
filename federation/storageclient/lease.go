package storageclient

import (
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/satori/go.uuid"
)

// Lease represents ownership of a blob lease, returned by AcquireLease and
// required by RenewLease/ReleaseLease so only the owner can act on it.
type Lease struct {
	Container string
	BlobName  string
	token     string
}

// LeaseStore implements §4.1's acquire_lease/renew_lease/release_lease
// operations. It backs both C3's global leader-election lock and C7's
// per-slot direct-download blob leases (§4.7), since both are just a
// mutually-exclusive hold on a placeholder blob name.
type LeaseStore interface {
	AcquireLease(container, blobName string, duration time.Duration) (*Lease, error)
	RenewLease(l *Lease, duration time.Duration) error
	ReleaseLease(l *Lease) error
}

type redisLeaseStore struct {
	pool *redis.Pool
}

// NewRedisLeaseStore creates a LeaseStore backed by Redis SET NX / PEXPIRE /
// DEL, reusing the same redigo pool shape as the queue store.
func NewRedisLeaseStore(config RedisConfig) (LeaseStore, error) {
	config = config.applyDefaults()
	if config.Addr == "" {
		return nil, fmt.Errorf("invalid config: missing addr")
	}
	pool := &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial(
				"tcp", config.Addr,
				redis.DialConnectTimeout(config.DialTimeout),
				redis.DialReadTimeout(config.ReadTimeout),
				redis.DialWriteTimeout(config.WriteTimeout))
		},
		MaxIdle:     config.MaxIdleConns,
		MaxActive:   config.MaxActiveConns,
		IdleTimeout: config.IdleConnTimeout,
		Wait:        true,
	}
	c, err := pool.Dial()
	if err != nil {
		return nil, fmt.Errorf("dial redis: %s", err)
	}
	c.Close()
	return &redisLeaseStore{pool}, nil
}

func leaseKey(container, blobName string) string {
	return "lease:{" + container + "}:" + blobName
}

func (s *redisLeaseStore) AcquireLease(
	container, blobName string, duration time.Duration) (*Lease, error) {

	c := s.pool.Get()
	defer c.Close()

	token := uuid.NewV4().String()
	reply, err := redis.String(c.Do(
		"SET", leaseKey(container, blobName), token, "NX", "PX", duration.Milliseconds()))
	if err == redis.ErrNil {
		return nil, ErrLeaseAlreadyHeld
	}
	if err != nil {
		return nil, fmt.Errorf("set nx: %s", err)
	}
	if reply != "OK" {
		return nil, ErrLeaseAlreadyHeld
	}
	return &Lease{Container: container, BlobName: blobName, token: token}, nil
}

// renewScript extends the lease only if owned by l.token, matching the
// canonical Redis "check-and-expire" compare-and-swap idiom.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

func (s *redisLeaseStore) RenewLease(l *Lease, duration time.Duration) error {
	c := s.pool.Get()
	defer c.Close()

	script := redis.NewScript(1, renewScript)
	n, err := redis.Int(script.Do(c, leaseKey(l.Container, l.BlobName), l.token, duration.Milliseconds()))
	if err != nil {
		return fmt.Errorf("renew lease: %s", err)
	}
	if n == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

func (s *redisLeaseStore) ReleaseLease(l *Lease) error {
	c := s.pool.Get()
	defer c.Close()

	script := redis.NewScript(1, releaseScript)
	n, err := redis.Int(script.Do(c, leaseKey(l.Container, l.BlobName), l.token))
	if err != nil {
		return fmt.Errorf("release lease: %s", err)
	}
	if n == 0 {
		return ErrLeaseNotHeld
	}
	return nil
}
