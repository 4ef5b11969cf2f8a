package storageclient

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/satori/go.uuid"

	"github.com/andres-erbsen/clock"
)

// Message is one action-queue message, carrying an opaque body plus a
// receipt handle used to extend its visibility or delete it.
type Message struct {
	ID     string
	Body   []byte
	handle string
}

// QueueStore is a typed wrapper over the object store's queue service,
// matching §4.1's put_message/get_messages/update_message/delete_message
// operations. Messages become invisible to other GetMessages callers for
// visibilityTimeout after being dequeued, and expire after ttl regardless of
// visibility.
type QueueStore interface {
	PutMessage(queue string, body []byte, visibilityTimeout, ttl time.Duration) error
	GetMessages(queue string, n int, visibilityTimeout time.Duration) ([]*Message, error)
	UpdateMessageVisibility(queue string, m *Message, visibilityTimeout time.Duration) error
	DeleteMessage(queue string, m *Message) error
}

// redisQueueStore implements QueueStore with a Redis sorted set per queue,
// scored by next-visible-at unix time, mirroring tracker/peerstore's
// RedisStore pooling idiom.
type redisQueueStore struct {
	pool *redis.Pool
	clk  clock.Clock
}

// NewRedisQueueStore creates a QueueStore backed by Redis.
func NewRedisQueueStore(config RedisConfig, clk clock.Clock) (QueueStore, error) {
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
	return &redisQueueStore{pool, clk}, nil
}

func queueKey(queue string) string       { return "queue:{" + queue + "}" }
func messageKey(queue, id string) string { return "queuemsg:{" + queue + "}:" + id }

func (s *redisQueueStore) PutMessage(
	queue string, body []byte, visibilityTimeout, ttl time.Duration) error {

	c := s.pool.Get()
	defer c.Close()

	id := uuid.NewV4().String()
	now := s.clk.Now()
	expireAt := now.Add(ttl).Unix()

	if err := c.Send("ZADD", queueKey(queue), now.Unix(), id); err != nil {
		return fmt.Errorf("send ZADD: %s", err)
	}
	if err := c.Send("SET", messageKey(queue, id), encodeMessageBody(body), "EXAT", expireAt); err != nil {
		return fmt.Errorf("send SET: %s", err)
	}
	if err := c.Flush(); err != nil {
		return fmt.Errorf("flush: %s", err)
	}
	if _, err := c.Receive(); err != nil {
		return fmt.Errorf("ZADD: %s", err)
	}
	if _, err := c.Receive(); err != nil {
		return fmt.Errorf("SET: %s", err)
	}
	return nil
}

func (s *redisQueueStore) GetMessages(
	queue string, n int, visibilityTimeout time.Duration) ([]*Message, error) {

	c := s.pool.Get()
	defer c.Close()

	now := s.clk.Now().Unix()
	ids, err := redis.Strings(c.Do("ZRANGEBYSCORE", queueKey(queue), "-inf", now, "LIMIT", 0, n))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore: %s", err)
	}

	var messages []*Message
	for _, id := range ids {
		body, err := redis.String(c.Do("GET", messageKey(queue, id)))
		if err == redis.ErrNil {
			// Expired or already deleted; drop the stale index entry.
			c.Do("ZREM", queueKey(queue), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get message body: %s", err)
		}
		newVisibleAt := s.clk.Now().Add(visibilityTimeout).Unix()
		if _, err := c.Do("ZADD", queueKey(queue), newVisibleAt, id); err != nil {
			return nil, fmt.Errorf("extend visibility: %s", err)
		}
		decoded, err := decodeMessageBody(body)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &Message{ID: id, Body: decoded, handle: id})
	}
	return messages, nil
}

func (s *redisQueueStore) UpdateMessageVisibility(
	queue string, m *Message, visibilityTimeout time.Duration) error {

	c := s.pool.Get()
	defer c.Close()

	newVisibleAt := s.clk.Now().Add(visibilityTimeout).Unix()
	n, err := redis.Int(c.Do("ZADD", "XX", "CH", queueKey(queue), newVisibleAt, m.handle))
	if err != nil {
		return fmt.Errorf("zadd xx: %s", err)
	}
	if n == 0 {
		// XX CH reports 0 both when the score didn't change and when the
		// member is missing; check membership to disambiguate.
		score, err := redis.Float64(c.Do("ZSCORE", queueKey(queue), m.handle))
		if err == redis.ErrNil {
			return ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		_ = score
	}
	return nil
}

func (s *redisQueueStore) DeleteMessage(queue string, m *Message) error {
	c := s.pool.Get()
	defer c.Close()

	if err := c.Send("ZREM", queueKey(queue), m.handle); err != nil {
		return fmt.Errorf("send ZREM: %s", err)
	}
	if err := c.Send("DEL", messageKey(queue, m.handle)); err != nil {
		return fmt.Errorf("send DEL: %s", err)
	}
	if err := c.Flush(); err != nil {
		return fmt.Errorf("flush: %s", err)
	}
	if _, err := c.Receive(); err != nil {
		return fmt.Errorf("ZREM: %s", err)
	}
	if _, err := c.Receive(); err != nil {
		return fmt.Errorf("DEL: %s", err)
	}
	return nil
}

func encodeMessageBody(body []byte) string {
	return base64.StdEncoding.EncodeToString(body)
}

func decodeMessageBody(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode message body: %s", err)
	}
	return b, nil
}
