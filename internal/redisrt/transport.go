// Package redisrt carries row changes, broadcasts and presence over redis
// pub/sub, so clients in different processes see each other's writes.
//
// Channels:
//   - <prefix>:change:<table>
//   - <prefix>:broadcast:<topic>:<event>
//   - <prefix>:presence:<topic>
//
// Presence membership is a hash of tracker counts at
// <prefix>:presence:<topic>:members.
package redisrt

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/layover/internal/backend"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const opTimeout = 5 * time.Second

var (
	_ backend.Realtime        = (*Transport)(nil)
	_ backend.ChangePublisher = (*Transport)(nil)
)

// Transport implements backend.Realtime and backend.ChangePublisher on redis.
type Transport struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// New creates a transport using client. Keys and channels are namespaced
// under prefix.
func New(client *redis.Client, prefix string, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "layover"
	}
	return &Transport{client: client, prefix: prefix, logger: logger}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr, prefix string, logger *zap.Logger) (*Transport, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(client, prefix, logger), nil
}

// Close releases the redis client.
func (t *Transport) Close() error {
	return t.client.Close()
}

func (t *Transport) changeChannel(table string) string {
	return fmt.Sprintf("%s:change:%s", t.prefix, table)
}

func (t *Transport) broadcastChannel(topic, event string) string {
	return fmt.Sprintf("%s:broadcast:%s:%s", t.prefix, topic, event)
}

func (t *Transport) presenceChannel(topic string) string {
	return fmt.Sprintf("%s:presence:%s", t.prefix, topic)
}

func (t *Transport) membersKey(topic string) string {
	return t.presenceChannel(topic) + ":members"
}

// PublishChange publishes a row change. Failures are logged, not returned.
func (t *Transport) PublishChange(evt backend.ChangeEvent) {
	data, err := encodeChange(evt)
	if err != nil {
		t.logger.Warn("encode change failed", zap.String("table", evt.Table), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := t.client.Publish(ctx, t.changeChannel(evt.Table), data).Err(); err != nil {
		t.logger.Warn("publish change failed", zap.String("table", evt.Table), zap.Error(err))
	}
}

// SubscribeChanges delivers change events accepted by m to fn. An empty
// table in m is not supported, since changes are partitioned by table.
func (t *Transport) SubscribeChanges(topic string, m backend.Matcher, fn func(backend.ChangeEvent)) (backend.Subscription, error) {
	if m.Table == "" {
		return nil, fmt.Errorf("subscribe %s: matcher needs a table", topic)
	}
	return t.listen(topic, t.changeChannel(m.Table), func(env envelope) {
		evt, ok := env.change()
		if ok && m.Matches(evt) {
			fn(evt)
		}
	}, nil)
}

// Send publishes payload to listeners of event on topic.
func (t *Transport) Send(topic, event string, payload backend.Row) error {
	data, err := encodeBroadcast(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := t.client.Publish(ctx, t.broadcastChannel(topic, event), data).Err(); err != nil {
		return fmt.Errorf("broadcast %s/%s: %w", topic, event, err)
	}
	return nil
}

// OnBroadcast delivers broadcasts of event on topic to fn.
func (t *Transport) OnBroadcast(topic, event string, fn func(backend.Row)) (backend.Subscription, error) {
	return t.listen(topic, t.broadcastChannel(topic, event), func(env envelope) {
		if env.Kind == kindBroadcast && env.Payload != nil {
			fn(backend.Row(env.Payload))
		}
	}, nil)
}

// TrackPresence counts key into the topic membership hash and relays
// presence events to fn. The subscription is live before the join is
// announced, so fn sees its own join and sync.
func (t *Transport) TrackPresence(topic, key string, _ backend.Row, fn func(backend.PresenceEvent)) (backend.Subscription, error) {
	sub, err := t.listen(topic, t.presenceChannel(topic), func(env envelope) {
		if pe, ok := env.presence(); ok {
			fn(pe)
		}
	}, func() { t.untrack(topic, key) })
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	n, err := t.client.HIncrBy(ctx, t.membersKey(topic), key, 1).Result()
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("track %s on %s: %w", key, topic, err)
	}
	if n == 1 {
		t.announce(ctx, topic, backend.PresenceEvent{Kind: backend.PresenceJoin, Keys: []string{key}})
	}
	t.sync(ctx, topic)
	return sub, nil
}

func (t *Transport) untrack(topic, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	n, err := t.client.HIncrBy(ctx, t.membersKey(topic), key, -1).Result()
	if err != nil {
		t.logger.Warn("untrack failed", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
		return
	}
	if n > 0 {
		return
	}
	_ = t.client.HDel(ctx, t.membersKey(topic), key).Err()
	t.announce(ctx, topic, backend.PresenceEvent{Kind: backend.PresenceLeave, Keys: []string{key}})
	t.sync(ctx, topic)
}

// Online returns the keys with at least one tracker on topic.
func (t *Transport) Online(ctx context.Context, topic string) ([]string, error) {
	counts, err := t.client.HGetAll(ctx, t.membersKey(topic)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence members %s: %w", topic, err)
	}
	return onlineKeys(counts), nil
}

func (t *Transport) sync(ctx context.Context, topic string) {
	keys, err := t.Online(ctx, topic)
	if err != nil {
		t.logger.Warn("presence sync failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	t.announce(ctx, topic, backend.PresenceEvent{Kind: backend.PresenceSync, Keys: keys})
}

func (t *Transport) announce(ctx context.Context, topic string, pe backend.PresenceEvent) {
	data, err := encodePresence(pe)
	if err == nil {
		err = t.client.Publish(ctx, t.presenceChannel(topic), data).Err()
	}
	if err != nil {
		t.logger.Warn("presence announce failed", zap.String("topic", topic), zap.String("kind", string(pe.Kind)), zap.Error(err))
	}
}

func (t *Transport) listen(topic, channel string, deliver func(envelope), onStop func()) (backend.Subscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	go func() {
		for msg := range ps.Channel() {
			env, err := decode(msg.Payload)
			if err != nil {
				t.logger.Debug("dropping malformed frame", zap.String("channel", channel), zap.Error(err))
				continue
			}
			deliver(env)
		}
	}()
	t.logger.Debug("redis subscription opened", zap.String("topic", topic), zap.String("channel", channel))

	return &subscription{topic: topic, stop: func() error {
		err := ps.Close()
		if onStop != nil {
			onStop()
		}
		return err
	}}, nil
}

type subscription struct {
	topic string
	stop  func() error
	once  sync.Once
	err   error
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() { s.err = s.stop() })
	return s.err
}

func onlineKeys(counts map[string]string) []string {
	keys := make([]string, 0, len(counts))
	for k, v := range counts {
		var n int64
		if _, err := fmt.Sscan(v, &n); err == nil && n > 0 {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
