package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

// RedisSettingsStore keeps the settings under a redis key and announces every
// save on a pub/sub channel so other instances can mirror it. Replication is
// last-writer-wins and not linearizable.
type RedisSettingsStore struct {
	client  redis.UniversalClient
	key     string
	channel string
	origin  string
	log     *slog.Logger
}

// settingsNotice is what goes over the channel. Origin lets an instance skip
// its own saves.
type settingsNotice struct {
	Origin   string        `json:"origin"`
	Settings data.Settings `json:"settings"`
}

func NewRedisSettingsStore(client redis.UniversalClient, key, channel string, log *slog.Logger) *RedisSettingsStore {
	if key == "" {
		key = SettingsKey
	}
	if channel == "" {
		channel = SettingsKey
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisSettingsStore{
		client:  client,
		key:     key,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
	}
}

func (r *RedisSettingsStore) Load(ctx context.Context) (data.Settings, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return data.DefaultSettings(), fmt.Errorf("%w: redis key %s", ErrSettingsNotFound, r.key)
	}
	if err != nil {
		return data.DefaultSettings(), fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return DecodeSettings(raw)
}

func (r *RedisSettingsStore) Save(ctx context.Context, s data.Settings) error {
	payload, err := EncodeSettings(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	notice, err := json.Marshal(settingsNotice{Origin: r.origin, Settings: s})
	if err != nil {
		return fmt.Errorf("encode settings notice: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key, payload, 0)
		pipe.Publish(ctx, r.channel, notice)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", r.key, err)
	}
	return nil
}

// Watch calls apply with every settings value saved by another instance
// until ctx is cancelled.
func (r *RedisSettingsStore) Watch(ctx context.Context, apply func(data.Settings)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.log.Info("settings watch started", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("settings watch stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s, remote, err := r.decodeNotice([]byte(msg.Payload))
			if err != nil {
				r.log.Warn("ignoring settings notice", "err", err)
				continue
			}
			if remote {
				apply(s)
			}
		}
	}
}

func (r *RedisSettingsStore) decodeNotice(raw []byte) (data.Settings, bool, error) {
	var n settingsNotice
	if err := json.Unmarshal(raw, &n); err != nil {
		return data.Settings{}, false, fmt.Errorf("%w: %v", ErrSettingsMalformed, err)
	}
	return n.Settings, n.Origin != r.origin, nil
}
