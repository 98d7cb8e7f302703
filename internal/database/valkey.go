package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

const defaultValkeyPrefix = "cardprice:snapshot:"

// ValkeyStore keeps each snapshot under its own key
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore connects to a Valkey or Redis server and pings it
func NewValkeyStore(ctx context.Context, cfg Config) (*ValkeyStore, error) {
	if cfg.ValkeyAddress == "" {
		return nil, errors.New("valkey address is required")
	}
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{cfg.ValkeyAddress},
		Username:          cfg.ValkeyUsername,
		Password:          cfg.ValkeyPassword,
		SelectDB:          cfg.ValkeyDB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}

	prefix := cfg.ValkeyPrefix
	if prefix == "" {
		prefix = defaultValkeyPrefix
	}
	return &ValkeyStore{client: client, prefix: prefix}, nil
}

func (s *ValkeyStore) Load(ctx context.Context, name string) ([]byte, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.prefix+name).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", name, err)
	}
	return payload, nil
}

func (s *ValkeyStore) Save(ctx context.Context, name string, payload []byte) error {
	cmd := s.client.B().Set().Key(s.prefix + name).Value(valkey.BinaryString(payload)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
