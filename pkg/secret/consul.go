//go:build consul

package secret

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	consulapi "github.com/hashicorp/consul/api"
)

const consulPrefix = "batch-delete/secrets/"

// Consul is a Store backed by the Consul KV API.
type Consul struct {
	mu sync.Mutex
	kv *consulapi.KV
}

var _ SwapStore = (*Consul)(nil)

// NewConsul connects to the Consul agent at addr.
func NewConsul(addr, token string, _ *slog.Logger) (Store, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	if token != "" {
		cfg.Token = token
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Consul{kv: cli.KV()}, nil
}

func (c *Consul) Get(ctx context.Context, service, account string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pair, _, err := c.kv.Get(consulPrefix+key(service, account), (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, false, fmt.Errorf("consul get %s: %w", key(service, account), err)
	}
	if pair == nil {
		return nil, false, nil
	}
	return pair.Value, true, nil
}

func (c *Consul) Set(ctx context.Context, service, account string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.kv.Put(&consulapi.KVPair{Key: consulPrefix + key(service, account), Value: value},
		(&consulapi.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return fmt.Errorf("consul put %s: %w", key(service, account), err)
	}
	return nil
}

// SetIfAbsent uses a check-and-set with index 0, which Consul only accepts
// when the key does not exist.
func (c *Consul) SetIfAbsent(ctx context.Context, service, account string, value []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok, _, err := c.kv.CAS(&consulapi.KVPair{Key: consulPrefix + key(service, account), Value: value, ModifyIndex: 0},
		(&consulapi.WriteOptions{}).WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("consul cas %s: %w", key(service, account), err)
	}
	return ok, nil
}

func (c *Consul) Delete(ctx context.Context, service, account string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.kv.Delete(consulPrefix+key(service, account), (&consulapi.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("consul delete %s: %w", key(service, account), err)
	}
	return nil
}
