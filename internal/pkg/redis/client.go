// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a go-redis universal client with a registry of named Lua
// scripts. Scripts are registered once at startup and executed through
// RunScript, which relies on EVALSHA with an automatic EVAL fallback.
type Client struct {
	rdb     redis.UniversalClient
	scripts map[string]*redis.Script
}

// NewClient connects to one or more redis nodes. addrs is a comma separated
// list; a single address yields a standalone client, more than one a cluster
// client.
func NewClient(addrs string) (*Client, error) {
	nodes := strings.Split(addrs, ",")
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        nodes,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addrs, err)
	}

	return &Client{
		rdb:     rdb,
		scripts: make(map[string]*redis.Script),
	}, nil
}

// LoadScriptFromContent registers a Lua script under a name.
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q has empty content", name)
	}
	c.scripts[name] = redis.NewScript(content)
	return nil
}

// LoadScriptFromFile registers a Lua script read from disk.
func (c *Client) LoadScriptFromFile(name, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script file %s: %w", path, err)
	}
	return c.LoadScriptFromContent(name, string(content))
}

// RunScript executes a previously registered script.
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	script, ok := c.scripts[name]
	if !ok {
		return nil, fmt.Errorf("script %q is not registered", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// SetIfAbsent performs SET NX with a TTL. Returns true when the key was set.
func (c *Client) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

// Delete removes a key. Deleting an absent key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// GetClient exposes the underlying go-redis client for pipeline use.
func (c *Client) GetClient() redis.UniversalClient {
	return c.rdb
}

// Close shuts down the underlying connections.
func (c *Client) Close() error {
	return c.rdb.Close()
}
