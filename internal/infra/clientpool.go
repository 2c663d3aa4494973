package infra

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ClientKey identifies a pooled client by the settings that change its behavior.
type ClientKey struct {
	BaseURL      string
	Timeout      time.Duration
	Debug        bool
	AutoStart    bool
	MaxImageSize int
}

// KeyOf returns the pool key for a config.
func KeyOf(cfg OllamaConfig) ClientKey {
	return ClientKey{
		BaseURL:      cfg.BaseURL,
		Timeout:      cfg.Timeout,
		Debug:        cfg.Debug,
		AutoStart:    cfg.AutoStart,
		MaxImageSize: cfg.MaxImageSize,
	}
}

// ClientFactory builds a new client for a config.
type ClientFactory func(ctx context.Context, cfg OllamaConfig, logger *zap.Logger) (*OllamaClient, error)

// ClientPool shares one OllamaClient per distinct configuration.
type ClientPool struct {
	mu      sync.Mutex
	clients map[ClientKey]*OllamaClient
	factory ClientFactory
	logger  *zap.Logger
}

// NewClientPool creates a pool that builds clients with NewOllamaClient.
func NewClientPool(logger *zap.Logger) *ClientPool {
	return NewClientPoolWithFactory(NewOllamaClient, logger)
}

// NewClientPoolWithFactory creates a pool with a custom factory (for testing).
func NewClientPoolWithFactory(factory ClientFactory, logger *zap.Logger) *ClientPool {
	return &ClientPool{
		clients: make(map[ClientKey]*OllamaClient),
		factory: factory,
		logger:  logger,
	}
}

// Get returns the pooled client for cfg, creating it on first use.
// Failed creations are not cached.
func (p *ClientPool) Get(ctx context.Context, cfg OllamaConfig) (*OllamaClient, error) {
	key := KeyOf(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	c, err := p.factory(ctx, cfg, p.logger)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	p.logger.Debug("created pooled client", zap.String("base_url", key.BaseURL), zap.Int("pool_size", len(p.clients)))
	return c, nil
}

// Len returns the number of pooled clients.
func (p *ClientPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Evict closes and drops the client for cfg, if any.
func (p *ClientPool) Evict(cfg OllamaConfig) error {
	key := KeyOf(cfg)

	p.mu.Lock()
	c, ok := p.clients[key]
	delete(p.clients, key)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Close()
}

// Close closes every pooled client.
func (p *ClientPool) Close() error {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[ClientKey]*OllamaClient)
	p.mu.Unlock()

	var err error
	for _, c := range clients {
		err = multierr.Append(err, c.Close())
	}
	return err
}
