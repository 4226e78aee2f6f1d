// Package pacing spaces out outbound requests and backs off when sites or
// search engines start blocking.
package pacing

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contact-scraper/internal/config"
	"github.com/sells-group/contact-scraper/internal/resilience"
)

// Config holds pacing parameters. Zero values disable the matching delay.
type Config struct {
	MinDelay          time.Duration
	MaxDelay          time.Duration
	BatchSize         int
	BatchCooldownMin  time.Duration
	BatchCooldownMax  time.Duration
	BlockThreshold    int
	BlockCooldown     time.Duration
	RequestsPerSecond float64
}

// FromConfig converts the config section into durations.
func FromConfig(c config.PacingConfig) Config {
	return Config{
		MinDelay:          time.Duration(c.MinDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(c.MaxDelayMs) * time.Millisecond,
		BatchSize:         c.BatchSize,
		BatchCooldownMin:  time.Duration(c.BatchCooldownMinSec) * time.Second,
		BatchCooldownMax:  time.Duration(c.BatchCooldownMaxSec) * time.Second,
		BlockThreshold:    c.BlockThreshold,
		BlockCooldown:     time.Duration(c.BlockCooldownSecs) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

// Stats is a snapshot of controller counters.
type Stats struct {
	Companies         int `json:"companies"`
	ConsecutiveBlocks int `json:"consecutive_blocks"`
	BatchCooldowns    int `json:"batch_cooldowns"`
	BlockCooldowns    int `json:"block_cooldowns"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithSleep replaces the sleep function (for tests).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithRand replaces the source of random durations. fn(n) must return a
// value in [0, n).
func WithRand(fn func(n int64) int64) Option {
	return func(c *Controller) { c.randN = fn }
}

// Controller is shared by every worker of a run.
type Controller struct {
	cfg     Config
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	randN   func(n int64) int64

	mu    sync.Mutex
	stats Stats
}

// New creates a Controller.
func New(cfg Config, opts ...Option) *Controller {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.BatchCooldownMax < cfg.BatchCooldownMin {
		cfg.BatchCooldownMax = cfg.BatchCooldownMin
	}
	c := &Controller{
		cfg:   cfg,
		sleep: resilience.Sleep,
		randN: rand.Int64N,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BeforeRequest waits for the rate limiter and a random politeness delay.
func (c *Controller) BeforeRequest(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.sleep(ctx, c.between(c.cfg.MinDelay, c.cfg.MaxDelay))
}

// BeforeSearch paces search provider calls the same way as page requests.
func (c *Controller) BeforeSearch(ctx context.Context) error {
	return c.BeforeRequest(ctx)
}

// CompanyDone counts a finished company and sleeps a batch cooldown after
// every BatchSize companies.
func (c *Controller) CompanyDone(ctx context.Context) error {
	c.mu.Lock()
	c.stats.Companies++
	n := c.stats.Companies
	due := c.cfg.BatchSize > 0 && n%c.cfg.BatchSize == 0
	if due {
		c.stats.BatchCooldowns++
	}
	c.mu.Unlock()

	if !due {
		return nil
	}
	d := c.between(c.cfg.BatchCooldownMin, c.cfg.BatchCooldownMax)
	zap.L().Info("pacing: batch cooldown",
		zap.Int("companies", n),
		zap.Duration("pause", d),
	)
	return c.sleep(ctx, d)
}

// RecordBlock notes a blocked response. BlockThreshold consecutive blocks
// trigger BlockCooldown and reset the counter.
func (c *Controller) RecordBlock(ctx context.Context) error {
	c.mu.Lock()
	c.stats.ConsecutiveBlocks++
	trip := c.cfg.BlockThreshold > 0 && c.stats.ConsecutiveBlocks >= c.cfg.BlockThreshold
	if trip {
		c.stats.ConsecutiveBlocks = 0
		c.stats.BlockCooldowns++
	}
	c.mu.Unlock()

	if !trip {
		return nil
	}
	zap.L().Warn("pacing: repeated blocks, cooling down",
		zap.Int("threshold", c.cfg.BlockThreshold),
		zap.Duration("pause", c.cfg.BlockCooldown),
	)
	return c.sleep(ctx, c.cfg.BlockCooldown)
}

// RecordSuccess resets the consecutive block counter.
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	c.stats.ConsecutiveBlocks = 0
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Controller) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.randN(int64(hi-lo)+1))
}
