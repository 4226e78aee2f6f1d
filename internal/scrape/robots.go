package scrape

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// RobotsCache fetches robots.txt once per host and answers allow checks.
// A missing, unreachable or unparseable robots.txt allows everything.
type RobotsCache struct {
	client *http.Client
	agent  string

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

// NewRobotsCache creates a cache that tests paths against agent.
func NewRobotsCache(client *http.Client, agent string) *RobotsCache {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RobotsCache{
		client: client,
		agent:  agent,
		hosts:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched.
func (c *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	c.mu.Lock()
	data, ok := c.hosts[u.Host]
	c.mu.Unlock()
	if !ok {
		data = c.load(ctx, u.Scheme+"://"+u.Host+"/robots.txt")
		c.mu.Lock()
		c.hosts[u.Host] = data
		c.mu.Unlock()
	}
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), c.agent)
}

func (c *RobotsCache) load(ctx context.Context, robotsURL string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.agent)
	resp, err := c.client.Do(req)
	if err != nil {
		zap.L().Debug("scrape: robots.txt unreachable", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		zap.L().Debug("scrape: robots.txt unparseable", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	return data
}
