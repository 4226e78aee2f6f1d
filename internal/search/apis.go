package search

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-scraper/pkg/brave"
	"github.com/sells-group/contact-scraper/pkg/jina"
)

// Jina searches through the Jina search API.
type Jina struct {
	client jina.Client
}

// NewJina wraps a Jina client.
func NewJina(client jina.Client) *Jina {
	return &Jina{client: client}
}

// Name implements Provider.
func (j *Jina) Name() string { return "jina" }

// Search implements Provider.
func (j *Jina) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	resp, err := j.client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "jina provider")
	}
	return capResults(resp.URLs(), maxResults), nil
}

// Brave searches through the Brave Search API.
type Brave struct {
	client brave.Client
}

// NewBrave wraps a Brave client.
func NewBrave(client brave.Client) *Brave {
	return &Brave{client: client}
}

// Name implements Provider.
func (b *Brave) Name() string { return "brave" }

// Search implements Provider.
func (b *Brave) Search(ctx context.Context, query string, maxResults int) ([]string, error) {
	resp, err := b.client.WebSearch(ctx, query, brave.WithCount(maxResults))
	if err != nil {
		if eris.Is(err, brave.ErrRateLimited) {
			return nil, eris.Wrap(ErrBlocked, err.Error())
		}
		return nil, eris.Wrap(err, "brave provider")
	}
	return capResults(resp.URLs(), maxResults), nil
}

func capResults(urls []string, maxResults int) []string {
	if maxResults > 0 && len(urls) > maxResults {
		return urls[:maxResults]
	}
	return urls
}
