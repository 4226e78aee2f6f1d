// Package search resolves a company name to its official website through
// an ordered chain of interchangeable search providers.
package search

import (
	"context"

	"github.com/rotisserie/eris"
)

// Provider is a web search backend. Search returns result URLs in rank
// order, at most maxResults of them.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
}

var (
	// ErrBlocked is returned when a provider served a captcha or anomaly
	// page instead of results.
	ErrBlocked = eris.New("search: provider blocked")

	// ErrAllProvidersFailed is returned when every provider in the chain
	// raised an error for a query.
	ErrAllProvidersFailed = eris.New("search: all providers failed")
)

// chainError reports a query every provider failed. It matches
// ErrAllProvidersFailed, and ErrBlocked when any provider was blocked.
type chainError struct {
	blocked bool
	last    error
}

func (e *chainError) Error() string {
	msg := ErrAllProvidersFailed.Error()
	if e.blocked {
		msg += " (blocked)"
	}
	if e.last != nil {
		msg += ": " + e.last.Error()
	}
	return msg
}

func (e *chainError) Is(target error) bool {
	return target == ErrAllProvidersFailed || (e.blocked && target == ErrBlocked)
}

func (e *chainError) Unwrap() error { return e.last }
