package extract

import (
	"context"
	"sync"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// MXVerifier drops emails whose domain publishes no MX record. Lookups are
// memoized per domain for the lifetime of the verifier.
type MXVerifier struct {
	servers []string
	client  *dns.Client

	mu    sync.Mutex
	cache map[string]bool
}

// NewMXVerifier queries the given resolvers ("host:port") in order.
func NewMXVerifier(servers []string, timeout time.Duration) *MXVerifier {
	if len(servers) == 0 {
		servers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MXVerifier{
		servers: servers,
		client:  &dns.Client{Timeout: timeout},
		cache:   make(map[string]bool),
	}
}

// Filter keeps the emails whose domain has MX records. Emails on a domain no
// resolver gave a verdict for are kept.
func (v *MXVerifier) Filter(ctx context.Context, emails []string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if v.HasMX(ctx, EmailDomain(e)) {
			out = append(out, e)
		}
	}
	return out
}

// HasMX reports whether domain has at least one MX answer.
func (v *MXVerifier) HasMX(ctx context.Context, domain string) bool {
	if domain == "" {
		return false
	}

	v.mu.Lock()
	ok, cached := v.cache[domain]
	v.mu.Unlock()
	if cached {
		return ok
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	// Only NOERROR and NXDOMAIN are verdicts; SERVFAIL, REFUSED and
	// transport errors move on to the next resolver.
	ok, decided := false, false
	for _, server := range v.servers {
		resp, _, err := v.client.ExchangeContext(ctx, msg, server)
		if err != nil || resp == nil {
			zap.L().Debug("mx: resolver failed", zap.String("server", server), zap.String("domain", domain), zap.Error(err))
			continue
		}
		switch resp.Rcode {
		case dns.RcodeSuccess:
			ok, decided = hasMXAnswer(resp), true
		case dns.RcodeNameError:
			decided = true
		default:
			zap.L().Debug("mx: resolver gave no verdict",
				zap.String("server", server),
				zap.String("domain", domain),
				zap.String("rcode", dns.RcodeToString[resp.Rcode]),
			)
			continue
		}
		break
	}
	if !decided {
		return true
	}

	v.mu.Lock()
	v.cache[domain] = ok
	v.mu.Unlock()
	return ok
}

func hasMXAnswer(resp *dns.Msg) bool {
	for _, rr := range resp.Answer {
		if _, ok := rr.(*dns.MX); ok {
			return true
		}
	}
	return false
}
