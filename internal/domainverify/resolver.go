package domainverify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DNS lookup errors. Other failures are returned wrapped as they are.
var (
	// ErrNoRecords means the name does not exist or holds no TXT records.
	ErrNoRecords = errors.New("no TXT records")
	// ErrDNSTimeout means no nameserver answered in time or all reported a server failure.
	ErrDNSTimeout = errors.New("DNS server did not respond in time")
)

// Resolver looks up TXT records. Each returned record is the list of its
// character-string chunks.
type Resolver interface {
	LookupTXT(ctx context.Context, domain string) ([][]string, error)
}

// DefaultNameservers are used when none are configured and /etc/resolv.conf
// cannot be read.
var DefaultNameservers = []string{"1.1.1.1:53", "8.8.8.8:53"}

const resolvConfPath = "/etc/resolv.conf"

// DNSResolver queries nameservers directly over UDP, retrying over TCP when
// an answer is truncated.
type DNSResolver struct {
	servers []string
	timeout time.Duration
}

// NewDNSResolver creates a resolver querying servers in order. Entries
// without a port use 53. With no servers, the system resolv.conf is read.
func NewDNSResolver(servers []string, timeout time.Duration) *DNSResolver {
	if len(servers) == 0 {
		servers = systemNameservers()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(strings.Trim(s, "[]"), "53")
		}
		normalized = append(normalized, s)
	}
	if len(normalized) == 0 {
		normalized = DefaultNameservers
	}

	return &DNSResolver{servers: normalized, timeout: timeout}
}

func systemNameservers() []string {
	cfg, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(cfg.Servers) == 0 {
		return DefaultNameservers
	}
	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return servers
}

// Servers returns the nameservers queried, in order.
func (r *DNSResolver) Servers() []string {
	return append([]string(nil), r.servers...)
}

// LookupTXT resolves the TXT records of domain. A definitive negative answer
// from any server ends the lookup; timeouts and server failures move on to
// the next server.
func (r *DNSResolver) LookupTXT(ctx context.Context, domain string) ([][]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeTXT)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		if err := ctx.Err(); err != nil {
			return nil, classifyNetError(err)
		}

		resp, err := r.exchange(ctx, msg, server)
		if err != nil {
			lastErr = classifyNetError(err)
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
			records := txtRecords(resp)
			if len(records) == 0 {
				return nil, ErrNoRecords
			}
			return records, nil
		case dns.RcodeNameError:
			return nil, ErrNoRecords
		case dns.RcodeServerFailure:
			lastErr = ErrDNSTimeout
		default:
			lastErr = fmt.Errorf("querying %s: rcode %s", server, dns.RcodeToString[resp.Rcode])
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no nameservers configured")
	}
	return nil, lastErr
}

func (r *DNSResolver) exchange(ctx context.Context, msg *dns.Msg, server string) (*dns.Msg, error) {
	client := &dns.Client{Net: "udp", Timeout: r.timeout}
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		client.Net = "tcp"
		resp, _, err = client.ExchangeContext(ctx, msg, server)
		if err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func txtRecords(resp *dns.Msg) [][]string {
	var records [][]string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			records = append(records, txt.Txt)
		}
	}
	return records
}

func classifyNetError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDNSTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrDNSTimeout
	}
	return fmt.Errorf("DNS lookup: %w", err)
}

var _ Resolver = (*DNSResolver)(nil)
