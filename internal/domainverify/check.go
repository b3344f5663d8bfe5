package domainverify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Reason classifies the outcome of a TXT check.
type Reason string

const (
	ReasonMatch        Reason = "match"
	ReasonMismatch     Reason = "mismatch"
	ReasonNotFound     Reason = "not_found"
	ReasonTimeout      Reason = "timeout"
	ReasonLookupFailed Reason = "lookup_failed"
)

// Transient reports whether the outcome says nothing about the records
// themselves.
func (r Reason) Transient() bool {
	return r == ReasonTimeout || r == ReasonLookupFailed
}

// DNSCheck is the result of checking a domain for its verification record.
type DNSCheck struct {
	OK      bool     `json:"ok"`
	Reason  Reason   `json:"reason"`
	Message string   `json:"message"`
	Records []string `json:"records,omitempty"`
}

// CheckTXTRecord resolves the TXT records of domain and reports whether one
// of them equals code. Record chunks are flattened, trimmed and empties
// dropped; comparison is exact and case-sensitive.
func CheckTXTRecord(ctx context.Context, resolver Resolver, domain, code string) DNSCheck {
	records, err := resolver.LookupTXT(ctx, domain)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoRecords):
			return DNSCheck{
				Reason:  ReasonNotFound,
				Message: fmt.Sprintf("No TXT records found for %s yet. DNS changes can take a while to propagate.", domain),
			}
		case errors.Is(err, ErrDNSTimeout), errors.Is(err, context.DeadlineExceeded):
			return DNSCheck{
				Reason:  ReasonTimeout,
				Message: "DNS server did not respond in time. Try again shortly.",
			}
		default:
			return DNSCheck{
				Reason:  ReasonLookupFailed,
				Message: fmt.Sprintf("DNS lookup for %s failed: %v", domain, err),
			}
		}
	}

	values := flattenTXT(records)
	for _, v := range values {
		if code != "" && v == code {
			return DNSCheck{
				OK:      true,
				Reason:  ReasonMatch,
				Message: "Verification record found.",
				Records: values,
			}
		}
	}

	if len(values) == 0 {
		return DNSCheck{
			Reason:  ReasonNotFound,
			Message: fmt.Sprintf("No TXT records found for %s yet. DNS changes can take a while to propagate.", domain),
		}
	}
	return DNSCheck{
		Reason:  ReasonMismatch,
		Message: fmt.Sprintf("TXT records found for %s, but none matches the verification code.", domain),
		Records: values,
	}
}

func flattenTXT(records [][]string) []string {
	var values []string
	for _, chunks := range records {
		for _, c := range chunks {
			if v := strings.TrimSpace(c); v != "" {
				values = append(values, v)
			}
		}
	}
	return values
}
