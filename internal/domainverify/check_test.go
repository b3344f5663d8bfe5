package domainverify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

// fakeResolver serves fixed TXT answers per domain.
type fakeResolver struct {
	records map[string][][]string
	errs    map[string]error
	calls   int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{records: map[string][][]string{}, errs: map[string]error{}}
}

func (f *fakeResolver) LookupTXT(ctx context.Context, domain string) ([][]string, error) {
	f.calls++
	if err := f.errs[domain]; err != nil {
		return nil, err
	}
	recs, ok := f.records[domain]
	if !ok {
		return nil, ErrNoRecords
	}
	return recs, nil
}

func TestCheckTXTRecordExactMatch(t *testing.T) {
	const code = "verify-abc123"

	tests := []struct {
		name   string
		record []string
		ok     bool
		reason Reason
	}{
		{"exact", []string{"verify-abc123"}, true, ReasonMatch},
		{"surrounding space", []string{"  verify-abc123 "}, true, ReasonMatch},
		{"among others", []string{"v=spf1 -all", "verify-abc123"}, true, ReasonMatch},
		{"prefix", []string{"xverify-abc123"}, false, ReasonMismatch},
		{"suffix", []string{"verify-abc1234"}, false, ReasonMismatch},
		{"case differs", []string{"Verify-ABC123"}, false, ReasonMismatch},
		{"only blanks", []string{"", "   "}, false, ReasonNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeResolver()
			r.records["shop.com"] = [][]string{tt.record}

			check := CheckTXTRecord(context.Background(), r, "shop.com", code)
			assert.Equal(t, tt.ok, check.OK)
			assert.Equal(t, tt.reason, check.Reason)
			assert.NotEmpty(t, check.Message)
		})
	}
}

// For any set of TXT values, the check matches iff a trimmed value equals the
// code exactly.
func TestCheckTXTRecordMatchProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("match iff some trimmed value equals code", prop.ForAll(
		func(values []string, code string, plant bool) bool {
			if plant {
				values = append(values, " "+code+"\t")
			}
			r := newFakeResolver()
			r.records["shop.com"] = [][]string{values}

			want := false
			for _, v := range values {
				if strings.TrimSpace(v) == code {
					want = true
				}
			}
			return CheckTXTRecord(context.Background(), r, "shop.com", code).OK == want
		},
		gen.SliceOf(gen.OneGenOf(gen.AlphaString(), gen.RegexMatch("verify-[a-f0-9]{4}"))),
		gen.RegexMatch("verify-[a-f0-9]{4}"),
		gen.Bool(),
	))

	properties.Property("case changes never match", prop.ForAll(
		func(hex string) bool {
			code := "verify-" + hex
			r := newFakeResolver()
			r.records["shop.com"] = [][]string{{strings.ToUpper(code)}}
			return !CheckTXTRecord(context.Background(), r, "shop.com", code).OK
		},
		gen.RegexMatch("[a-f][a-f0-9]{7}"),
	))

	properties.TestingRun(t)
}

func TestCheckTXTRecordChunks(t *testing.T) {
	r := newFakeResolver()
	r.records["shop.com"] = [][]string{
		{"google-site-verification=x", " "},
		{"", "verify-abc123"},
	}

	check := CheckTXTRecord(context.Background(), r, "shop.com", "verify-abc123")
	assert.True(t, check.OK)
	assert.Equal(t, []string{"google-site-verification=x", "verify-abc123"}, check.Records)
}

func TestCheckTXTRecordFailureClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason Reason
	}{
		{"no records", ErrNoRecords, ReasonNotFound},
		{"timeout", ErrDNSTimeout, ReasonTimeout},
		{"deadline", context.DeadlineExceeded, ReasonTimeout},
		{"other", errors.New("connection refused"), ReasonLookupFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeResolver()
			r.errs["shop.com"] = tt.err

			check := CheckTXTRecord(context.Background(), r, "shop.com", "verify-abc123")
			assert.False(t, check.OK)
			assert.Equal(t, tt.reason, check.Reason)
			assert.NotEmpty(t, check.Message)
		})
	}
}

func TestEmptyCodeNeverMatches(t *testing.T) {
	r := newFakeResolver()
	r.records["shop.com"] = [][]string{{"anything"}}
	assert.False(t, CheckTXTRecord(context.Background(), r, "shop.com", "").OK)
}
