// Package mx performs the DNS MX lookup stage of the verification pipeline.
package mx

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
	"time"
)

// DNSBudget bounds the DNS query independently of the SMTP timeout.
const DNSBudget = 5 * time.Second

// ErrorKind classifies why an MX lookup failed.
type ErrorKind string

const (
	NoRecord      ErrorKind = "NoRecord"
	LookupTimeout ErrorKind = "LookupTimeout"
	Transport     ErrorKind = "Transport"
)

// Error is the typed MX failure surfaced in CheckEmailOutput.mx.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }
func (e *Error) Unwrap() error { return e.cause }

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Exchange is one MX record, host and preference.
type Exchange struct {
	Host       string `json:"host"`
	Preference uint16 `json:"preference"`
}

// Details holds the ordered exchange list on a successful lookup.
type Details struct {
	Exchanges []Exchange `json:"exchanges"`
}

// resolver is the DNS resolver behind lookupMX. lookupMX binds its method at
// package init, so tests replace lookupMX rather than this variable.
var resolver = &net.Resolver{
	PreferGo: true,
	Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
		// A direct dialer is required for DNS: SOCKS5 proxies used for SMTP
		// do not carry UDP, and most don't proxy the TCP DNS fallback either.
		d := net.Dialer{Timeout: 3 * time.Second}
		return d.DialContext(ctx, network, address)
	},
}

// lookupMX is the resolution seam, swapped out in tests to avoid real DNS.
var lookupMX = resolver.LookupMX

// Lookup resolves domain's MX records and returns them sorted by preference.
// An empty record set is classified as NoRecord, never as a successful empty
// list.
func Lookup(ctx context.Context, domain string) (Details, *Error) {
	lctx, cancel := context.WithTimeout(ctx, DNSBudget)
	defer cancel()

	records, err := lookupMX(lctx, domain)
	if err != nil {
		if errors.Is(lctx.Err(), context.DeadlineExceeded) {
			return Details{}, newError(LookupTimeout, "MX lookup timed out", err)
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return Details{}, newError(NoRecord, "no MX records found for domain", err)
		}
		return Details{}, newError(Transport, err.Error(), err)
	}

	if len(records) == 0 {
		return Details{}, newError(NoRecord, "no MX records found for domain", nil)
	}

	exchanges := make([]Exchange, 0, len(records))
	for _, r := range records {
		exchanges = append(exchanges, Exchange{
			Host:       strings.TrimSuffix(r.Host, "."),
			Preference: r.Pref,
		})
	}
	sort.Slice(exchanges, func(i, j int) bool { return exchanges[i].Preference < exchanges[j].Preference })

	return Details{Exchanges: exchanges}, nil
}
