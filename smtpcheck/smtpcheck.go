// Package smtpcheck implements the SMTP verification dialog: connect
// (direct or via SOCKS5), negotiate TLS per policy, run the EHLO/MAIL
// FROM/RCPT TO dialog, and classify the response.
package smtpcheck

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"mailcheck/internal/proxy"
	"mailcheck/mx"
)

// Security selects how TLS is applied to the SMTP connection.
type Security int

const (
	// SecurityNone never uses TLS, even if STARTTLS is advertised.
	SecurityNone Security = iota
	// SecurityOpportunistic upgrades via STARTTLS only if advertised.
	SecurityOpportunistic
	// SecurityRequired upgrades via STARTTLS and aborts if not advertised.
	SecurityRequired
	// SecurityWrapper wraps the connection in TLS from the first byte.
	SecurityWrapper
)

var securityNames = map[Security]string{
	SecurityNone:          "none",
	SecurityOpportunistic: "opportunistic",
	SecurityRequired:      "required",
	SecurityWrapper:       "wrapper",
}

func (s Security) String() string {
	if name, ok := securityNames[s]; ok {
		return name
	}
	return "opportunistic"
}

// MarshalJSON serializes the policy by name, matching the wire shape of the
// input record's smtp_security field.
func (s Security) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Security) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for sec, n := range securityNames {
		if n == strings.ToLower(name) {
			*s = sec
			return nil
		}
	}
	return fmt.Errorf("unknown smtp_security %q", name)
}

// ErrorKind classifies an unrecoverable SMTP-layer failure.
type ErrorKind string

const (
	KindConnect  ErrorKind = "Connect"
	KindTls      ErrorKind = "Tls"
	KindProtocol ErrorKind = "Protocol"
	KindTimeout  ErrorKind = "Timeout"
)

// descriptionDict maps a case-insensitive substring match in the SMTP error
// text to a human-readable description tag. The first two entries are pinned
// exactly: callers rely on "blacklist" -> IpBlacklisted and "cannot find
// your reverse hostname" -> NeedsRDNS.
var descriptionDict = []struct {
	substr string
	tag    string
}{
	{"blacklist", "IpBlacklisted"},
	{"cannot find your reverse hostname", "NeedsRDNS"},
	{"spamhaus", "IpBlacklisted"},
	{"greylist", "Greylisted"},
}

// describe returns the description tag for message, or "" if none of the
// dictionary entries match.
func describe(message string) string {
	lower := strings.ToLower(message)
	for _, entry := range descriptionDict {
		if strings.Contains(lower, entry.substr) {
			return entry.tag
		}
	}
	return ""
}

// Error is the typed SMTP failure surfaced in CheckEmailOutput.smtp. The
// Description field is non-authoritative: it is only ever set for errors
// whose text matched descriptionDict, and it is never itself part of Kind so
// the dictionary can grow without widening the error type.
type Error struct {
	Kind        ErrorKind
	Message     string
	Description string
	cause       error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }
func (e *Error) Unwrap() error { return e.cause }

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Description: describe(message), cause: cause}
}

// Details is the populated result of a successful SMTP dialog (the dialog
// completed, however the recipient's server classified the recipient).
type Details struct {
	CanConnect    bool `json:"can_connect"`
	HasFullInbox  bool `json:"has_full_inbox"`
	IsCatchAll    bool `json:"is_catch_all"`
	IsDeliverable bool `json:"is_deliverable"`
	IsDisabled    bool `json:"is_disabled"`
}

// Config bundles the per-request SMTP dialog parameters.
type Config struct {
	FromEmail string
	HelloName string
	Port      uint16
	Security  Security
	// Timeout is the SMTP leg's wall budget. Nil means no timeout.
	Timeout *time.Duration
	Retries int
	Proxy   *proxy.Config
}

const defaultConnectTimeout = 10 * time.Second

// strictGateways are enterprise security gateways that rate-limit command
// pacing; probing them at full speed routinely gets the connection tarpitted.
var strictGateways = []string{
	"mimecast.com", "pphosted.com", "barracudanetworks.com", "messagelabs.com",
	"iphmx.com", "trendmicro.com", "trendmicro.eu", "sophos.com",
	"mailcontrol.com", "mxlogic.net", "fireeye.com", "mx.cloudflare.net",
}

func isStrictGateway(host string) bool {
	host = strings.ToLower(host)
	for _, gw := range strictGateways {
		if strings.Contains(host, gw) {
			return true
		}
	}
	return false
}

// ProbeExchanges attempts SMTP verification against mx hosts in preference
// order. The first exchange that establishes a connection determines the
// verdict — there is no fallback between MX hosts once connected, to avoid
// double-billing RCPT attempts against the same mailbox. A connect failure
// (TCP/TLS layer) does fall through to the next exchange.
func ProbeExchanges(ctx context.Context, exchanges []mx.Exchange, toEmail, domain string, cfg Config) (Details, *Error) {
	var lastErr *Error
	for _, ex := range exchanges {
		details, err := probeOne(ctx, ex.Host, toEmail, domain, cfg)
		if err != nil && (err.Kind == KindConnect || err.Kind == KindTls) {
			lastErr = err
			continue
		}
		return details, err
	}
	if lastErr == nil {
		lastErr = newError(KindConnect, "no MX exchanges available", nil)
	}
	return Details{}, lastErr
}

func probeOne(ctx context.Context, mxHost, toEmail, domain string, cfg Config) (Details, *Error) {
	addr := net.JoinHostPort(mxHost, strconv.Itoa(int(cfg.Port)))

	connectTimeout := defaultConnectTimeout
	if cfg.Timeout != nil && *cfg.Timeout < connectTimeout {
		connectTimeout = *cfg.Timeout
	}

	conn, err := proxy.DialContext(ctx, addr, connectTimeout, cfg.Proxy)
	if err != nil {
		return Details{}, newError(KindConnect, fmt.Sprintf("connecting to %s: %v", addr, err), err)
	}

	deadline := computeDeadline(ctx, cfg, mxHost)
	conn.SetDeadline(deadline)

	if cfg.Security == SecurityWrapper {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: mxHost})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return Details{}, newError(KindTls, fmt.Sprintf("TLS wrapper handshake: %v", err), err)
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		conn.Close()
		return Details{}, newError(KindConnect, fmt.Sprintf("client handshake: %v", err), err)
	}
	defer client.Close()

	delay := smartDelay(isStrictGateway(mxHost))

	if err := delay(ctx); err != nil {
		return Details{}, classifyTimeout(err)
	}
	if err := client.Hello(cfg.HelloName); err != nil {
		return Details{}, newError(KindProtocol, fmt.Sprintf("EHLO failed: %v", err), err)
	}

	if cfg.Security == SecurityOpportunistic || cfg.Security == SecurityRequired {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: mxHost}); err != nil {
				return Details{}, newError(KindTls, fmt.Sprintf("STARTTLS failed: %v", err), err)
			}
		} else if cfg.Security == SecurityRequired {
			return Details{}, newError(KindTls, "server did not advertise STARTTLS", nil)
		}
	}

	if err := delay(ctx); err != nil {
		return Details{}, classifyTimeout(err)
	}
	if err := client.Mail(cfg.FromEmail); err != nil {
		return Details{}, newError(KindProtocol, fmt.Sprintf("MAIL FROM failed: %v", err), err)
	}

	if err := delay(ctx); err != nil {
		return Details{}, classifyTimeout(err)
	}

	outcome, rcptErr := rcptWithRetries(ctx, client, toEmail, cfg.Retries, delay)
	if rcptErr != nil {
		return Details{}, rcptErr
	}

	details := Details{CanConnect: true}
	switch outcome {
	case outcomeDeliverable:
		details.IsDeliverable = true
		details.IsCatchAll = probeCatchAll(ctx, client, domain, delay)
	case outcomeFullInbox:
		details.IsDeliverable = true
		details.HasFullInbox = true
	case outcomeDisabled:
		details.IsDisabled = true
	case outcomeRejected:
		// IsDeliverable stays false, IsDisabled stays false: a definitive
		// rejection for reasons other than "mailbox does not exist".
	}

	_ = client.Quit()
	return details, nil
}

func classifyTimeout(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "SMTP dialog timed out", err)
	}
	return newError(KindProtocol, err.Error(), err)
}

func computeDeadline(ctx context.Context, cfg Config, mxHost string) time.Time {
	offset := 12 * time.Second
	if isStrictGateway(mxHost) {
		offset = 16 * time.Second
	}
	if cfg.Timeout != nil {
		offset = *cfg.Timeout
	}
	deadline := time.Now().Add(offset)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}

// smartDelay paces commands to strict enterprise gateways, to avoid being
// tarpitted for typing too fast; it is a no-op, context-aware otherwise.
func smartDelay(strict bool) func(context.Context) error {
	return func(ctx context.Context) error {
		if !strict {
			return nil
		}
		select {
		case <-time.After(1 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type rcptOutcome int

const (
	outcomeDeliverable rcptOutcome = iota
	outcomeFullInbox
	outcomeDisabled
	outcomeRejected
	outcomeBlocked
)

// rcptWithRetries issues RCPT TO, retrying the whole step on a transient
// response up to `retries` additional times while the connection is still
// open.
func rcptWithRetries(ctx context.Context, client *smtp.Client, email string, retries int, delay func(context.Context) error) (rcptOutcome, *Error) {
	attempts := retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := client.Rcpt(email)
		if err == nil {
			return outcomeDeliverable, nil
		}

		switch classifyRcpt(err) {
		case outcomeFullInbox:
			return outcomeFullInbox, nil
		case outcomeDisabled:
			return outcomeDisabled, nil
		case outcomeRejected:
			return outcomeRejected, nil
		case outcomeBlocked:
			// The server refused the probe itself (blacklist, missing rDNS,
			// policy), so this says nothing about the recipient. Surfaced as
			// an error so the description tag reaches the output record.
			return 0, newError(KindProtocol, err.Error(), err)
		default: // transient
			if attempt == attempts {
				return 0, newError(KindTimeout, fmt.Sprintf("transient after %d attempts: %v", attempts, err), err)
			}
			if derr := delay(ctx); derr != nil {
				return 0, classifyTimeout(derr)
			}
		}
	}
	return outcomeRejected, nil
}

// probeCatchAll issues a second RCPT TO for a random local part on the same
// connection and transaction; a 2xx response means the domain accepts any
// recipient. A transient response here is treated as "not catch-all" rather
// than retried — the catch-all probe is a secondary signal and not worth
// spending the retry budget on.
func probeCatchAll(ctx context.Context, client *smtp.Client, domain string, delay func(context.Context) error) bool {
	if err := delay(ctx); err != nil {
		return false
	}
	ghost := randomLocalPart() + "@" + domain
	return client.Rcpt(ghost) == nil
}

// classifyRcpt maps an error returned by (*smtp.Client).Rcpt into the
// response outcome taxonomy. Block/policy keywords are checked before the
// no-such-user phrasing: a "blocked by blacklist" refusal is about the
// probing host, not the recipient, and must not be swallowed into an
// ordinary rejection.
func classifyRcpt(err error) rcptOutcome {
	var textErr *textproto.Error
	lower := strings.ToLower(err.Error())

	fullInboxPhrases := []string{"mailbox full", "over quota", "quota exceeded", "mailbox is full"}
	for _, phrase := range fullInboxPhrases {
		if strings.Contains(lower, phrase) {
			return outcomeFullInbox
		}
	}

	if errors.As(err, &textErr) {
		switch {
		case textErr.Code == 450 || textErr.Code == 451 || textErr.Code == 452:
			return outcomeTransient
		case textErr.Code >= 500:
			if describe(lower) != "" {
				return outcomeBlocked
			}
			if strings.Contains(lower, "5.1.1") || isNoSuchUserText(lower) {
				return outcomeDisabled
			}
			return outcomeRejected
		case textErr.Code >= 400:
			return outcomeTransient
		}
	}

	if describe(lower) != "" {
		return outcomeBlocked
	}
	if isNoSuchUserText(lower) {
		return outcomeDisabled
	}
	return outcomeRejected
}

const outcomeTransient rcptOutcome = -1

var noSuchUserPhrases = []string{
	"does not exist", "user unknown", "no such user", "recipient rejected",
	"not found", "invalid mailbox", "not a valid mailbox", "mailbox unavailable",
	"unrouteable address", "no mailbox here", "unknown user", "bad destination",
	"address rejected",
}

func isNoSuchUserText(lower string) bool {
	for _, phrase := range noSuchUserPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// randomLocalPart builds a plausible human-looking local part for the
// catch-all probe.
func randomLocalPart() string {
	firstNames := []string{"alex", "michael", "sarah", "david", "emma", "chris", "jessica"}
	lastNames := []string{"smith", "jones", "taylor", "brown", "williams", "wilson", "johnson"}
	b := make([]byte, 3)
	if _, err := cryptorand.Read(b); err != nil {
		return "michael.smith.99"
	}
	return firstNames[int(b[0])%len(firstNames)] + "." + lastNames[int(b[1])%len(lastNames)] + fmt.Sprintf("%02x", b[2])
}
