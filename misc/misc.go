// Package misc runs the optional auxiliary signal probes: gravatar presence
// and HaveIBeenPwned breach history, alongside the role/disposable flags
// already computed by the syntax analyzer. None of these signals are ever
// allowed to change the Reachable verdict — a failure here populates the
// error variant of misc and nothing else.
package misc

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mailcheck/internal/proxy"
)

// ErrorKind classifies why the misc collector could not complete.
type ErrorKind string

const (
	KindHttp ErrorKind = "Http"
	KindAuth ErrorKind = "Auth"
)

// Error is the typed Misc Collector failure surfaced in CheckEmailOutput.misc.
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

// Details is the populated result of a successful misc collection.
type Details struct {
	HasGravatar  bool `json:"has_gravatar"`
	IsDisposable bool `json:"is_disposable"`
	IsRole       bool `json:"is_role"`
	BreachCount  int  `json:"breach_count"`
}

// Config bundles the per-request misc probe parameters.
type Config struct {
	CheckGravatar        bool
	HaveIBeenPwnedAPIKey string
	IsDisposable         bool
	IsRole               bool
	Proxy                *proxy.Config
}

const auxiliaryBudget = 8 * time.Second

// newClient builds an http.Client routed through cfg's optional SOCKS5
// proxy, scoped to one request rather than a shared package-level client,
// since the proxy is a per-request config rather than a rotating pool.
func newClient(proxyCfg *proxy.Config) *http.Client {
	return &http.Client{
		Timeout: auxiliaryBudget,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return proxy.DialContext(ctx, addr, auxiliaryBudget, proxyCfg)
			},
		},
	}
}

// Collect runs the configured probes and assembles Details. Role and
// disposable flags are passed in from the syntax analyzer rather than
// recomputed here.
func Collect(ctx context.Context, email string, cfg Config) (Details, *Error) {
	d := Details{IsDisposable: cfg.IsDisposable, IsRole: cfg.IsRole}

	client := newClient(cfg.Proxy)

	if cfg.CheckGravatar {
		has, err := checkGravatar(ctx, client, email)
		if err != nil {
			return Details{}, err
		}
		d.HasGravatar = has
	}

	if cfg.HaveIBeenPwnedAPIKey != "" {
		count, err := checkBreaches(ctx, client, email, cfg.HaveIBeenPwnedAPIKey)
		if err != nil {
			return Details{}, err
		}
		d.BreachCount = count
	}

	return d, nil
}

// checkGravatar issues an HTTP HEAD against the gravatar URL derived from
// the MD5 of the lowercased, trimmed address: 200 means a custom avatar is
// set, 404 means the default "not found" image was served. HEAD is used
// since the probe only needs the status code.
func checkGravatar(ctx context.Context, client *http.Client, email string) (bool, *Error) {
	clean := strings.TrimSpace(strings.ToLower(email))
	hash := md5.Sum([]byte(clean))
	endpoint := fmt.Sprintf("https://www.gravatar.com/avatar/%x?d=404", hash)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false, newError(KindHttp, err.Error(), err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return false, newError(KindHttp, err.Error(), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, newError(KindHttp, fmt.Sprintf("unexpected gravatar status %d", resp.StatusCode), nil)
	}
}

const hibpBase = "https://haveibeenpwned.com/api/v3/breachedaccount/"

type hibpBreach struct {
	Name string `json:"Name"`
}

// checkBreaches queries the HaveIBeenPwned v3 API. url.PathEscape handles
// local parts containing `+` or `%`.
func checkBreaches(ctx context.Context, client *http.Client, email, apiKey string) (int, *Error) {
	endpoint := hibpBase + url.PathEscape(email) + "?truncateResponse=true"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, newError(KindHttp, err.Error(), err)
	}
	req.Header.Set("hibp-api-key", apiKey)
	req.Header.Set("User-Agent", "mailcheck-verifier")

	resp, err := client.Do(req)
	if err != nil {
		return 0, newError(KindHttp, err.Error(), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var breaches []hibpBreach
		if err := json.NewDecoder(resp.Body).Decode(&breaches); err != nil {
			return 0, newError(KindHttp, err.Error(), err)
		}
		return len(breaches), nil
	case http.StatusNotFound:
		return 0, nil
	case http.StatusUnauthorized:
		return 0, newError(KindAuth, "invalid HaveIBeenPwned API key", nil)
	case http.StatusTooManyRequests:
		return 0, newError(KindHttp, "HaveIBeenPwned rate limit exceeded", nil)
	default:
		return 0, newError(KindHttp, fmt.Sprintf("unexpected HaveIBeenPwned status %d", resp.StatusCode), nil)
	}
}
