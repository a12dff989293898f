// Package provider implements the Provider Dispatcher: classifying a domain
// into a provider family, then selecting and invoking the SMTP, HTTP-API, or
// headless-browser backend configured for that family. Family classification
// matches on the recipient domain, and on MX hostname substrings for Hotmail
// B2B; the HTTP-API backend POSTs a candidate
// identifier to a provider's credential-type-lookup endpoint, the same
// technique Microsoft's own login flow exposes, generalized to Gmail and
// Yahoo's equivalent endpoints.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mailcheck/internal/webdriver"
	"mailcheck/mx"
	"mailcheck/smtpcheck"
)

// Family is the domain's provider category, driving which verification
// methods are legal.
type Family string

const (
	Gmail      Family = "gmail"
	Yahoo      Family = "yahoo"
	HotmailB2B Family = "hotmail_b2b"
	HotmailB2C Family = "hotmail_b2c"
	Other      Family = "other"
)

var gmailDomains = map[string]bool{"gmail.com": true, "googlemail.com": true}
var yahooDomains = map[string]bool{
	"yahoo.com": true, "yahoo.co.uk": true, "yahoo.fr": true,
	"ymail.com": true, "rocketmail.com": true,
}
var hotmailB2CDomains = map[string]bool{
	"hotmail.com": true, "outlook.com": true, "live.com": true, "msn.com": true,
}

// Classify derives the provider family from the recipient's domain and, for
// the Hotmail B2B/B2C split, the domain's MX exchanges: a consumer webmail
// domain is B2C directly, while a custom domain whose MX points at
// Microsoft 365 (protection.outlook.com) is B2B.
func Classify(domain string, exchanges []mx.Exchange) Family {
	domain = strings.ToLower(domain)

	if gmailDomains[domain] {
		return Gmail
	}
	if yahooDomains[domain] {
		return Yahoo
	}
	if hotmailB2CDomains[domain] {
		return HotmailB2C
	}
	for _, ex := range exchanges {
		host := strings.ToLower(ex.Host)
		if strings.Contains(host, "outlook.com") || strings.Contains(host, "protection.outlook.com") {
			return HotmailB2B
		}
	}
	return Other
}

// GmailMethod selects Gmail's verification backend.
type GmailMethod string

const (
	GmailSmtp GmailMethod = "smtp"
	GmailApi  GmailMethod = "api"
)

// YahooMethod selects Yahoo's verification backend.
type YahooMethod string

const (
	YahooHeadless YahooMethod = "headless"
	YahooApi      YahooMethod = "api"
	YahooSmtp     YahooMethod = "smtp"
)

// HotmailB2BMethod selects Hotmail B2B's verification backend.
type HotmailB2BMethod string

const HotmailB2BSmtp HotmailB2BMethod = "smtp"

// HotmailB2CMethod selects Hotmail B2C's verification backend.
type HotmailB2CMethod string

const (
	HotmailB2CHeadless HotmailB2CMethod = "headless"
	HotmailB2CSmtp     HotmailB2CMethod = "smtp"
)

// Methods bundles the four per-provider method selectors from
// CheckEmailInput, with defaults already applied by the caller
// (model.go's NewCheckEmailInput).
type Methods struct {
	Gmail      GmailMethod
	Yahoo      YahooMethod
	HotmailB2B HotmailB2BMethod
	HotmailB2C HotmailB2CMethod
}

// Context bundles everything a backend needs to verify one address, beyond
// the method selection itself.
type Context struct {
	ToEmail       string
	Domain        string
	Exchanges     []mx.Exchange
	SMTP          smtpcheck.Config
	WebdriverAddr string
	HTTPClient    *http.Client
}

// Dispatch selects the backend for family per methods and invokes it. An
// unavailable backend (e.g. unreachable WebDriver endpoint) is surfaced as a
// plain smtpcheck error rather than silently retried on another method.
func Dispatch(ctx context.Context, family Family, methods Methods, pc Context) (smtpcheck.Details, *smtpcheck.Error) {
	switch family {
	case Gmail:
		if methods.Gmail == GmailApi {
			return apiBackend(ctx, pc, gmailLookupEndpoint)
		}
		return smtpBackend(ctx, pc)

	case Yahoo:
		switch methods.Yahoo {
		case YahooApi:
			return apiBackend(ctx, pc, yahooLookupEndpoint)
		case YahooHeadless:
			return headlessBackend(ctx, pc, yahooRecoveryURL)
		default:
			return smtpBackend(ctx, pc)
		}

	case HotmailB2C:
		if methods.HotmailB2C == HotmailB2CHeadless {
			return headlessBackend(ctx, pc, microsoftRecoveryURL)
		}
		return smtpBackend(ctx, pc)

	default: // HotmailB2B, Other
		return smtpBackend(ctx, pc)
	}
}

func smtpBackend(ctx context.Context, pc Context) (smtpcheck.Details, *smtpcheck.Error) {
	return smtpcheck.ProbeExchanges(ctx, pc.Exchanges, pc.ToEmail, pc.Domain, pc.SMTP)
}

// credentialLookupResponse mirrors Microsoft's own credential-type-lookup
// response shape, generalized across providers: a POST of the candidate
// identifier, with a boolean-ish "exists" field in the response used to
// populate IsDeliverable/IsDisabled.
type credentialLookupResponse struct {
	IfExistsResult int `json:"IfExistsResult"`
}

func gmailLookupEndpoint() string { return "https://accounts.google.com/_/signin/sl/lookup" }
func yahooLookupEndpoint() string { return "https://login.yahoo.com/account/sign_in/identifier" }

// apiBackend POSTs the candidate address to a provider's credential-type
// lookup endpoint and maps the response straight onto the SMTP detail shape.
func apiBackend(ctx context.Context, pc Context, endpoint func() string) (smtpcheck.Details, *smtpcheck.Error) {
	client := pc.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	payload, _ := json.Marshal(map[string]string{"username": pc.ToEmail})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(), bytes.NewReader(payload))
	if err != nil {
		return smtpcheck.Details{}, apiError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return smtpcheck.Details{}, apiError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return smtpcheck.Details{}, apiError(fmt.Errorf("provider API returned status %d", resp.StatusCode))
	}

	var result credentialLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return smtpcheck.Details{}, apiError(err)
	}

	// IfExistsResult == 0 means the provider recognizes the identifier.
	if result.IfExistsResult == 0 {
		return smtpcheck.Details{CanConnect: true, IsDeliverable: true}, nil
	}
	return smtpcheck.Details{CanConnect: true, IsDisabled: true}, nil
}

func apiError(err error) *smtpcheck.Error {
	return &smtpcheck.Error{Kind: smtpcheck.KindConnect, Message: err.Error()}
}

func yahooRecoveryURL(email string) string {
	return "https://login.yahoo.com/forgot?identifier=" + email
}

func microsoftRecoveryURL(email string) string {
	return "https://account.live.com/ResetPassword.aspx?identifier=" + email
}

// headlessBackend drives a WebDriver session through a provider's
// password-recovery flow and maps the textual outcome onto the SMTP detail
// shape.
func headlessBackend(ctx context.Context, pc Context, recoveryURL func(string) string) (smtpcheck.Details, *smtpcheck.Error) {
	session := webdriver.Session{Addr: pc.WebdriverAddr, Timeout: 15 * time.Second}

	outcome, err := session.Probe(recoveryURL(pc.ToEmail))
	if err != nil {
		return smtpcheck.Details{}, &smtpcheck.Error{Kind: smtpcheck.KindConnect, Message: err.Error()}
	}

	switch outcome {
	case webdriver.OutcomeExists:
		return smtpcheck.Details{CanConnect: true, IsDeliverable: true}, nil
	case webdriver.OutcomeDoesNotExist:
		return smtpcheck.Details{CanConnect: true, IsDisabled: true}, nil
	default:
		return smtpcheck.Details{}, &smtpcheck.Error{Kind: smtpcheck.KindProtocol, Message: "recovery page text did not match any known pattern"}
	}
}
