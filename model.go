// Package mailcheck determines whether an email address is deliverable
// without sending mail, returning a four-valued Reachable verdict backed by
// structured evidence from syntax analysis, DNS/MX lookup, an SMTP dialog,
// and a handful of auxiliary signals.
package mailcheck

import (
	"time"

	"mailcheck/internal/proxy"
	"mailcheck/provider"
	"mailcheck/smtpcheck"
)

// ProxyConfig describes an optional SOCKS5 proxy used for the SMTP leg.
type ProxyConfig = proxy.Config

// CheckEmailInput is the frozen input record for one verification. Build it
// with NewCheckEmailInput, then adjust fields before the single CheckEmail
// call — it is not safe to mutate concurrently with an in-flight check.
type CheckEmailInput struct {
	ToEmail   string       `json:"to_email"`
	FromEmail string       `json:"from_email"`
	HelloName string       `json:"hello_name"`
	Proxy     *ProxyConfig `json:"proxy,omitempty"`

	SMTPPort     uint16             `json:"smtp_port"`
	SMTPTimeout  *time.Duration     `json:"smtp_timeout"` // nil means no timeout
	SMTPSecurity smtpcheck.Security `json:"smtp_security"`
	Retries      int                `json:"retries"`

	GmailMethod      provider.GmailMethod      `json:"gmail"`
	YahooMethod      provider.YahooMethod      `json:"yahoo"`
	HotmailB2BMethod provider.HotmailB2BMethod `json:"hotmailb2b"`
	HotmailB2CMethod provider.HotmailB2CMethod `json:"hotmailb2c"`

	CheckGravatar        bool   `json:"check_gravatar"`
	HaveIBeenPwnedAPIKey string `json:"haveibeenpwned_api_key,omitempty"`
}

const defaultSMTPTimeout = 30 * time.Second

// NewCheckEmailInput returns an input record for toEmail with every default
// applied: from_email/hello_name sentinels, port 25, a 30s SMTP timeout,
// Opportunistic TLS, one retry, and each provider's default method.
func NewCheckEmailInput(toEmail string) CheckEmailInput {
	timeout := defaultSMTPTimeout
	return CheckEmailInput{
		ToEmail:      toEmail,
		FromEmail:    "verify@mailcheck.invalid",
		HelloName:    "mailcheck.invalid",
		SMTPPort:     25,
		SMTPTimeout:  &timeout,
		SMTPSecurity: smtpcheck.SecurityOpportunistic,
		Retries:      1,

		GmailMethod:      provider.GmailSmtp,
		YahooMethod:      provider.YahooHeadless,
		HotmailB2BMethod: provider.HotmailB2BSmtp,
		HotmailB2CMethod: provider.HotmailB2CHeadless,
	}
}
