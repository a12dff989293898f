package mailcheck

import (
	"context"
	"os"
	"testing"

	"mailcheck/provider"
	"mailcheck/verdict"
)

func TestCheckEmail_InvalidSyntaxShortCircuits(t *testing.T) {
	input := NewCheckEmailInput("not-an-email")
	out := CheckEmail(context.Background(), input, NewConfig())

	if out.IsReachable != verdict.Invalid {
		t.Errorf("IsReachable = %v, want %v", out.IsReachable, verdict.Invalid)
	}
	if out.Syntax.IsValidSyntax {
		t.Error("expected syntax analysis to mark the address invalid")
	}
	if out.MX.Err != nil || out.MX.Details != nil {
		t.Errorf("expected mx to stay untouched, got %+v", out.MX)
	}
	if out.SMTP.Err != nil || out.SMTP.Details != nil {
		t.Errorf("expected smtp to stay untouched, got %+v", out.SMTP)
	}
	if out.Debug.EndTime.Before(out.Debug.StartTime) {
		t.Error("end_time must not precede start_time")
	}
	if out.Input != input.ToEmail {
		t.Errorf("Input = %q, want %q", out.Input, input.ToEmail)
	}
}

func TestNewCheckEmailInput_Defaults(t *testing.T) {
	input := NewCheckEmailInput("someone@example.com")

	if input.SMTPPort != 25 {
		t.Errorf("SMTPPort = %d, want 25", input.SMTPPort)
	}
	if input.Retries != 1 {
		t.Errorf("Retries = %d, want 1", input.Retries)
	}
	if input.SMTPTimeout == nil || *input.SMTPTimeout <= 0 {
		t.Error("expected a non-nil, positive default SMTP timeout")
	}
	if input.YahooMethod != provider.YahooHeadless {
		t.Errorf("YahooMethod = %v, want %v", input.YahooMethod, provider.YahooHeadless)
	}
	if input.GmailMethod != provider.GmailSmtp {
		t.Errorf("GmailMethod = %v, want %v", input.GmailMethod, provider.GmailSmtp)
	}
}

func TestNewConfig_DefaultsWebdriverAddr(t *testing.T) {
	os.Unsetenv("RCH_WEBDRIVER_ADDR")
	cfg := NewConfig()
	if cfg.WebdriverAddr != defaultWebdriverAddr {
		t.Errorf("WebdriverAddr = %q, want %q", cfg.WebdriverAddr, defaultWebdriverAddr)
	}

	os.Setenv("RCH_WEBDRIVER_ADDR", "http://example.invalid:4444")
	defer os.Unsetenv("RCH_WEBDRIVER_ADDR")
	cfg = NewConfig()
	if cfg.WebdriverAddr != "http://example.invalid:4444" {
		t.Errorf("WebdriverAddr = %q, want env override", cfg.WebdriverAddr)
	}
}

func TestBackendNameFor(t *testing.T) {
	methods := provider.Methods{
		Gmail:      provider.GmailApi,
		Yahoo:      provider.YahooHeadless,
		HotmailB2B: provider.HotmailB2BSmtp,
		HotmailB2C: provider.HotmailB2CSmtp,
	}

	tests := []struct {
		family provider.Family
		want   string
	}{
		{provider.Gmail, "gmail:api"},
		{provider.Yahoo, "yahoo:headless"},
		{provider.HotmailB2B, "hotmail_b2b:smtp"},
		{provider.HotmailB2C, "hotmail_b2c:smtp"},
		{provider.Other, "other:smtp"},
	}
	for _, tt := range tests {
		if got := backendNameFor(tt.family, methods); got != tt.want {
			t.Errorf("backendNameFor(%v) = %q, want %q", tt.family, got, tt.want)
		}
	}
}
