// Package webdriver drives a remote WebDriver session to exercise a
// provider's password-recovery flow as an account-existence oracle, for the
// Provider Dispatcher's Headless backend.
package webdriver

import (
	"fmt"
	"strings"
	"time"

	"github.com/tebeka/selenium"
)

// Outcome is the account-existence signal read off the recovery page text.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeExists
	OutcomeDoesNotExist
)

// Session drives one password-recovery probe against a remote WebDriver
// endpoint (RCH_WEBDRIVER_ADDR).
type Session struct {
	Addr    string
	Timeout time.Duration
}

// existsPhrases are page-text fragments meaning the provider recognized the
// account and is prompting for a password or second factor.
var existsPhrases = []string{
	"enter the password", "enter your password", "verify your identity",
	"enter the code", "we texted your phone",
}

// notExistsPhrases are page-text fragments meaning the provider rejected the
// identifier outright.
var notExistsPhrases = []string{
	"couldn't find your account", "this account doesn't exist",
	"we could not find an account", "no account found",
}

// Probe navigates to recoveryURL (which the caller has already built with
// email substituted in), reads the resulting page text, and classifies it.
func (s Session) Probe(recoveryURL string) (Outcome, error) {
	caps := selenium.Capabilities{"browserName": "chrome"}
	wd, err := selenium.NewRemote(caps, s.Addr)
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("connecting to webdriver at %s: %w", s.Addr, err)
	}
	defer wd.Quit()

	if s.Timeout > 0 {
		if err := wd.SetPageLoadTimeout(s.Timeout); err != nil {
			return OutcomeUnknown, fmt.Errorf("setting page load timeout: %w", err)
		}
	}

	if err := wd.Get(recoveryURL); err != nil {
		return OutcomeUnknown, fmt.Errorf("loading recovery page: %w", err)
	}

	body, err := wd.FindElement(selenium.ByTagName, "body")
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("reading recovery page: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return OutcomeUnknown, fmt.Errorf("reading recovery page text: %w", err)
	}

	return classify(text), nil
}

func classify(pageText string) Outcome {
	lower := strings.ToLower(pageText)
	for _, phrase := range notExistsPhrases {
		if strings.Contains(lower, phrase) {
			return OutcomeDoesNotExist
		}
	}
	for _, phrase := range existsPhrases {
		if strings.Contains(lower, phrase) {
			return OutcomeExists
		}
	}
	return OutcomeUnknown
}
