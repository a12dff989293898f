package mailcheck

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mailcheck/misc"
	"mailcheck/mx"
	"mailcheck/provider"
	"mailcheck/smtpcheck"
	"mailcheck/syntax"
	"mailcheck/verdict"
)

// Config bundles the process-wide collaborators CheckEmail needs beyond the
// per-request CheckEmailInput: the WebDriver endpoint for Headless provider
// methods and an optional shared HTTP client for the Api backend. The misc
// probes do not use this client; they build their own per request. These are
// injected rather than ambient.
type Config struct {
	WebdriverAddr string
	HTTPClient    *http.Client
}

const defaultWebdriverAddr = "http://localhost:9515"

// NewConfig reads RCH_WEBDRIVER_ADDR, defaulting to http://localhost:9515
// when unset.
func NewConfig() Config {
	addr := os.Getenv("RCH_WEBDRIVER_ADDR")
	if addr == "" {
		addr = defaultWebdriverAddr
	}
	return Config{WebdriverAddr: addr}
}

// auxiliaryBudget bounds the Misc Collector leg independently of the SMTP
// timeout.
const auxiliaryBudget = 10 * time.Second

// CheckEmail implements the Pipeline Driver: it runs the Syntax Analyzer,
// then the MX Resolver, then the Misc Collector concurrently with the
// Provider Dispatcher (which in turn may delegate to the SMTP Prober), and
// finally fuses every signal into a Reachable grade. It never panics or
// returns an error: every failure surface is encoded as a typed error field
// in the returned record.
func CheckEmail(ctx context.Context, input CheckEmailInput, cfg Config) CheckEmailOutput {
	start := time.Now()
	out := CheckEmailOutput{Input: input.ToEmail}

	synDetails := syntax.Analyze(input.ToEmail)
	out.Syntax = synDetails

	if !synDetails.IsValidSyntax {
		out.IsReachable = verdict.Invalid
		end := time.Now()
		out.Debug = DebugDetails{StartTime: start, EndTime: end, Duration: end.Sub(start)}
		return out
	}

	mxDetails, mxErr := mx.Lookup(ctx, synDetails.Domain)
	out.MX = MXResult{Details: &mxDetails, Err: mxErr}

	isDisposable := syntax.IsDisposableDomain(synDetails.Domain)
	isRole := syntax.IsRoleAccount(synDetails.Username)

	var (
		// Role/disposable flags survive even when the MX lookup fails and the
		// misc leg never runs.
		miscDetails = misc.Details{IsDisposable: isDisposable, IsRole: isRole}
		miscErr     *misc.Error
		smtpDetails smtpcheck.Details
		smtpErr     *smtpcheck.Error
		backendName string
	)

	if mxErr == nil && len(mxDetails.Exchanges) > 0 {
		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			auxCtx, cancel := context.WithTimeout(ctx, auxiliaryBudget)
			defer cancel()
			miscDetails, miscErr = misc.Collect(auxCtx, synDetails.Address, misc.Config{
				CheckGravatar:        input.CheckGravatar,
				HaveIBeenPwnedAPIKey: input.HaveIBeenPwnedAPIKey,
				IsDisposable:         isDisposable,
				IsRole:               isRole,
				Proxy:                input.Proxy,
			})
		}()

		go func() {
			defer wg.Done()
			family := provider.Classify(synDetails.Domain, mxDetails.Exchanges)
			methods := provider.Methods{
				Gmail:      input.GmailMethod,
				Yahoo:      input.YahooMethod,
				HotmailB2B: input.HotmailB2BMethod,
				HotmailB2C: input.HotmailB2CMethod,
			}
			backendName = backendNameFor(family, methods)

			smtpCtx := ctx
			if input.SMTPTimeout != nil {
				var cancel context.CancelFunc
				smtpCtx, cancel = context.WithTimeout(ctx, *input.SMTPTimeout)
				defer cancel()
			}

			smtpDetails, smtpErr = provider.Dispatch(smtpCtx, family, methods, provider.Context{
				ToEmail:   synDetails.Address,
				Domain:    synDetails.Domain,
				Exchanges: mxDetails.Exchanges,
				SMTP: smtpcheck.Config{
					FromEmail: input.FromEmail,
					HelloName: input.HelloName,
					Port:      input.SMTPPort,
					Security:  input.SMTPSecurity,
					Timeout:   input.SMTPTimeout,
					Retries:   input.Retries,
					Proxy:     input.Proxy,
				},
				WebdriverAddr: cfg.WebdriverAddr,
				HTTPClient:    cfg.HTTPClient,
			})
		}()

		wg.Wait()
	}

	out.Misc = MiscResult{Details: &miscDetails, Err: miscErr}
	out.SMTP = SMTPResult{Details: &smtpDetails, Err: smtpErr}
	out.IsReachable = verdict.Fuse(synDetails, isDisposable, isRole, mxErr, mxDetails, smtpDetails, smtpErr)

	end := time.Now()
	out.Debug = DebugDetails{BackendName: backendName, StartTime: start, EndTime: end, Duration: end.Sub(start)}

	logrus.WithFields(logrus.Fields{
		"email":        input.ToEmail,
		"is_reachable": out.IsReachable,
		"backend_name": backendName,
		"duration":     out.Debug.Duration,
	}).Debug("check_email completed")

	return out
}

// backendNameFor names the backend actually selected, for debug.backend_name.
func backendNameFor(family provider.Family, methods provider.Methods) string {
	switch family {
	case provider.Gmail:
		if methods.Gmail == provider.GmailApi {
			return "gmail:api"
		}
		return "gmail:smtp"
	case provider.Yahoo:
		switch methods.Yahoo {
		case provider.YahooApi:
			return "yahoo:api"
		case provider.YahooHeadless:
			return "yahoo:headless"
		default:
			return "yahoo:smtp"
		}
	case provider.HotmailB2B:
		return "hotmail_b2b:smtp"
	case provider.HotmailB2C:
		if methods.HotmailB2C == provider.HotmailB2CHeadless {
			return "hotmail_b2c:headless"
		}
		return "hotmail_b2c:smtp"
	default:
		return "other:smtp"
	}
}
