// Package verdict fuses the independent signals gathered by the rest of the
// pipeline into the single four-valued Reachable grade.
package verdict

import (
	"mailcheck/mx"
	"mailcheck/smtpcheck"
	"mailcheck/syntax"
)

// Reachable is the confidence grade attached to the verification result.
type Reachable string

const (
	Safe    Reachable = "safe"
	Risky   Reachable = "risky"
	Invalid Reachable = "invalid"
	Unknown Reachable = "unknown"
)

// Fuse combines syntax validity, MX outcome, and SMTP outcome into the
// four-valued Reachable grade. isDisposable/isRole come from the syntax
// analyzer; they never change the SMTP-derived verdict on their own except
// to downgrade a deliverable result from Safe to Risky.
func Fuse(syn syntax.Details, isDisposable, isRole bool, mxErr *mx.Error, mxDetails mx.Details, smtpDetails smtpcheck.Details, smtpErr *smtpcheck.Error) Reachable {
	if !syn.IsValidSyntax {
		return Invalid
	}

	if mxErr != nil || len(mxDetails.Exchanges) == 0 {
		return Invalid
	}

	if smtpErr != nil {
		// Connect failure, TLS/protocol fault, or ambiguous transient
		// exhausted after retries — never distinguishable from each other
		// at this layer, so all resolve to Unknown.
		return Unknown
	}

	if !smtpDetails.IsDeliverable {
		// No error was raised, yet the recipient was not accepted: either
		// smtpDetails.IsDisabled (5.1.1 family) or a definitive rejection
		// for any other reason. Both are Invalid.
		return Invalid
	}

	if smtpDetails.IsCatchAll || smtpDetails.HasFullInbox || isDisposable || isRole {
		return Risky
	}

	return Safe
}
