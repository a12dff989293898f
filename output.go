package mailcheck

import (
	"encoding/json"
	"time"

	"mailcheck/misc"
	"mailcheck/mx"
	"mailcheck/smtpcheck"
	"mailcheck/syntax"
	"mailcheck/verdict"
)

// errorPayload is the {type, message} shape nested under "error" for every
// error variant.
type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MXResult is the Ok/Err sum type for the output record's mx field.
type MXResult struct {
	Details *mx.Details
	Err     *mx.Error
}

func (r MXResult) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(struct {
			Error errorPayload `json:"error"`
		}{Error: errorPayload{Type: string(r.Err.Kind), Message: r.Err.Message}})
	}
	if r.Details == nil {
		return json.Marshal(mx.Details{})
	}
	return json.Marshal(*r.Details)
}

// SMTPResult is the Ok/Err sum type for the output record's smtp field. The
// error variant carries an optional sibling "description" key, populated
// only when the error text matched the description dictionary.
type SMTPResult struct {
	Details *smtpcheck.Details
	Err     *smtpcheck.Error
}

func (r SMTPResult) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		payload := struct {
			Error       errorPayload `json:"error"`
			Description string       `json:"description,omitempty"`
		}{
			Error:       errorPayload{Type: string(r.Err.Kind), Message: r.Err.Message},
			Description: r.Err.Description,
		}
		return json.Marshal(payload)
	}
	if r.Details == nil {
		return json.Marshal(smtpcheck.Details{})
	}
	return json.Marshal(*r.Details)
}

// MiscResult is the Ok/Err sum type for the output record's misc field.
type MiscResult struct {
	Details *misc.Details
	Err     *misc.Error
}

func (r MiscResult) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(struct {
			Error errorPayload `json:"error"`
		}{Error: errorPayload{Type: string(r.Err.Kind), Message: r.Err.Message}})
	}
	if r.Details == nil {
		return json.Marshal(misc.Details{})
	}
	return json.Marshal(*r.Details)
}

// DebugDetails records pipeline timing and the backend that served the SMTP
// leg.
type DebugDetails struct {
	BackendName string        `json:"backend_name"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	SMTPDebug   string        `json:"smtp_debug,omitempty"`
}

// CheckEmailOutput is the additively-populated output record. Its field
// order is significant: encoding/json marshals exported struct fields in
// declaration order, and the wire format requires exactly this key order
// (input, is_reachable, misc, mx, smtp, syntax, debug) — no whole-struct
// custom marshaler is needed as long as this order is preserved.
type CheckEmailOutput struct {
	Input       string            `json:"input"`
	IsReachable verdict.Reachable `json:"is_reachable"`
	Misc        MiscResult        `json:"misc"`
	MX          MXResult          `json:"mx"`
	SMTP        SMTPResult        `json:"smtp"`
	Syntax      syntax.Details    `json:"syntax"`
	Debug       DebugDetails      `json:"debug"`
}
