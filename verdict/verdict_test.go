package verdict

import (
	"testing"

	"mailcheck/mx"
	"mailcheck/smtpcheck"
	"mailcheck/syntax"
)

func TestFuse(t *testing.T) {
	validSyntax := syntax.Details{IsValidSyntax: true}
	oneExchange := mx.Details{Exchanges: []mx.Exchange{{Host: "mx1.example.com", Preference: 10}}}

	tests := []struct {
		name        string
		syn         syntax.Details
		isDisposable bool
		isRole      bool
		mxErr       *mx.Error
		mxDetails   mx.Details
		smtpDetails smtpcheck.Details
		smtpErr     *smtpcheck.Error
		want        Reachable
	}{
		{
			name: "invalid syntax short circuits before mx/smtp",
			syn:  syntax.Details{IsValidSyntax: false},
			want: Invalid,
		},
		{
			name:  "mx error is invalid",
			syn:   validSyntax,
			mxErr: &mx.Error{Kind: mx.NoRecord},
			want:  Invalid,
		},
		{
			name:      "no mx exchanges is invalid",
			syn:       validSyntax,
			mxDetails: mx.Details{},
			want:      Invalid,
		},
		{
			name:      "smtp connect error is unknown",
			syn:       validSyntax,
			mxDetails: oneExchange,
			smtpErr:   &smtpcheck.Error{Kind: smtpcheck.KindConnect},
			want:      Unknown,
		},
		{
			name:      "smtp disabled mailbox is invalid",
			syn:       validSyntax,
			mxDetails: oneExchange,
			smtpDetails: smtpcheck.Details{
				CanConnect: true,
				IsDisabled: true,
			},
			want: Invalid,
		},
		{
			name:      "smtp definitive rejection is invalid",
			syn:       validSyntax,
			mxDetails: oneExchange,
			smtpDetails: smtpcheck.Details{
				CanConnect:    true,
				IsDeliverable: false,
				IsDisabled:    false,
			},
			want: Invalid,
		},
		{
			name:      "deliverable plain mailbox is safe",
			syn:       validSyntax,
			mxDetails: oneExchange,
			smtpDetails: smtpcheck.Details{
				CanConnect:    true,
				IsDeliverable: true,
			},
			want: Safe,
		},
		{
			name:      "catch-all downgrades to risky",
			syn:       validSyntax,
			mxDetails: oneExchange,
			smtpDetails: smtpcheck.Details{
				CanConnect:    true,
				IsDeliverable: true,
				IsCatchAll:    true,
			},
			want: Risky,
		},
		{
			name:      "full inbox downgrades to risky",
			syn:       validSyntax,
			mxDetails: oneExchange,
			smtpDetails: smtpcheck.Details{
				CanConnect:    true,
				IsDeliverable: true,
				HasFullInbox:  true,
			},
			want: Risky,
		},
		{
			name:         "disposable domain downgrades an otherwise safe result",
			syn:          validSyntax,
			isDisposable: true,
			mxDetails:    oneExchange,
			smtpDetails: smtpcheck.Details{
				CanConnect:    true,
				IsDeliverable: true,
			},
			want: Risky,
		},
		{
			name:      "role account downgrades an otherwise safe result",
			syn:       validSyntax,
			isRole:    true,
			mxDetails: oneExchange,
			smtpDetails: smtpcheck.Details{
				CanConnect:    true,
				IsDeliverable: true,
			},
			want: Risky,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fuse(tt.syn, tt.isDisposable, tt.isRole, tt.mxErr, tt.mxDetails, tt.smtpDetails, tt.smtpErr)
			if got != tt.want {
				t.Errorf("Fuse() = %q, want %q", got, tt.want)
			}
		})
	}
}
