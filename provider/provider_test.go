package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"mailcheck/mx"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		domain    string
		exchanges []mx.Exchange
		want      Family
	}{
		{name: "gmail", domain: "gmail.com", want: Gmail},
		{name: "googlemail alias", domain: "googlemail.com", want: Gmail},
		{name: "yahoo", domain: "Yahoo.com", want: Yahoo},
		{name: "hotmail consumer", domain: "hotmail.com", want: HotmailB2C},
		{name: "outlook consumer", domain: "outlook.com", want: HotmailB2C},
		{
			name:      "custom domain on office365 mx is b2b",
			domain:    "acmecorp.com",
			exchanges: []mx.Exchange{{Host: "acmecorp-com.mail.protection.outlook.com", Preference: 10}},
			want:      HotmailB2B,
		},
		{
			name:      "custom domain on unrelated mx is other",
			domain:    "acmecorp.com",
			exchanges: []mx.Exchange{{Host: "mail.acmecorp.com", Preference: 10}},
			want:      Other,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.domain, tt.exchanges)
			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.domain, got, tt.want)
			}
		})
	}
}

func TestApiBackend(t *testing.T) {
	tests := []struct {
		name           string
		ifExistsResult int
		wantDeliverable bool
		wantDisabled    bool
	}{
		{name: "recognized identifier", ifExistsResult: 0, wantDeliverable: true},
		{name: "unrecognized identifier", ifExistsResult: 1, wantDisabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				json.NewEncoder(w).Encode(credentialLookupResponse{IfExistsResult: tt.ifExistsResult})
			}))
			defer srv.Close()

			pc := Context{ToEmail: "someone@example.com", HTTPClient: srv.Client()}
			details, err := apiBackend(context.Background(), pc, func() string { return srv.URL })
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if details.IsDeliverable != tt.wantDeliverable || details.IsDisabled != tt.wantDisabled {
				t.Errorf("details = %+v, want deliverable=%v disabled=%v", details, tt.wantDeliverable, tt.wantDisabled)
			}
		})
	}
}

func TestApiBackend_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pc := Context{ToEmail: "someone@example.com", HTTPClient: srv.Client()}
	_, err := apiBackend(context.Background(), pc, func() string { return srv.URL })
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
