package mailcheck

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCheckEmailInput_ProxyWireShape(t *testing.T) {
	input := NewCheckEmailInput("someone@example.com")
	input.Proxy = &ProxyConfig{Host: "proxy.example.com", Port: 1080, Username: "user"}

	raw, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)

	for _, key := range []string{`"host":"proxy.example.com"`, `"port":1080`, `"username":"user"`} {
		if !strings.Contains(body, key) {
			t.Errorf("expected %s in %s", key, body)
		}
	}
	if strings.Contains(body, `"password"`) {
		t.Errorf("empty password must be omitted, got %s", body)
	}
	if strings.Contains(body, `"Host"`) {
		t.Errorf("proxy keys must be lowercase, got %s", body)
	}
}

func TestCheckEmailInput_ProxyDecodesFromWireShape(t *testing.T) {
	raw := []byte(`{"to_email":"someone@example.com","proxy":{"host":"proxy.example.com","port":1080,"username":"user","password":"pass"}}`)

	input := NewCheckEmailInput("")
	if err := json.Unmarshal(raw, &input); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if input.Proxy == nil {
		t.Fatal("expected proxy to be populated")
	}
	if input.Proxy.Host != "proxy.example.com" || input.Proxy.Port != 1080 {
		t.Errorf("proxy = %+v, want host/port from the wire body", input.Proxy)
	}
	if input.Proxy.Username != "user" || input.Proxy.Password != "pass" {
		t.Errorf("proxy credentials = %q/%q, want user/pass", input.Proxy.Username, input.Proxy.Password)
	}
}
