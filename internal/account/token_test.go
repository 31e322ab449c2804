package account

import (
	"database/sql"
	"strings"
	"testing"
	"time"
)

func nullString(s string, valid bool) sql.NullString {
	return sql.NullString{String: s, Valid: valid}
}

func TestSessionSecretRoundtrip(t *testing.T) {
	key := []byte("test-signing-key")
	expires := time.Now().Add(time.Hour)

	secret, err := signSessionSecret(key, "sess-1", "acct-1", expires)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := parseSessionSecret(key, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("session id = %q, want sess-1", claims.SessionID)
	}
	if claims.AccountID != "acct-1" {
		t.Errorf("account id = %q, want acct-1", claims.AccountID)
	}
	if claims.Issuer != "storeit" {
		t.Errorf("issuer = %q, want storeit", claims.Issuer)
	}
}

func TestSessionSecretWrongKey(t *testing.T) {
	secret, err := signSessionSecret([]byte("key-a"), "sess-1", "acct-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := parseSessionSecret([]byte("key-b"), secret); err == nil {
		t.Error("secret signed with another key should not parse")
	}
}

func TestSessionSecretExpired(t *testing.T) {
	key := []byte("test-signing-key")
	secret, err := signSessionSecret(key, "sess-1", "acct-1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := parseSessionSecret(key, secret); err == nil {
		t.Error("expired secret should not parse")
	}
}

func TestSessionSecretTampered(t *testing.T) {
	key := []byte("test-signing-key")
	secret, err := signSessionSecret(key, "sess-1", "acct-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parts := strings.Split(secret, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + ".eyJzZXNzaW9uX2lkIjoib3RoZXIifQ." + parts[2]

	if _, err := parseSessionSecret(key, tampered); err == nil {
		t.Error("tampered secret should not parse")
	}
}

func TestRandomCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := randomCode(6)
		if err != nil {
			t.Fatalf("randomCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q has length %d, want 6", code, len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q contains non-digit", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("50 draws produced a single code; generator looks broken")
	}
}

func TestParseCredentialState(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		want  CredentialState
	}{
		{"", false, CredentialNone},
		{"none", true, CredentialNone},
		{"email_otp", true, CredentialEmailOTP},
		{"password", true, CredentialPassword},
		{"garbage", true, CredentialNone},
	}
	for _, tt := range tests {
		got := parseCredentialState(nullString(tt.in, tt.valid))
		if got != tt.want {
			t.Errorf("parseCredentialState(%q, valid=%v) = %q, want %q", tt.in, tt.valid, got, tt.want)
		}
	}
}
