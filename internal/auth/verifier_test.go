package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func hs256(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	input := enc(map[string]string{"alg": "HS256", "typ": "JWT"}) + "." + enc(claims)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(input))
	return input + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestDevToken(t *testing.T) {
	v := NewVerifier(Options{})
	p, err := v.Verify("Driver:drv-7")
	if err != nil || p.Role != RoleDriver || p.DriverID != "drv-7" {
		t.Fatalf("dev token: %+v %v", p, err)
	}
	if _, err := v.Verify(""); !errors.Is(err, ErrMalformed) {
		t.Fatalf("empty dev token: %v", err)
	}
}

func TestHMACToken(t *testing.T) {
	v := NewVerifier(Options{Mode: "hmac", HMACSecret: "s3cret"})
	v.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	tok := hs256(t, "s3cret", map[string]any{"role": "Operator", "sub": "u1", "exp": 1_700_000_060})
	p, err := v.Verify(tok)
	if err != nil || p.Role != RoleOperator || p.DriverID != "u1" {
		t.Fatalf("verify: %+v %v", p, err)
	}
	if _, err := v.Verify(hs256(t, "other", map[string]any{"role": "admin"})); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("wrong secret: %v", err)
	}
	if _, err := v.Verify(hs256(t, "s3cret", map[string]any{"role": "admin", "exp": 1_699_999_999})); !errors.Is(err, ErrExpired) {
		t.Fatalf("expired: %v", err)
	}
	p, err = v.Verify(hs256(t, "s3cret", map[string]any{}))
	if err != nil || p.Role != RoleViewer {
		t.Fatalf("default role: %+v %v", p, err)
	}
	if _, err := v.Verify("a.b"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("two segments: %v", err)
	}
}
