package paymentswebhook

import (
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
)

func TestVerifySignature(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)
	valid := Sign(payload, "whsec", now)

	cases := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		code    pkgerrors.Code
	}{
		{name: "valid", payload: payload, header: valid, secret: "whsec"},
		{name: "rotated secondary signature", payload: payload, header: valid + ",v1=deadbeef", secret: "whsec"},
		{name: "missing header", payload: payload, header: "", secret: "whsec", code: pkgerrors.CodeUnauthorized},
		{name: "wrong secret", payload: payload, header: valid, secret: "other", code: pkgerrors.CodeUnauthorized},
		{name: "tampered body", payload: []byte(`{"id":"evt_2"}`), header: valid, secret: "whsec", code: pkgerrors.CodeUnauthorized},
		{name: "malformed", payload: payload, header: "garbage", secret: "whsec", code: pkgerrors.CodeUnauthorized},
		{name: "stale", payload: payload, header: Sign(payload, "whsec", now.Add(-10*time.Minute)), secret: "whsec", code: pkgerrors.CodeUnauthorized},
		{name: "no secret configured", payload: payload, header: valid, secret: "", code: pkgerrors.CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifySignature(tc.payload, tc.header, tc.secret, now, DefaultTolerance)
			if tc.code == "" {
				if err != nil {
					t.Fatalf("expected valid signature, got %v", err)
				}
				return
			}
			if got := pkgerrors.CodeOf(err); got != tc.code {
				t.Fatalf("expected code %s, got %s (%v)", tc.code, got, err)
			}
		})
	}
}
