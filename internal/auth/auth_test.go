package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/matheus3301/layover/internal/backend"
)

var secret = []byte("test-secret")

func TestIssueVerify(t *testing.T) {
	tok, err := Issue(secret, backend.User{ID: "u1", Name: "Ana"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	u, exp, err := Verify(secret, tok)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || u.Name != "Ana" {
		t.Errorf("user = %+v", u)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry = %v", exp)
	}

	if _, _, err := Verify([]byte("other"), tok); err == nil {
		t.Error("token verified with wrong secret")
	}
	expired, _ := Issue(secret, backend.User{ID: "u1"}, -time.Minute)
	if _, _, err := Verify(secret, expired); err == nil {
		t.Error("expired token verified")
	}
	if _, err := Issue(secret, backend.User{}, time.Hour); err == nil {
		t.Error("issued token without subject")
	}
}

func TestVerifyRejectsNoneAlg(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := Verify(secret, tok); err == nil {
		t.Error("unsigned token verified")
	}
}

func TestSessionNotifiesOnChange(t *testing.T) {
	s := NewSession(secret, nil)
	var seen []string
	cancel := s.OnAuthStateChange(func(u *backend.User) {
		if u == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, u.ID)
	})

	tokA, _ := Issue(secret, backend.User{ID: "a"}, time.Hour)
	tokB, _ := Issue(secret, backend.User{ID: "b"}, time.Hour)
	if _, err := s.SignIn(tokA); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SignIn(tokB); err != nil {
		t.Fatal(err)
	}
	s.SignOut()
	s.SignOut()
	if _, err := s.SignIn("garbage"); err == nil {
		t.Error("garbage token accepted")
	}
	cancel()
	_, _ = s.SignIn(tokA)

	want := []string{"a", "b", ""}
	if len(seen) != len(want) {
		t.Fatalf("seen = %q, want %q", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestCurrentUserExpires(t *testing.T) {
	s := NewSession(secret, nil)
	tok, _ := Issue(secret, backend.User{ID: "a"}, time.Hour)
	if _, err := s.SignIn(tok); err != nil {
		t.Fatal(err)
	}
	u, _ := s.CurrentUser(context.Background())
	if u == nil || u.ID != "a" {
		t.Fatalf("CurrentUser = %+v", u)
	}
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if u, _ := s.CurrentUser(context.Background()); u != nil {
		t.Errorf("CurrentUser after expiry = %+v", u)
	}
}
