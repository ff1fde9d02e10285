package auth

import (
	"errors"
	"testing"
	"time"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestIssueValidate(t *testing.T) {
	i := NewIssuer(secret, time.Hour)
	tok, err := i.Issue("player-1", "ada", "lvl")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := i.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.PlayerID != "player-1" || c.Name != "ada" || c.LevelID != "lvl" || c.Subject != "player-1" {
		t.Fatalf("claims: %+v", c)
	}
}

func TestValidate_Rejects(t *testing.T) {
	i := NewIssuer(secret, time.Minute)
	tok, _ := i.Issue("player-1", "", "")

	other := NewIssuer(secret+"x", time.Minute)
	if _, err := other.Validate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: %v", err)
	}

	i.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := i.Validate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: %v", err)
	}
	if _, err := i.Validate("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: %v", err)
	}
}

func TestDisabled(t *testing.T) {
	var i *Issuer = NewIssuer("", 0)
	if i.Enabled() {
		t.Fatalf("empty secret should disable auth")
	}
	if _, err := i.Issue("p", "", ""); !errors.Is(err, ErrDisabled) {
		t.Fatalf("issue: %v", err)
	}
	if _, err := i.Validate("x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("validate: %v", err)
	}
}
