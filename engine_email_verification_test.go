package volcanion

import (
	"errors"
	"testing"
)

func TestEmailVerificationFlow(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.EmailVerification.RequireForLogin = true })
	digest, _ := h.hasher.Hash("pw-pending")
	h.store.PutAccount(Account{ID: "acct-5", Email: "pending@example.com", PasswordHash: digest, Active: true})

	if err := h.engine.RequestEmailVerification(h.ctx, "acct-5"); err != nil {
		t.Fatalf("request verification: %v", err)
	}
	token := h.notifier.verify["acct-5"]
	if token == "" {
		t.Fatalf("expected verification token to be delivered")
	}

	id, err := h.engine.ConfirmEmailVerification(h.ctx, token)
	if err != nil || id != "acct-5" {
		t.Fatalf("confirm: id=%q err=%v", id, err)
	}
	if _, err := h.engine.ConfirmEmailVerification(h.ctx, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("verification token must be single use, got %v", err)
	}

	h.login(t, "pending@example.com", "pw-pending")

	delete(h.notifier.verify, "acct-5")
	if err := h.engine.RequestEmailVerification(h.ctx, "acct-5"); err != nil {
		t.Fatalf("request for verified account: %v", err)
	}
	if _, ok := h.notifier.verify["acct-5"]; ok {
		t.Fatalf("verified accounts must not receive another token")
	}
}

func TestEmailVerificationTokenIsPurposeBound(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "acct-1", "x@example.com", "old password")
	if err := h.engine.RequestPasswordReset(h.ctx, "x@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}

	if _, err := h.engine.ConfirmEmailVerification(h.ctx, h.notifier.resets["acct-1"]); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("reset token must not verify email, got %v", err)
	}
}

func TestEmailVerificationUnknownAccount(t *testing.T) {
	h := newHarness(t)
	err := h.engine.RequestEmailVerification(h.ctx, "nobody")
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
