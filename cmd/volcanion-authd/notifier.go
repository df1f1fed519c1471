package main

import (
	"context"
	"log/slog"
	"time"

	volcanion "github.com/rickymta/volcanion-auth"
)

// logNotifier writes single-use tokens to the log. It stands in for a mail
// integration during local development.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) SendPasswordReset(ctx context.Context, acct volcanion.Account, token string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "password reset token", "account_id", acct.ID, "email", acct.Email, "token", token, "expires_at", expiresAt)
	return nil
}

func (n logNotifier) SendEmailVerification(ctx context.Context, acct volcanion.Account, token string, expiresAt time.Time) error {
	n.logger.InfoContext(ctx, "email verification token", "account_id", acct.ID, "email", acct.Email, "token", token, "expires_at", expiresAt)
	return nil
}
