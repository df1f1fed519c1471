package volcanion

import "context"

// RequestPasswordReset sends a single-use reset token to the account
// registered under email. It returns nil whether or not the email exists.
// Requests per email are capped by PasswordReset.MaxRequests per Window;
// excess calls return ErrRateLimited. Without a Notifier the flow reports
// ErrFeatureDisabled.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.RequestPasswordReset(ctx, email)
}

// ConfirmPasswordReset redeems a reset token and sets newPassword. Every
// refresh token and cached session of the account is terminated. Used,
// expired and unknown tokens all return ErrTokenInvalid.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.ConfirmPasswordReset(ctx, token, newPassword)
}
