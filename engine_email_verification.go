package volcanion

import "context"

// RequestEmailVerification sends a verification token to accountID.
// Accounts that are already verified are left alone.
func (e *Engine) RequestEmailVerification(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.RequestEmailVerification(ctx, accountID)
}

// ConfirmEmailVerification redeems a verification token and returns the
// id of the account it verified.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, token string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.flow.ConfirmEmailVerification(ctx, token)
}
