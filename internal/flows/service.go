package flows

import "context"

// Deps bundles the dependency structs of every flow.
type Deps struct {
	Login             LoginDeps
	Refresh           RefreshDeps
	Logout            LogoutDeps
	PasswordReset     PasswordResetDeps
	EmailVerification EmailVerificationDeps
}

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.Issue != nil && s.deps.Refresh.Rotate != nil
}

func (s Service) Login(ctx context.Context, in LoginInput) (IssuedPair, error) {
	return RunLogin(ctx, in, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, raw string) (IssuedPair, error) {
	return RunRefresh(ctx, raw, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, raw string) (bool, error) {
	return RunLogout(ctx, raw, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, accountID string) (int64, error) {
	return RunLogoutAll(ctx, accountID, s.deps.Logout)
}

func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	return RunRequestPasswordReset(ctx, email, s.deps.PasswordReset)
}

func (s Service) ConfirmPasswordReset(ctx context.Context, raw, newPassword string) error {
	return RunConfirmPasswordReset(ctx, raw, newPassword, s.deps.PasswordReset)
}

func (s Service) RequestEmailVerification(ctx context.Context, accountID string) error {
	return RunRequestEmailVerification(ctx, accountID, s.deps.EmailVerification)
}

func (s Service) ConfirmEmailVerification(ctx context.Context, raw string) (string, error) {
	return RunConfirmEmailVerification(ctx, raw, s.deps.EmailVerification)
}
