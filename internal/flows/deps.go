package flows

import (
	"context"
	"time"
)

// Hooks carries the observability callbacks shared by every flow. Nil
// fields are ignored.
type Hooks struct {
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID, sessionID string, err error, meta func() map[string]string)
	Warn      func(msg string, args ...any)
}

func (h Hooks) inc(id int) {
	if h.MetricInc != nil {
		h.MetricInc(id)
	}
}

func (h Hooks) audit(ctx context.Context, event string, success bool, accountID, sessionID string, err error, meta func() map[string]string) {
	if h.EmitAudit != nil {
		h.EmitAudit(ctx, event, success, accountID, sessionID, err, meta)
	}
}

func (h Hooks) warn(msg string, args ...any) {
	if h.Warn != nil {
		h.Warn(msg, args...)
	}
}

// Principal is the flow-local account view.
type Principal struct {
	ID            string
	Email         string
	PasswordHash  string
	Active        bool
	EmailVerified bool
}

// IssueInput is what a flow asks the token issuer to embed.
type IssueInput struct {
	AccountID   string
	Email       string
	SessionID   string
	Permissions []string
}

// IssuedPair is the flow-local token pair.
type IssuedPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
}

// RefreshRecord is the flow-local view of a stored refresh token.
type RefreshRecord struct {
	AccountID string
	Revoked   bool
	ExpiresAt time.Time
}
