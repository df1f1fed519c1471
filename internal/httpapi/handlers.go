package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	volcanion "github.com/rickymta/volcanion-auth"
	"github.com/rickymta/volcanion-auth/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type errorBody struct {
	Error string `json:"error"`
}

type meResponse struct {
	AccountID   string                  `json:"account_id"`
	Email       string                  `json:"email"`
	SessionID   string                  `json:"session_id,omitempty"`
	Permissions []string                `json:"permissions"`
	ExpiresAt   time.Time               `json:"expires_at"`
	Sessions    []volcanion.SessionInfo `json:"sessions"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}
	pair, err := a.engine.Login(r.Context(), volcanion.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Device:   req.Device,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.decode(w, r, &req) {
		return
	}
	pair, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.decode(w, r, &req) {
		return
	}
	revoked, err := a.engine.Logout(r.Context(), req.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	n, err := a.engine.LogoutAll(r.Context(), id.AccountID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

// handlePasswordResetRequest answers 202 whether or not the email exists.
func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.engine.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleEmailVerificationRequest(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	if err := a.engine.RequestEmailVerification(r.Context(), id.AccountID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleEmailVerificationConfirm(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !a.decode(w, r, &req) {
		return
	}
	accountID, err := a.engine.ConfirmEmailVerification(r.Context(), req.Token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account_id": accountID})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	sessions, err := a.engine.Sessions(r.Context(), id.AccountID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []volcanion.SessionInfo{}
	}
	perms := id.Permissions
	if perms == nil {
		perms = []string{}
	}
	writeJSON(w, http.StatusOK, meResponse{
		AccountID:   id.AccountID,
		Email:       id.Email,
		SessionID:   id.SessionID,
		Permissions: perms,
		ExpiresAt:   id.ExpiresAt,
		Sessions:    sessions,
	})
}

/*
====================================
HELPERS
====================================
*/

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	reader := http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
	defer reader.Close()

	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	if err == nil {
		if extra := dec.Decode(&struct{}{}); !errors.Is(extra, io.EOF) {
			err = errors.New("unexpected data after JSON body")
		}
	}
	if err != nil {
		a.logger.Debug("reject request body", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: volcanion.KindInvalidInput.String()})
		return false
	}
	return true
}

// fail maps an engine error to a status and logs only server-side faults.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := statusFor(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "kind", kind, "err", err)
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="volcanion"`)
	}
	writeJSON(w, code, errorBody{Error: kind})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, volcanion.ErrFeatureDisabled):
		return http.StatusNotFound, "feature_disabled"
	case errors.Is(err, volcanion.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "not_ready"
	case errors.Is(err, volcanion.ErrEmailNotVerified):
		return http.StatusForbidden, "email_not_verified"
	}

	kind := volcanion.KindOf(err)
	name := kind.String()
	switch kind {
	case volcanion.KindInvalidCredentials,
		volcanion.KindTokenInvalid,
		volcanion.KindTokenExpired,
		volcanion.KindTokenRevoked:
		return http.StatusUnauthorized, name
	case volcanion.KindAccountLocked:
		return http.StatusLocked, name
	case volcanion.KindPermissionDenied:
		return http.StatusForbidden, name
	case volcanion.KindNotFound:
		return http.StatusNotFound, name
	case volcanion.KindDuplicateName, volcanion.KindDuplicateGrant:
		return http.StatusConflict, name
	case volcanion.KindRateLimited:
		return http.StatusTooManyRequests, name
	case volcanion.KindInvalidInput:
		return http.StatusBadRequest, name
	case volcanion.KindStoreUnavailable:
		return http.StatusServiceUnavailable, name
	default:
		return http.StatusInternalServerError, name
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
