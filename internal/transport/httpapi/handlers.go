package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/middleware"
	"github.com/realchillguyclub/backend-sub000/oauth"
	"github.com/realchillguyclub/backend-sub000/session"
)

const maxBodyBytes = 1 << 16

type handlers struct {
	engine Engine
	log    *slog.Logger
}

type authorizeResponse struct {
	AuthorizeURL string `json:"authorizeUrl"`
	State        string `json:"state"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	NewUser      bool   `json:"newUser"`
}

type pendingResponse struct {
	Status string `json:"status"`
}

type reissueRequest struct {
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	MobileType string `json:"mobileType"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *handlers) authorize(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.BeginAuthorization(r.Context(), chi.URLParam(r, "provider"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authorizeResponse{AuthorizeURL: res.URL, State: res.State})
}

func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := h.engine.HandleCallback(r.Context(), chi.URLParam(r, "provider"), oauth.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	renderCallback(w, res)
}

func (h *handlers) pollLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := strings.TrimSpace(q.Get("state"))
	if state == "" {
		h.writeError(w, r, auth.ErrInvalidRequest)
		return
	}
	mobileType, err := session.ParseMobileType(q.Get("mobileType"))
	if err != nil {
		h.writeError(w, r, auth.ErrInvalidDevice)
		return
	}

	res, ok, err := h.engine.PollPendingLogin(r.Context(), state, mobileType, q.Get("clientId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusAccepted, pendingResponse{Status: "PENDING"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		UserID:       res.UserID,
		NewUser:      res.NewUser,
	})
}

func (h *handlers) reissue(w http.ResponseWriter, r *http.Request) {
	var in reissueRequest
	if err := decodeStrict(w, r, &in); err != nil {
		h.writeError(w, r, auth.ErrInvalidRequest)
		return
	}

	pair, err := h.engine.Reissue(r.Context(), in.RefreshToken, in.ClientID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var in logoutRequest
	if err := decodeStrict(w, r, &in); err != nil {
		h.writeError(w, r, auth.ErrInvalidRequest)
		return
	}
	mobileType, err := session.ParseMobileType(in.MobileType)
	if err != nil {
		h.writeError(w, r, auth.ErrInvalidDevice)
		return
	}

	if _, err := h.engine.Logout(r.Context(), userID, mobileType); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if _, err := h.engine.LogoutAll(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError renders the taxonomy code. 5xx responses never echo the
// underlying error.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := auth.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
		if !errors.Is(err, auth.ErrOAuthExchange) {
			h.log.ErrorContext(r.Context(), "request failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, status, errorResponse{Code: auth.ErrorCode(err), Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict rejects unknown fields and oversized bodies.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}
