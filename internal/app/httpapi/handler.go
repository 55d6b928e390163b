// Package httpapi exposes the REST surface of the application: registration,
// login, the provider catalog and the credential vault.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	app "github.com/quartzlabs/chatvault/internal/app"
	"github.com/quartzlabs/chatvault/internal/app/cache"
	"github.com/quartzlabs/chatvault/internal/app/services/auth"
	"github.com/quartzlabs/chatvault/internal/app/services/vault"
	"github.com/quartzlabs/chatvault/internal/app/storage"
)

// passphraseMessage is the single user-visible text for every passphrase or
// decryption failure. Wrong passphrase, corrupted record and provider
// mismatch must stay indistinguishable to the caller.
const passphraseMessage = "Please check your passphrase and try again."

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// Option configures the handler.
type Option func(*handler)

// WithAuditFile persists the audit trail to a JSONL file in addition to the
// in-memory ring.
func WithAuditFile(path string) Option {
	return func(h *handler) {
		if sink, err := newFileAuditSink(path); err == nil && sink != nil {
			h.audit.sink = sink
		}
	}
}

// NewHandler returns a mux exposing the REST API.
func NewHandler(application *app.Application, opts ...Option) http.Handler {
	h := &handler{app: application, audit: newAuditLog(500, nil)}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/api/auth/register", h.register)
	mux.HandleFunc("/api/auth/login", h.login)
	mux.Handle("/api/providers", h.authenticated(h.listProviders))
	mux.Handle("/api/vault/keys", h.authenticated(h.vaultKeys))
	mux.Handle("/api/vault/passphrase", h.authenticated(h.rotatePassphrase))
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	_, err := h.app.Auth.Register(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// A duplicate email gets the same response as a fresh registration so the
	// endpoint cannot be used to probe which addresses have accounts.
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Registration received. Please check your email.",
	})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, err := h.app.Auth.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

func (h *handler) listProviders(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	provs, err := h.app.Providers.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	type providerPayload struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		LowercaseName string `json:"lowercase_name"`
	}
	out := make([]providerPayload, 0, len(provs))
	for _, p := range provs {
		out = append(out, providerPayload{ID: p.ID, Name: p.Name, LowercaseName: p.LowercaseName})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api_providers": out})
}

// vaultKeys handles POST (unlock and list) and PATCH (reconcile update).
func (h *handler) vaultKeys(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	switch r.Method {
	case http.MethodPost:
		h.unlockKeys(w, r, identity)
	case http.MethodPatch:
		h.updateKeys(w, r, identity)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) unlockKeys(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var payload struct {
		Passphrase string `json:"passphrase"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	unlocked, err := h.app.Vault.Unlock(r.Context(), identity.UserID, identity.SessionID, payload.Passphrase)
	status := h.vaultErrorStatus(err)
	h.recordAudit(r, identity.UserID, "vault.unlock", status)
	if err != nil {
		h.writeVaultError(w, status, err)
		return
	}

	type keyPayload struct {
		ProviderID   string `json:"api_provider_id"`
		ProviderName string `json:"api_provider_name"`
		Key          string `json:"key"`
	}
	out := make([]keyPayload, 0, len(unlocked))
	for _, cred := range unlocked {
		out = append(out, keyPayload{
			ProviderID:   cred.ProviderID,
			ProviderName: cred.ProviderName,
			Key:          cred.Plaintext,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api_keys": out})
}

func (h *handler) updateKeys(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var payload struct {
		Passphrase string `json:"passphrase"`
		APIKeys    []struct {
			ProviderID string `json:"api_provider_id"`
			Key        string `json:"key"`
		} `json:"api_keys"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	desired := make([]vault.DesiredCredential, 0, len(payload.APIKeys))
	for _, k := range payload.APIKeys {
		desired = append(desired, vault.DesiredCredential{ProviderID: k.ProviderID, Plaintext: k.Key})
	}

	outcome, err := h.app.Vault.Update(r.Context(), identity.UserID, identity.SessionID, payload.Passphrase, desired)
	status := h.vaultErrorStatus(err)
	h.recordAudit(r, identity.UserID, "vault.update", status)
	if err != nil {
		h.writeVaultError(w, status, err)
		return
	}

	message := "API keys updated successfully."
	if outcome == vault.OutcomeUnchanged {
		message = "Your API keys are already up to date. No changes were made."
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": message,
		"updated": outcome == vault.OutcomeApplied,
	})
}

func (h *handler) rotatePassphrase(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	passphrase, err := h.app.Vault.RotatePassphrase(r.Context(), identity.UserID)
	status := h.vaultErrorStatus(err)
	h.recordAudit(r, identity.UserID, "vault.rotate_passphrase", status)
	if err != nil {
		h.writeVaultError(w, status, err)
		return
	}
	// The only time the passphrase is ever visible.
	writeJSON(w, http.StatusOK, map[string]string{"passphrase": passphrase})
}

func (h *handler) vaultErrorStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, vault.ErrInvalidPassphrase), errors.Is(err, vault.ErrDecryptionFailed):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrUnknownProvider), errors.Is(err, vault.ErrDuplicateProvider):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cache.ErrCacheMiss):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) writeVaultError(w http.ResponseWriter, status int, err error) {
	switch {
	case errors.Is(err, vault.ErrInvalidPassphrase), errors.Is(err, vault.ErrDecryptionFailed):
		writeJSON(w, status, map[string]string{"error": passphraseMessage})
	case errors.Is(err, cache.ErrCacheMiss):
		writeJSON(w, status, map[string]string{"error": "Please provide a passphrase to continue."})
	default:
		writeError(w, status, err)
	}
}

func (h *handler) recordAudit(r *http.Request, userID, action string, status int) {
	h.audit.add(auditEntry{
		Time:       time.Now().UTC(),
		UserID:     userID,
		Action:     action,
		Status:     status,
		RemoteAddr: r.RemoteAddr,
	})
}

func decodeJSON(body io.Reader, dst interface{}) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
