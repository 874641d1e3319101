package daemon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	pperrors "github.com/hallvik/pagepress/internal/errors"
	"github.com/hallvik/pagepress/internal/logfields"
)

// maxWebhookBody bounds what one delivery may post. Push payloads are small;
// anything larger is not a push payload.
const maxWebhookBody = 1 << 20

// pushPayload is the subset of a forge push delivery the daemon cares about.
// The field layout follows the GitHub/Forgejo push event shape.
type pushPayload struct {
	Ref        string `json:"ref"`   // e.g. refs/heads/main
	After      string `json:"after"` // head commit of the push
	Deleted    bool   `json:"deleted"`
	Repository struct {
		FullName string `json:"full_name"`
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

// WebhookHandler accepts push deliveries and forwards matching ones to the
// debouncer. It never runs the pipeline itself. Branch filter and secret are
// mutable so a config hot reload applies to in-flight listeners.
type WebhookHandler struct {
	mu        sync.RWMutex
	branch    string // only pushes to this branch trigger runs
	secret    string // optional HMAC secret
	debouncer *Debouncer
	errors    *pperrors.HTTPErrorAdapter
}

// NewWebhookHandler creates a handler that triggers on pushes to branch.
func NewWebhookHandler(branch, secret string, debouncer *Debouncer) *WebhookHandler {
	return &WebhookHandler{
		branch:    branch,
		secret:    secret,
		debouncer: debouncer,
		errors:    pperrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// Update swaps the branch filter and secret; subsequent deliveries are
// evaluated against the new values.
func (h *WebhookHandler) Update(branch, secret string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.branch = branch
	h.secret = secret
}

func (h *WebhookHandler) filter() (branch, secret string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.branch, h.secret
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sourceBranch, secret := h.filter()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.errors.WriteErrorResponse(w, pperrors.WrapError(err, pperrors.CategoryDaemon, "read webhook body").Build())
		return
	}

	if secret != "" && !h.verifySignature(r, body, secret) {
		slog.Warn("Webhook delivery rejected: bad signature",
			slog.String("remote", r.RemoteAddr))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	branch := strings.TrimPrefix(payload.Ref, "refs/heads/")
	switch {
	case payload.Deleted:
		slog.Debug("Ignoring branch deletion push", logfields.Branch(branch))
	case branch != sourceBranch:
		slog.Debug("Ignoring push to non-source branch",
			logfields.Branch(branch),
			slog.String("source_branch", sourceBranch))
	default:
		slog.Info("Push accepted",
			logfields.Branch(branch),
			logfields.Commit(payload.After),
			slog.String("repository", payload.Repository.FullName))
		h.debouncer.Notify(PushNotice{
			Branch: branch,
			Commit: payload.After,
			Reason: "webhook",
		})
	}

	// Always acknowledge once the payload parsed: the forge should not
	// retry deliveries we deliberately ignored.
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("accepted"))
}

// verifySignature checks the X-Hub-Signature-256 HMAC header.
func (h *WebhookHandler) verifySignature(r *http.Request, body []byte, secret string) bool {
	sig := strings.TrimPrefix(r.Header.Get("X-Hub-Signature-256"), "sha256=")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
