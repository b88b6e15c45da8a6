package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comment-moderator/config"
	apperrors "comment-moderator/pkg/errors"
)

// EventHandler is implemented by *Dispatcher.
type EventHandler interface {
	Handle(ctx context.Context, raw []byte) Outcome
}

// Handler serves the webhook endpoint: GET for the subscription handshake,
// POST for deliveries. Deliveries are answered 200 whatever happens to them
// so the platform does not retry or disable the subscription.
type Handler struct {
	verifier  *Verifier
	events    EventHandler
	appSecret []byte
	maxBody   int64
	timeout   time.Duration
	logger    *zap.Logger
}

func NewHandler(cfg config.WebhookConfig, events EventHandler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		verifier: NewVerifier(cfg.VerifyToken),
		events:   events,
		maxBody:  cfg.MaxBodyBytes,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
	if cfg.AppSecret != "" {
		h.appSecret = []byte(cfg.AppSecret)
	}
	if h.maxBody <= 0 {
		h.maxBody = 1 << 20
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleVerification(w, r)
	case http.MethodPost:
		h.handleDelivery(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// queryParam reads hub.x, falling back to hub_x.
func queryParam(r *http.Request, name string) string {
	q := r.URL.Query()
	if v := q.Get("hub." + name); v != "" {
		return v
	}
	return q.Get("hub_" + name)
}

func (h *Handler) handleVerification(w http.ResponseWriter, r *http.Request) {
	challenge, ok := h.verifier.Verify(
		queryParam(r, "mode"),
		queryParam(r, "challenge"),
		queryParam(r, "verify_token"),
	)
	if !ok {
		h.logger.Warn("❌ webhook verification failed", zap.String("mode", queryParam(r, "mode")))
		w.WriteHeader(http.StatusForbidden)
		return
	}
	h.logger.Info("✅ webhook verification successful")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	log := h.logger.With(zap.String("request_id", requestID))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		log.Warn("error reading webhook body", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}
	log.Debug("📥 webhook payload received", zap.Int("bytes", len(body)))

	if h.appSecret != nil && !validSignature(r.Header.Get("X-Hub-Signature-256"), body, h.appSecret) {
		log.Warn("❌ invalid webhook signature, delivery dropped")
		w.WriteHeader(http.StatusOK)
		return
	}

	// The platform may hang up once it has waited long enough; the action
	// on the comment should still complete.
	ctx := WithRequestID(context.WithoutCancel(r.Context()), requestID)
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	h.events.Handle(ctx, body)
	w.WriteHeader(http.StatusOK)
}

// validSignature checks an X-Hub-Signature-256 header ("sha256=<hex>").
func validSignature(header string, body, secret []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(body, secret))
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(body, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeader formats body's signature the way the platform sends it.
func SignatureHeader(body, secret []byte) string {
	return "sha256=" + hex.EncodeToString(Sign(body, secret))
}

// recoverMiddleware turns a panic outside the dispatcher into a 500.
func recoverMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("❌ PANIC RECOVERED", zap.Any("panic", err), zap.String("path", r.URL.Path))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// HealthFunc reports whether the service can reach its store.
type HealthFunc func(ctx context.Context) error

func healthHandler(check HealthFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				apperrors.HandleError(w, apperrors.Wrap(apperrors.ErrUnavailable, err, "database unreachable"))
				return
			}
		}
		apperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// NewRouter mounts /webhook and /healthz.
func NewRouter(h *Handler, check HealthFunc, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/webhook", h)
	mux.HandleFunc("/healthz", healthHandler(check))
	return recoverMiddleware(logger, mux)
}

var _ http.Handler = (*Handler)(nil)
