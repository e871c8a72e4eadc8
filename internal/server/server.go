// Package server exposes the card gateway pages, health probes and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/Proton-105/alina-bot/internal/errors"
	"github.com/Proton-105/alina-bot/internal/payment"
	"github.com/Proton-105/alina-bot/pkg/logger"
)

const maxWebhookBody = 64 << 10

var startPage = template.Must(template.New("redsys").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Оплата</title></head>
<body onload="document.forms[0].submit()">
  <p>Переходим на защищённую страницу оплаты…</p>
  <form method="POST" action="{{.Action}}">
    <input type="hidden" name="Ds_SignatureVersion" value="{{.Version}}">
    <input type="hidden" name="Ds_MerchantParameters" value="{{.Params}}">
    <input type="hidden" name="Ds_Signature" value="{{.Signature}}">
    <noscript><button type="submit">Оплатить</button></noscript>
  </form>
</body>
</html>
`))

// Gateway is the card payment flow served over HTTP.
type Gateway interface {
	Enabled() bool
	BuildForm(order string, amountCents int, userID int64) (*payment.Form, error)
	HandleNotification(ctx context.Context, paramsB64, signature string) (*payment.Notification, *payment.Activation, error)
}

// Probes answers the health endpoints.
type Probes interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) (map[string]string, error)
}

// PaidNotifier tells the user that a card payment went through.
type PaidNotifier interface {
	NotifyPaid(ctx context.Context, act *payment.Activation) error
}

type Deps struct {
	Gateway  Gateway
	Probes   Probes
	Notifier PaidNotifier
	Errors   *apperrors.Handler
	Metrics  http.Handler
}

type Server struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	if deps.Errors == nil {
		deps.Errors = apperrors.NewHandler(log, false)
	}
	return &Server{deps: deps, log: log.With(slog.String("component", "http"))}
}

// Handler returns the routed handler wrapped with correlation ids and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", s.deps.Metrics)
	mux.HandleFunc("GET /pay/redsys/start", s.redsysStart)
	mux.HandleFunc("POST /webhooks/redsys", s.redsysWebhook)

	return logger.Middleware(logger.RequestLogger(s.log)(mux))
}

// HTTPServer builds the http.Server listening on port.
func (s *Server) HTTPServer(port string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Probes != nil {
		if err := s.deps.Probes.Liveness(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "down", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Probes == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	checks, err := s.deps.Probes.Readiness(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "error": err.Error(), "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": checks})
}

func (s *Server) redsysStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gateway == nil || !s.deps.Gateway.Enabled() {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	order := q.Get("order")
	amount, amountErr := strconv.Atoi(q.Get("amount"))
	userID, userErr := strconv.ParseInt(q.Get("user_id"), 10, 64)
	if order == "" || amountErr != nil || userErr != nil || amount <= 0 || userID <= 0 {
		http.Error(w, "Bad params", http.StatusBadRequest)
		return
	}

	form, err := s.deps.Gateway.BuildForm(order, amount, userID)
	if err != nil {
		s.deps.Errors.Handle(r.Context(), err)
		http.Error(w, "Bad params", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := startPage.Execute(w, form); err != nil {
		s.log.ErrorContext(r.Context(), "failed to render start page", slog.Any("error", err))
	}
}

func (s *Server) redsysWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gateway == nil || !s.deps.Gateway.Enabled() {
		http.NotFound(w, r)
		return
	}

	params, signature, err := readNotification(r)
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	_, act, err := s.deps.Gateway.HandleNotification(r.Context(), params, signature)
	switch {
	case apperrors.HasCode(err, apperrors.CodeSignature):
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	case err != nil:
		s.deps.Errors.Handle(r.Context(), err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if act != nil && !act.Duplicate && s.deps.Notifier != nil {
		if err := s.deps.Notifier.NotifyPaid(r.Context(), act); err != nil {
			s.log.WarnContext(r.Context(), "paid notification failed", slog.Int64("user_id", act.UserID), slog.Any("error", err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// readNotification accepts the gateway fields as a form or a JSON object.
func readNotification(r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxWebhookBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", err
		}
		return body["Ds_MerchantParameters"], body["Ds_Signature"], nil
	}

	if err := r.ParseForm(); err != nil {
		return "", "", err
	}
	return r.PostForm.Get("Ds_MerchantParameters"), r.PostForm.Get("Ds_Signature"), nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
