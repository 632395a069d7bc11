package shortlink

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sundayezeilo/shortlink/internal/clicks"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
)

const (
	MaxSlugLength = 64

	PasswordHeader = "X-Link-Password"
	passwordQuery  = "password"
)

// EdgeService is satisfied by *Service.
type EdgeService interface {
	ResolveAndRecord(ctx context.Context, slug string, rc RequestContext) Result
	Stats(ctx context.Context, slug string) (LinkStats, error)
}

// HTTPResolveRequest is the JSON body of POST /api/resolve.
type HTTPResolveRequest struct {
	Slug       string            `json:"slug"`
	Password   string            `json:"password,omitempty"`
	SourceIP   string            `json:"source_ip,omitempty"`
	Dimensions clicks.Dimensions `json:"dimensions"`
}

// Handler provides HTTP handlers for link resolution.
type Handler struct {
	service      EdgeService
	logger       *slog.Logger
	errorPageURL string
	trustProxy   bool
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service EdgeService
	Logger  *slog.Logger
	// ErrorPageURL, when set, receives browsers for every wire code as
	// <ErrorPageURL>/<code-in-kebab-case>?slug=<slug>. When empty a JSON error is written.
	ErrorPageURL      string
	TrustProxyHeaders bool
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service:      cfg.Service,
		logger:       logger,
		errorPageURL: strings.TrimRight(cfg.ErrorPageURL, "/"),
		trustProxy:   cfg.TrustProxyHeaders,
	}
}

// Redirect handles GET /{slug}.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger := h.logger.With(
		"request_id", httpx.GetRequestID(ctx),
		"method", r.Method,
		"path", r.URL.Path,
	)

	slug := r.PathValue("slug")
	if err := validateSlugFormat(slug); err != nil {
		logger.WarnContext(ctx, "invalid slug format", "slug", slug, "error", err.Error())
		h.writeCode(w, r, slug, CodeMissing)
		return
	}

	sourceIP, dims := clicks.FromRequest(r, h.trustProxy)
	res := h.service.ResolveAndRecord(ctx, slug, RequestContext{
		Password:   passwordFromRequest(r),
		SourceIP:   sourceIP,
		Dimensions: dims,
	})

	if res.IsRedirect() {
		logger.DebugContext(ctx, "slug resolved", "slug", slug)
		httpx.Redirect(w, r, res.Target)
		return
	}

	logger.InfoContext(ctx, "slug not redirected", "slug", slug, "code", res.Value)
	h.writeCode(w, r, slug, res.Value)
}

// Resolve handles POST /api/resolve for edge callers that perform the redirect
// themselves. The response is always 200 with a Result body.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger := h.logger.With(
		"request_id", httpx.GetRequestID(ctx),
		"method", r.Method,
		"path", r.URL.Path,
	)

	req, err := httpx.DecodeJSON[HTTPResolveRequest](w, r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		if errors.Is(err, httpx.ErrUnsupportedMediaType) {
			httpx.WriteError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", err.Error(), nil)
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if err := validateSlugFormat(req.Slug); err != nil {
		logger.WarnContext(ctx, "invalid slug format", "slug", req.Slug, "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_slug", err.Error(), nil)
		return
	}

	res := h.service.ResolveAndRecord(ctx, req.Slug, RequestContext{
		Password:   req.Password,
		SourceIP:   req.SourceIP,
		Dimensions: req.Dimensions,
	})
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Stats handles GET /api/links/{slug}/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger := h.logger.With(
		"request_id", httpx.GetRequestID(ctx),
		"method", r.Method,
		"path", r.URL.Path,
	)

	slug := r.PathValue("slug")
	if err := validateSlugFormat(slug); err != nil {
		logger.WarnContext(ctx, "invalid slug format", "slug", slug, "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_slug", err.Error(), nil)
		return
	}

	stats, err := h.service.Stats(ctx, slug)
	if err != nil {
		h.handleServiceError(ctx, w, logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleServiceError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := errx.KindOf(err)
	status := httpx.ErrorKindToStatus(kind)

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed",
			"error", err.Error(),
			"error_kind", kind,
			"operation", errx.OpOf(err),
		)
		httpx.WriteError(w, status, httpx.ErrorKindToCode(kind), "unable to complete the request at this time", nil)
		return
	}

	logger.InfoContext(ctx, "request rejected", "error_kind", kind, "operation", errx.OpOf(err))
	httpx.WriteError(w, status, httpx.ErrorKindToCode(kind), publicMessage(kind), nil)
}

func publicMessage(kind errx.Kind) string {
	switch kind {
	case errx.NotFound:
		return "short link doesn't exist"
	case errx.Invalid:
		return "invalid request"
	default:
		return "request failed"
	}
}

func (h *Handler) writeCode(w http.ResponseWriter, r *http.Request, slug string, code Code) {
	if h.errorPageURL != "" {
		target := h.errorPageURL + "/" + code.PathSegment() + "?slug=" + url.QueryEscape(slug)
		httpx.Redirect(w, r, target)
		return
	}

	httpx.WriteError(w, CodeStatus(code), string(code), codeMessage(code), nil)
}

// CodeStatus maps a wire code to the HTTP status used when answering directly.
func CodeStatus(code Code) int {
	switch code {
	case CodeMissing:
		return http.StatusNotFound
	case CodeExpired:
		return http.StatusGone
	case CodeDisabled:
		return http.StatusForbidden
	case CodePasswordRequired:
		return http.StatusUnauthorized
	case CodeIncorrectPassword:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

func codeMessage(code Code) string {
	switch code {
	case CodeMissing:
		return "short link doesn't exist"
	case CodeExpired:
		return "short link has expired"
	case CodeDisabled:
		return "short link has been disabled"
	case CodePasswordRequired:
		return "short link is password protected"
	case CodeIncorrectPassword:
		return "incorrect password"
	default:
		return "unable to resolve this link at this time"
	}
}

func passwordFromRequest(r *http.Request) string {
	if p := r.URL.Query().Get(passwordQuery); p != "" {
		return p
	}
	return r.Header.Get(PasswordHeader)
}

// validateSlugFormat is a cheap check before touching the cache or store.
func validateSlugFormat(slug string) error {
	if slug == "" {
		return errors.New("slug is required")
	}
	if len(slug) > MaxSlugLength {
		return errors.New("slug too long")
	}
	return nil
}
