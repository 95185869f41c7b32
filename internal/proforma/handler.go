package proforma

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/laha-editions/proforma/internal/platform/httpx"
)

// HandlerService is the part of Service the HTTP layer depends on.
type HandlerService interface {
	Create(ctx context.Context, in CreateInput) (*Result, error)
	Transition(ctx context.Context, id uuid.UUID, action Action, reason string) (*Result, error)
	Recompute(ctx context.Context, id uuid.UUID) (*Document, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, in UpdateDraftInput) (*Document, error)
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByNumber(ctx context.Context, number string) (*Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
	AllowedActions(doc *Document) []Action
	ExpireOverdue(ctx context.Context) (int, error)
}

// Handler exposes the proforma JSON API.
type Handler struct {
	logger     *slog.Logger
	service    HandlerService
	validator  *validator.Validate
	cronSecret string
	renderer   DocumentRenderer
}

// NewHandler builds a Handler. An empty cronSecret disables the sweep
// endpoint.
func NewHandler(logger *slog.Logger, service HandlerService, cronSecret string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger,
		service:    service,
		validator:  validator.New(),
		cronSecret: cronSecret,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := positiveInt(q.Get("page"), 1)
	limit := positiveInt(q.Get("limit"), defaultListLimit)
	if limit > maxListLimit {
		limit = maxListLimit
	}

	filter := ListFilter{
		Search: q.Get("search"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := Status(strings.ToUpper(raw))
		filter.Status = &status
	}

	docs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]ProformaResponse, 0, len(docs))
	for i := range docs {
		items = append(items, h.present(&docs[i], nil))
	}
	httpx.JSON(w, http.StatusOK, ListResponse{Items: items, Total: total, Page: page, Limit: limit})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateProformaRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.present(res.Document, res.Degraded))
}

// WithRenderer enables GET /{id}/pdf.
func (h *Handler) WithRenderer(renderer DocumentRenderer) *Handler {
	h.renderer = renderer
	return h
}

// lookup resolves the {id} path parameter as a UUID or a proforma number.
func (h *Handler) lookup(r *http.Request) (*Document, error) {
	ref := chi.URLParam(r, "id")
	if id, err := uuid.Parse(ref); err == nil {
		return h.service.Get(r.Context(), id)
	}
	return h.service.GetByNumber(r.Context(), ref)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	doc, err := h.lookup(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.present(doc, nil))
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.Problem(w, http.StatusNotImplemented, "PDF rendering unavailable", "no renderer is configured")
		return
	}
	doc, err := h.lookup(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if len(doc.Items) == 0 {
		h.respondError(w, r, fmt.Errorf("%w: proforma %s has no items to print", ErrEmptyItems, doc.Number))
		return
	}
	body, err := h.renderer.Render(r.Context(), *doc)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: %w", ErrRendering, err))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.pdf"`, doc.Number))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateDraftRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.UpdateDraft(r.Context(), id, req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.present(doc, nil))
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Recompute(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.present(doc, nil))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	action, err := ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req TransitionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	res, err := h.service.Transition(r.Context(), id, action, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.present(res.Document, res.Degraded))
}

func (h *Handler) expire(w http.ResponseWriter, r *http.Request) {
	if !h.authorizedCron(r) {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	count, err := h.service.ExpireOverdue(r.Context())
	resp := ExpireResponse{Expired: count}
	if err != nil {
		h.logger.Error("expire sweep incomplete", slog.Int("expired", count), slog.Any("error", err))
		resp.Error = err.Error()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) authorizedCron(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}

func (h *Handler) present(doc *Document, degraded error) ProformaResponse {
	resp := ProformaResponse{Document: *doc, AllowedActions: h.service.AllowedActions(doc)}
	if resp.AllowedActions == nil {
		resp.AllowedActions = []Action{}
	}
	if degraded != nil {
		resp.Warning = degraded.Error()
	}
	return resp
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	return h.decodeBody(w, r, target, false)
}

// decodeOptional treats an empty body as the zero request, whatever the
// transfer encoding.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, target any) bool {
	return h.decodeBody(w, r, target, true)
}

func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, target any, allowEmpty bool) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return true
			}
			httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is empty")
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
			}
			h.respondError(w, r, fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; ")))
			return false
		}
		h.respondError(w, r, fmt.Errorf("%w: %v", ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "proforma id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// respondError renders err as a problem whose type carries the error kind.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := Kind(err)
	status, title := problemFor(kind)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("proforma request failed",
			slog.String("path", r.URL.Path),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		if kind == KindUnknown {
			detail = ""
		}
	}
	httpx.ProblemType(w, status, "urn:proforma:error:"+string(kind), title, detail)
}

func problemFor(kind ErrorKind) (int, string) {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest, "Validation Failed"
	case KindNotFound:
		return http.StatusNotFound, "Not Found"
	case KindState:
		return http.StatusConflict, "Invalid State"
	case KindConflict:
		return http.StatusConflict, "Conflict"
	case KindCollaborator:
		return http.StatusBadGateway, "Upstream Failure"
	case KindIntegrity:
		return http.StatusInternalServerError, "Integrity Violation"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

func positiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
