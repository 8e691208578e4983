package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/contract-registry/api"
	"github.com/ruteri/contract-registry/audit"
	"github.com/ruteri/contract-registry/interfaces"
	"github.com/ruteri/contract-registry/metrics"
	"github.com/ruteri/contract-registry/registry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// maxBodySize bounds request bodies of registry operations.
	maxBodySize = 1024 * 1024

	// DefaultMaxArtifactSize bounds artifact uploads.
	DefaultMaxArtifactSize = 32 * 1024 * 1024

	tracerName = "github.com/ruteri/contract-registry/httpserver"
)

// RegistryService is the registry surface the HTTP layer drives.
type RegistryService interface {
	interfaces.HashRegistry
	CheckIdentity(ctx context.Context, caller interfaces.Principal) error
	Killed() bool
	Policy() registry.TransitionPolicy
}

var _ RegistryService = (*registry.Registry)(nil)

// StateSaver persists the registry after a mutation. The handler waits for it
// before answering, so an acknowledged change survives a crash.
type StateSaver interface {
	Save(ctx context.Context) error
}

// Handler translates HTTP requests into registry operations.
// Identity comes only from verified request signatures; the core registry
// never sees transport details.
type Handler struct {
	registry RegistryService
	storage  interfaces.StorageBackend
	audit    *audit.Log
	metrics  *metrics.Metrics
	saver    StateSaver
	guard    *api.ReplayGuard
	tracer   trace.Tracer
	log      *slog.Logger

	requireSubmitterIdentity bool
	maxClockSkew             time.Duration
	maxArtifactSize          int64
	now                      func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStorage enables the artifact endpoints.
func WithStorage(backend interfaces.StorageBackend) HandlerOption {
	return func(h *Handler) { h.storage = backend }
}

// WithAuditLog enables the events endpoint.
func WithAuditLog(log *audit.Log) HandlerOption {
	return func(h *Handler) { h.audit = log }
}

// WithMetrics records operation outcomes and latencies in m.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithSubmitterIdentity makes submit and artifact upload require the registry's
// identity oracle to vouch for the caller.
func WithSubmitterIdentity(required bool) HandlerOption {
	return func(h *Handler) { h.requireSubmitterIdentity = required }
}

// WithMaxClockSkew sets how far a signed request's timestamp may drift.
func WithMaxClockSkew(skew time.Duration) HandlerOption {
	return func(h *Handler) {
		if skew > 0 {
			h.maxClockSkew = skew
		}
	}
}

// WithMaxArtifactSize bounds the body of an artifact upload.
func WithMaxArtifactSize(size int64) HandlerOption {
	return func(h *Handler) {
		if size > 0 {
			h.maxArtifactSize = size
		}
	}
}

// WithStateSaver persists the registry after every successful mutation.
func WithStateSaver(saver StateSaver) HandlerOption {
	return func(h *Handler) { h.saver = saver }
}

// WithClock overrides the clock used for signature freshness checks.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a new HTTP request handler for reg.
func NewHandler(reg RegistryService, log *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:        reg,
		tracer:          otel.Tracer(tracerName),
		log:             log,
		maxClockSkew:    api.DefaultMaxClockSkew,
		maxArtifactSize: DefaultMaxArtifactSize,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.guard = api.NewReplayGuard(h.maxClockSkew, api.DefaultReplayCapacity)
	return h
}

// Routes mounts the registry API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/owner", h.HandleOwner)
		r.Post("/kill", h.HandleKill)
		r.Get("/events", h.HandleEvents)

		r.Route("/entries/{hash}", func(r chi.Router) {
			r.Get("/", h.HandleLookup)
			r.Delete("/", h.HandleDelete)
			r.Get("/valid", h.HandleIsValid)
			r.Post("/submit", h.HandleSubmit)
			r.Post("/approve", h.HandleApprove)
			r.Post("/reject", h.HandleReject)
		})

		r.Post("/artifacts", h.HandleUploadArtifact)
		r.Get("/artifacts/{hash}", h.HandleFetchArtifact)
	})
}

// HandleSubmit records the URL hash as Pending for the signing caller.
//
// URL format: POST /api/v1/entries/{hash}/submit
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleEntryOperation(w, r, "submit", func(ctx context.Context, hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
		if h.requireSubmitterIdentity {
			if err := h.registry.CheckIdentity(ctx, caller); err != nil {
				return false, err
			}
		}
		return h.registry.Submit(hash, caller)
	})
}

// HandleApprove is the owner-only approval of an entry.
//
// URL format: POST /api/v1/entries/{hash}/approve
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleEntryOperation(w, r, "approve", func(_ context.Context, hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
		return h.registry.Approve(hash, caller)
	})
}

// HandleReject is the owner-only rejection of an entry.
//
// URL format: POST /api/v1/entries/{hash}/reject
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.handleEntryOperation(w, r, "reject", func(_ context.Context, hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
		return h.registry.Reject(hash, caller)
	})
}

// HandleDelete removes an entry.
//
// URL format: DELETE /api/v1/entries/{hash}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	h.handleEntryOperation(w, r, "delete", func(_ context.Context, hash interfaces.ContractHash, caller interfaces.Principal) (bool, error) {
		return h.registry.Delete(hash, caller)
	})
}

func (h *Handler) handleEntryOperation(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, hash interfaces.ContractHash, caller interfaces.Principal) (bool, error)) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "registry."+op)
	defer span.End()

	hash, err := interfaces.NewContractHashFromHex(chi.URLParam(r, "hash"))
	if err != nil {
		h.writeError(w, span, op, start, err)
		return
	}
	span.SetAttributes(attribute.String("registry.hash", hash.String()))

	caller, err := h.authenticate(r, maxBodySize)
	if err != nil {
		h.writeError(w, span, op, start, err)
		return
	}
	span.SetAttributes(attribute.String("registry.caller", caller.String()))

	result, err := fn(ctx, hash, caller)
	if err == nil && result {
		err = h.persist(ctx)
	}
	if err != nil {
		h.writeError(w, span, op, start, err)
		return
	}

	h.observe(op, nil, start)
	span.SetAttributes(attribute.Bool("registry.result", result))
	h.writeJSON(w, http.StatusOK, api.OperationResponse{Hash: hash, Result: result})
}

// HandleIsValid reports whether a hash is Active. A rejected hash yields a
// 409 with code "rejected" rather than valid=false.
//
// URL format: GET /api/v1/entries/{hash}/valid
func (h *Handler) HandleIsValid(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	_, span := h.tracer.Start(r.Context(), "registry.isValid")
	defer span.End()

	hash, err := interfaces.NewContractHashFromHex(chi.URLParam(r, "hash"))
	if err != nil {
		h.writeError(w, span, "isValid", start, err)
		return
	}
	span.SetAttributes(attribute.String("registry.hash", hash.String()))

	valid, err := h.registry.IsValid(hash)
	if err != nil {
		h.writeError(w, span, "isValid", start, err)
		return
	}

	h.observe("isValid", nil, start)
	h.writeJSON(w, http.StatusOK, api.ValidityResponse{Hash: hash, Valid: valid})
}

// HandleLookup returns the stored entry for a hash, or 404 with code "not_found".
//
// URL format: GET /api/v1/entries/{hash}
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	_, span := h.tracer.Start(r.Context(), "registry.lookup")
	defer span.End()

	hash, err := interfaces.NewContractHashFromHex(chi.URLParam(r, "hash"))
	if err != nil {
		h.writeError(w, span, "lookup", start, err)
		return
	}

	entry, found, err := h.registry.Lookup(hash)
	if err == nil && !found {
		err = fmt.Errorf("%w: %s", interfaces.ErrEntryNotFound, hash)
	}
	if err != nil {
		h.writeError(w, span, "lookup", start, err)
		return
	}

	h.observe("lookup", nil, start)
	h.writeJSON(w, http.StatusOK, entry)
}

// HandleKill permanently disables the registry. Owner only.
//
// URL format: POST /api/v1/kill
func (h *Handler) HandleKill(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "registry.kill")
	defer span.End()

	caller, err := h.authenticate(r, maxBodySize)
	if err == nil {
		err = h.registry.Kill(caller)
	}
	if err == nil {
		err = h.persist(ctx)
	}
	if err != nil {
		h.writeError(w, span, "kill", start, err)
		return
	}

	h.log.Warn("Registry killed", slog.String("caller", caller.String()))
	h.observe("kill", nil, start)
	h.writeJSON(w, http.StatusOK, api.KillResponse{Killed: true})
}

// HandleOwner describes the registry. It stays available after kill.
//
// URL format: GET /api/v1/owner
func (h *Handler) HandleOwner(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, api.OwnerResponse{
		Owner:  h.registry.Owner(),
		Killed: h.registry.Killed(),
		Policy: h.registry.Policy().String(),
	})
}

// HandleUploadArtifact stores the request body in artifact storage and submits
// its keccak256 hash on behalf of the signing caller. Under the strict policy a
// hash that is already Rejected is refused before anything is stored. Stored
// bytes are not removed if the submit itself fails afterwards.
//
// URL format: POST /api/v1/artifacts
func (h *Handler) HandleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "registry.uploadArtifact")
	defer span.End()

	if h.storage == nil {
		h.writeError(w, span, "upload", start, fmt.Errorf("%w: artifact storage not configured", interfaces.ErrBackendUnavailable))
		return
	}

	body, caller, err := h.authenticatedBody(r, h.maxArtifactSize)
	if err != nil {
		h.writeError(w, span, "upload", start, err)
		return
	}
	if len(body) == 0 {
		h.writeError(w, span, "upload", start, fmt.Errorf("%w: empty artifact", api.ErrBadRequest))
		return
	}

	// Check before storing so rejected callers cannot fill the artifact store.
	if h.requireSubmitterIdentity {
		if err := h.registry.CheckIdentity(ctx, caller); err != nil {
			h.writeError(w, span, "upload", start, err)
			return
		}
	}
	hash := interfaces.ComputeContractHash(body)
	span.SetAttributes(attribute.String("registry.hash", hash.String()))
	if err := h.checkResubmit(hash); err != nil {
		h.writeError(w, span, "upload", start, err)
		return
	}

	stored, err := h.storage.Store(ctx, body)
	if err == nil && stored != hash {
		err = fmt.Errorf("%w: storage returned %s for %s", interfaces.ErrContentMismatch, stored, hash)
	}
	if err != nil {
		h.writeError(w, span, "upload", start, err)
		return
	}

	submitted, err := h.registry.Submit(hash, caller)
	if err == nil {
		err = h.persist(ctx)
	}
	if err != nil {
		h.writeError(w, span, "upload", start, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ArtifactBytes.Add(float64(len(body)))
	}
	h.log.Info("Artifact uploaded",
		slog.String("hash", hash.String()),
		slog.String("caller", caller.String()),
		slog.Int("size", len(body)))

	h.observe("upload", nil, start)
	h.writeJSON(w, http.StatusOK, api.ArtifactResponse{Hash: hash, Size: len(body), Submitted: submitted})
}

// HandleFetchArtifact returns raw artifact bytes.
//
// URL format: GET /api/v1/artifacts/{hash}
func (h *Handler) HandleFetchArtifact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "registry.fetchArtifact")
	defer span.End()

	if h.storage == nil {
		h.writeError(w, span, "fetch", start, fmt.Errorf("%w: artifact storage not configured", interfaces.ErrBackendUnavailable))
		return
	}

	hash, err := interfaces.NewContractHashFromHex(chi.URLParam(r, "hash"))
	if err != nil {
		h.writeError(w, span, "fetch", start, err)
		return
	}

	data, err := h.storage.Fetch(ctx, hash)
	if err != nil {
		h.writeError(w, span, "fetch", start, err)
		return
	}

	h.observe("fetch", nil, start)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleEvents lists recent registry events.
//
// URL format: GET /api/v1/events?limit=100
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.writeJSON(w, http.StatusOK, api.EventsResponse{Events: []registry.Event{}})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, nil, "events", time.Now(), fmt.Errorf("%w: invalid limit", api.ErrBadRequest))
			return
		}
		limit = parsed
	}

	events := h.audit.Recent(limit)
	if events == nil {
		events = []registry.Event{}
	}
	h.writeJSON(w, http.StatusOK, api.EventsResponse{Events: events, Total: h.audit.Total()})
}

// checkResubmit refuses an upload that Submit would refuse anyway, so the
// artifact store is not written for it. Submit still makes the final decision.
func (h *Handler) checkResubmit(hash interfaces.ContractHash) error {
	entry, found, err := h.registry.Lookup(hash)
	if err != nil {
		return err
	}
	if found && entry.State == interfaces.StateRejected && h.registry.Policy() == registry.PolicyStrict {
		return fmt.Errorf("%w: cannot resubmit a rejected contract", interfaces.ErrInvalidTransition)
	}
	return nil
}

func (h *Handler) persist(ctx context.Context) error {
	if h.saver == nil {
		return nil
	}
	if err := h.saver.Save(ctx); err != nil {
		return fmt.Errorf("failed to persist registry state: %w", err)
	}
	return nil
}

func (h *Handler) authenticate(r *http.Request, limit int64) (interfaces.Principal, error) {
	_, caller, err := h.authenticatedBody(r, limit)
	return caller, err
}

func (h *Handler) authenticatedBody(r *http.Request, limit int64) ([]byte, interfaces.Principal, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, interfaces.Principal{}, fmt.Errorf("%w: failed to read body", api.ErrBadRequest)
	}
	if int64(len(body)) > limit {
		return nil, interfaces.Principal{}, fmt.Errorf("%w: body exceeds %d bytes", api.ErrBadRequest, limit)
	}

	caller, err := h.guard.Verify(r, body, h.now())
	if err != nil {
		h.log.Debug("Request authentication failed", "err", err, slog.String("path", r.URL.Path))
		return nil, interfaces.Principal{}, err
	}
	return body, caller, nil
}

func (h *Handler) observe(op string, err error, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveOperation(op, err, start)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, span trace.Span, op string, start time.Time, err error) {
	code, status := api.ErrorCode(err)
	h.observe(op, err, start)

	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}

	if status >= http.StatusInternalServerError && !errors.Is(err, interfaces.ErrBackendUnavailable) {
		h.log.Error("Operation failed", slog.String("op", op), "err", err)
	} else {
		h.log.Debug("Operation refused", slog.String("op", op), slog.String("code", code), "err", err)
	}

	h.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Code: code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
