package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/engine"
)

// maxLedgerBytes caps uploaded ledger size at 64 MiB.
const maxLedgerBytes = 64 << 20

// cacheTTL is how long cached reports stay valid.
const cacheTTL = 15 * time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	engine  *engine.Engine
	cache   domain.Cache
	archive domain.Archive
	version string
}

// NewHandler creates a new API handler. cache and archive may be nil.
func NewHandler(eng *engine.Engine, cache domain.Cache, archive domain.Archive, version string) *Handler {
	return &Handler{
		engine:  eng,
		cache:   cache,
		archive: archive,
		version: version,
	}
}

// Analyze handles POST /analyze requests. The ledger CSV arrives either as
// a multipart "file" field or as the raw request body.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, source, err := readLedger(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "empty ledger upload",
		})
		return
	}

	// Identical bytes produce an identical report, so the digest of the
	// upload is a sound cache key.
	digest := sha256.Sum256(body)
	cacheKey := hex.EncodeToString(digest[:])

	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			w.Header().Set("X-Cache", "hit")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(cached)
			return
		}
	}

	result, err := h.engine.Analyze(ctx, bytes.NewReader(body), source)
	if err != nil {
		status, msg := classifyError(err)
		writeJSON(w, status, map[string]string{"error": msg})
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to marshal report", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode report",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cacheKey, payload, cacheTTL); err != nil {
			slog.Error("failed to cache report", "key", cacheKey, "error", err)
		}
	}

	w.Header().Set("X-Cache", "miss")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// readLedger extracts the ledger CSV bytes from a request. Multipart uploads
// use the "file" field; anything else is read as the raw body.
func readLedger(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxLedgerBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxLedgerBytes); err != nil {
			return nil, "", errors.New("invalid multipart upload")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New(`multipart upload must include a "file" field`)
		}
		defer file.Close()

		body, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errors.New("failed to read uploaded file")
		}
		return body, header.Filename, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", errors.New("failed to read request body")
	}
	return body, "upload", nil
}

// classifyError maps pipeline errors to HTTP statuses.
func classifyError(err error) (int, string) {
	var rowErr *domain.MalformedRowError
	switch {
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, "analysis timed out"
	case errors.Is(err, domain.ErrInvariant):
		return http.StatusInternalServerError, "internal consistency check failed"
	case errors.As(err, &rowErr), errors.Is(err, domain.ErrInput):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "analysis failed"
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.archive != nil {
		if err := h.archive.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRuns returns archived run headers, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run archive is not enabled",
		})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	runs, err := h.archive.ListRuns(ctx, limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun retrieves an archived run by ID, including its full report.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return
	}

	if h.archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run archive is not enabled",
		})
		return
	}

	run, err := h.archive.GetRun(ctx, runID)
	if err != nil {
		slog.Error("failed to get run", "id", runID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
