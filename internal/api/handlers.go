package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/expander"
	"github.com/dshills/promptbench/internal/export"
	"github.com/dshills/promptbench/internal/generator"
	"github.com/dshills/promptbench/internal/logger"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/dshills/promptbench/internal/validator"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	repo      repository.Repository
	gen       *generator.Service
	validator *validator.Validator
	store     *export.Store
	log       *logger.Logger
}

// NewHandler creates a new Handler.
func NewHandler(repo repository.Repository, gen *generator.Service, v *validator.Validator, store *export.Store, log *logger.Logger) *Handler {
	return &Handler{repo: repo, gen: gen, validator: v, store: store, log: log}
}

// RegisterRoutes registers all API routes on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	// Templates
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.ListTemplates)
		r.Post("/", h.CreateTemplate)
		r.Route("/{templateId}", func(r chi.Router) {
			r.Get("/", h.GetTemplate)
			r.Put("/", h.UpdateTemplate)
			r.Delete("/", h.DeleteTemplate)

			r.Get("/placeholders", h.ListTemplatePlaceholders)
			r.Post("/placeholders", h.CreatePlaceholder)

			// Generation
			r.Get("/inputs", h.GenerateInputs)
			r.Get("/export.csv", h.ExportTemplateCSV)
		})
	})

	// Placeholders
	r.Get("/placeholders", h.ListPlaceholders)
	r.Route("/placeholders/{placeholderId}", func(r chi.Router) {
		r.Get("/", h.GetPlaceholder)
		r.Put("/", h.UpdatePlaceholder)
		r.Delete("/", h.DeletePlaceholder)
	})

	// Bulk export
	r.Get("/export.csv", h.ExportAllCSV)
	r.Get("/export.zip", h.ExportAllZip)
	r.Post("/exports", h.CreateExport)
	r.Get("/exports/{name}", h.DownloadExport)
}

// Error response helpers

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err, message string) {
	writeJSON(w, status, errorResponse{Error: err, Message: message})
}

// writeDomainError maps service and repository errors to responses. what
// names the resource for not-found messages.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", what+" not found")
	case errors.Is(err, domain.ErrDuplicateTemplate):
		writeError(w, http.StatusConflict, "duplicate_template", "An equivalent template already exists")
	case errors.Is(err, domain.ErrValueInUse):
		writeError(w, http.StatusConflict, "value_in_use", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "Request conflicts with current state")
	case errors.Is(err, expander.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
	case errors.Is(err, expander.ErrInvalidTemplate):
		writeError(w, http.StatusBadRequest, "invalid_template", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		h.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to process request")
	}
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// pathUUID parses a UUID route parameter, writing a 400 when it is malformed.
func pathUUID(w http.ResponseWriter, r *http.Request, param, what string) (uuid.UUID, bool) {
	id, err := parseUUID(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_uuid", fmt.Sprintf("Invalid %s ID format", strings.ToLower(what)))
		return uuid.Nil, false
	}
	return id, true
}

// decodeValidated reads the body, validates it against schema and decodes it
// into dst. It writes the error response itself and reports success.
func (h *Handler) decodeValidated(w http.ResponseWriter, r *http.Request, schema validator.Schema, dst interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body could not be read")
		return false
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return false
	}
	result := h.validator.Validate(schema, body)
	if !result.Valid {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: domain.ErrValidationFailed.Error(),
			Details: result.Errors,
		})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return false
	}
	return true
}

// generationParams are the query parameters shared by generation endpoints.
type generationParams struct {
	N    int
	Mode expander.Mode
}

func (h *Handler) parseGenerationParams(w http.ResponseWriter, r *http.Request) (generationParams, bool) {
	q := r.URL.Query()
	p := generationParams{N: h.gen.DefaultCount()}
	if raw := q.Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_count", "n must be an integer")
			return p, false
		}
		p.N = n
	}
	mode, err := expander.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", "mode must be 'random' or 'exhaustive'")
		return p, false
	}
	p.Mode = mode
	return p, true
}

// Health

type healthResponse struct {
	Status string `json:"status"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
