package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/expander"
	"github.com/dshills/promptbench/internal/export"
	"github.com/dshills/promptbench/internal/generator"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

// GenerateInputs

type generateInputsResponse struct {
	TemplateID     uuid.UUID      `json:"template_id"`
	Mode           expander.Mode  `json:"mode"`
	Requested      int            `json:"requested"`
	Returned       int            `json:"returned"`
	DomainSize     int            `json:"domain_size"`
	Truncated      bool           `json:"truncated"`
	ExpectedResult string         `json:"expected_result"`
	Description    string         `json:"description"`
	Inputs         []domain.Input `json:"inputs"`
}

func (h *Handler) GenerateInputs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "templateId", "Template")
	if !ok {
		return
	}
	params, ok := h.parseGenerationParams(w, r)
	if !ok {
		return
	}

	gen, err := h.gen.Generate(r.Context(), id, params.N, params.Mode)
	if err != nil {
		h.writeDomainError(w, r, err, "Template")
		return
	}

	writeJSON(w, http.StatusOK, generateInputsResponse{
		TemplateID:     id,
		Mode:           params.Mode,
		Requested:      params.N,
		Returned:       len(gen.Inputs),
		DomainSize:     gen.Result.DomainSize,
		Truncated:      gen.Result.Truncated(),
		ExpectedResult: gen.Result.ExpectedResult,
		Description:    gen.Result.Description,
		Inputs:         gen.Inputs,
	})
}

// ExportTemplateCSV streams the inputs of one template as CSV.
func (h *Handler) ExportTemplateCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "templateId", "Template")
	if !ok {
		return
	}
	params, ok := h.parseGenerationParams(w, r)
	if !ok {
		return
	}

	gen, err := h.gen.Generate(r.Context(), id, params.N, params.Mode)
	if err != nil {
		h.writeDomainError(w, r, err, "Template")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, []export.Batch{gen.Batch()}); err != nil {
		h.log.Error("write csv", "template_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "export_error", "Failed to generate export")
		return
	}

	name := gen.Template.Label
	if name == "" {
		name = gen.Template.ID.String()
	}
	w.Header().Set("X-Promptbench-Requested", strconv.Itoa(params.N))
	w.Header().Set("X-Promptbench-Returned", strconv.Itoa(len(gen.Inputs)))
	writeAttachment(w, "text/csv; charset=utf-8", export.NormalizeLabel(name)+".csv", buf.Bytes())
}

func (h *Handler) ExportAllCSV(w http.ResponseWriter, r *http.Request) {
	h.exportAll(w, r, "csv")
}

func (h *Handler) ExportAllZip(w http.ResponseWriter, r *http.Request) {
	h.exportAll(w, r, "zip")
}

func (h *Handler) exportAll(w http.ResponseWriter, r *http.Request, format string) {
	params, ok := h.parseGenerationParams(w, r)
	if !ok {
		return
	}
	gens, err := h.gen.GenerateAll(r.Context(), params.N, params.Mode)
	if err != nil {
		h.writeDomainError(w, r, err, "Templates")
		return
	}

	var buf bytes.Buffer
	if err := writeBatches(&buf, format, generator.Batches(gens)); err != nil {
		h.log.Error("write export", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "export_error", "Failed to generate export")
		return
	}
	if format == "zip" {
		writeAttachment(w, "application/zip", "promptbench-inputs.zip", buf.Bytes())
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", "promptbench-inputs.csv", buf.Bytes())
}

func writeBatches(w io.Writer, format string, batches []export.Batch) error {
	if format == "zip" {
		return export.WriteZip(w, batches)
	}
	return export.WriteCSV(w, batches)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// CreateExport

type createExportResponse struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Templates int    `json:"templates"`
	Rows      int    `json:"rows"`
}

func (h *Handler) CreateExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "":
		format = "csv"
	case "csv", "zip":
	default:
		writeError(w, http.StatusBadRequest, "invalid_format", "format must be 'csv' or 'zip'")
		return
	}
	params, ok := h.parseGenerationParams(w, r)
	if !ok {
		return
	}

	gens, err := h.gen.GenerateAll(r.Context(), params.N, params.Mode)
	if err != nil {
		h.writeDomainError(w, r, err, "Templates")
		return
	}
	batches := generator.Batches(gens)
	name, err := h.store.Create(format, func(out io.Writer) error {
		return writeBatches(out, format, batches)
	})
	if err != nil {
		h.writeDomainError(w, r, err, "Export")
		return
	}

	rows := 0
	for _, b := range batches {
		rows += len(b.Inputs)
	}
	h.log.Info("export created", "name", name, "templates", len(batches), "rows", rows)
	writeJSON(w, http.StatusCreated, createExportResponse{
		Name:      name,
		URL:       "/exports/" + name,
		Templates: len(batches),
		Rows:      rows,
	})
}

func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := h.store.Open(name)
	if err != nil {
		h.writeDomainError(w, r, err, "Export")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeDomainError(w, r, err, "Export")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
