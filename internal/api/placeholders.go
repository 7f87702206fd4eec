package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/dshills/promptbench/internal/validator"
	"github.com/google/uuid"
)

type listPlaceholdersResponse struct {
	Placeholders []*domain.Placeholder `json:"placeholders"`
}

// checkValues fails with ErrValueInUse when one of values already belongs to
// another placeholder of t. skip excludes the placeholder being updated.
func checkValues(t *domain.Template, skip uuid.UUID, values []string) error {
	used := t.UsedValues(skip)
	for _, v := range values {
		if _, ok := used[v]; ok {
			return fmt.Errorf("%w: %q", domain.ErrValueInUse, v)
		}
	}
	return nil
}

func (h *Handler) ListTemplatePlaceholders(w http.ResponseWriter, r *http.Request) {
	templateID, ok := pathUUID(w, r, "templateId", "Template")
	if !ok {
		return
	}
	if _, err := h.repo.GetTemplate(r.Context(), templateID); err != nil {
		h.writeDomainError(w, r, err, "Template")
		return
	}
	placeholders, err := h.repo.ListPlaceholders(r.Context(), &templateID)
	if err != nil {
		h.writeDomainError(w, r, err, "Placeholders")
		return
	}
	writeJSON(w, http.StatusOK, listPlaceholdersResponse{Placeholders: placeholders})
}

// ListPlaceholders lists placeholders across templates, optionally filtered
// by the template_id query parameter.
func (h *Handler) ListPlaceholders(w http.ResponseWriter, r *http.Request) {
	var templateID *uuid.UUID
	if raw := r.URL.Query().Get("template_id"); raw != "" {
		id, err := parseUUID(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_uuid", "Invalid template ID format")
			return
		}
		templateID = &id
	}
	placeholders, err := h.repo.ListPlaceholders(r.Context(), templateID)
	if err != nil {
		h.writeDomainError(w, r, err, "Placeholders")
		return
	}
	writeJSON(w, http.StatusOK, listPlaceholdersResponse{Placeholders: placeholders})
}

func (h *Handler) CreatePlaceholder(w http.ResponseWriter, r *http.Request) {
	templateID, ok := pathUUID(w, r, "templateId", "Template")
	if !ok {
		return
	}
	var req placeholderRequest
	if !h.decodeValidated(w, r, validator.SchemaPlaceholder, &req) {
		return
	}

	placeholder := &domain.Placeholder{
		ID:          uuid.New(),
		TemplateID:  templateID,
		Name:        req.Name,
		Description: req.Description,
		Values:      req.Values,
		CreatedAt:   time.Now().UTC(),
	}
	err := h.repo.WithTx(r.Context(), func(tx repository.Repository) error {
		template, err := tx.GetTemplate(r.Context(), templateID)
		if err != nil {
			return err
		}
		if err := checkValues(template, uuid.Nil, placeholder.Values); err != nil {
			return err
		}
		return tx.CreatePlaceholder(r.Context(), placeholder)
	})
	if err != nil {
		h.writeDomainError(w, r, err, "Template")
		return
	}
	writeJSON(w, http.StatusCreated, placeholder)
}

func (h *Handler) GetPlaceholder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "placeholderId", "Placeholder")
	if !ok {
		return
	}
	placeholder, err := h.repo.GetPlaceholder(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err, "Placeholder")
		return
	}
	writeJSON(w, http.StatusOK, placeholder)
}

// UpdatePlaceholder replaces a placeholder's name, description and values.
func (h *Handler) UpdatePlaceholder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "placeholderId", "Placeholder")
	if !ok {
		return
	}
	var req placeholderRequest
	if !h.decodeValidated(w, r, validator.SchemaPlaceholder, &req) {
		return
	}

	var updated *domain.Placeholder
	err := h.repo.WithTx(r.Context(), func(tx repository.Repository) error {
		placeholder, err := tx.GetPlaceholder(r.Context(), id)
		if err != nil {
			return err
		}
		template, err := tx.GetTemplate(r.Context(), placeholder.TemplateID)
		if err != nil {
			return err
		}
		if err := checkValues(template, placeholder.ID, req.Values); err != nil {
			return err
		}
		placeholder.Name = req.Name
		placeholder.Description = req.Description
		placeholder.Values = req.Values
		if err := tx.UpdatePlaceholder(r.Context(), placeholder); err != nil {
			return err
		}
		updated = placeholder
		return nil
	})
	if err != nil {
		h.writeDomainError(w, r, err, "Placeholder")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeletePlaceholder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "placeholderId", "Placeholder")
	if !ok {
		return
	}
	if err := h.repo.DeletePlaceholder(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err, "Placeholder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
