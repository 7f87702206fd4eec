package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dshills/promptbench/internal/diff"
	"github.com/dshills/promptbench/internal/domain"
	"github.com/dshills/promptbench/internal/repository"
	"github.com/dshills/promptbench/internal/search"
	"github.com/dshills/promptbench/internal/validator"
	"github.com/google/uuid"
)

type placeholderRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Values      []string `json:"values"`
}

type templateRequest struct {
	Label          string               `json:"label"`
	Base           string               `json:"base"`
	Description    string               `json:"description"`
	ExpectedResult string               `json:"expected_result"`
	Category       domain.Category      `json:"category"`
	Placeholders   []placeholderRequest `json:"placeholders"`
}

func (req templateRequest) category() domain.Category {
	if req.Category == "" {
		return domain.CategoryBias
	}
	return req.Category
}

// ListTemplates

type listTemplatesResponse struct {
	Templates []*domain.Template `json:"templates"`
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.repo.ListTemplates(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err, "Templates")
		return
	}
	templates = search.Templates(r.URL.Query().Get("q"), templates)
	if templates == nil {
		templates = []*domain.Template{}
	}
	writeJSON(w, http.StatusOK, listTemplatesResponse{Templates: templates})
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !h.decodeValidated(w, r, validator.SchemaTemplateCreate, &req) {
		return
	}

	now := time.Now().UTC()
	template := &domain.Template{
		ID:             uuid.New(),
		Label:          req.Label,
		Base:           req.Base,
		Description:    req.Description,
		ExpectedResult: req.ExpectedResult,
		Category:       req.category(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, p := range req.Placeholders {
		template.Placeholders = append(template.Placeholders, &domain.Placeholder{
			ID:          uuid.New(),
			TemplateID:  template.ID,
			Name:        p.Name,
			Description: p.Description,
			Values:      p.Values,
			Position:    i,
			CreatedAt:   now,
		})
	}
	if v, ok := template.ConflictingValue(); ok {
		h.writeDomainError(w, r, fmt.Errorf("%w: %q", domain.ErrValueInUse, v), "Template")
		return
	}

	err := h.repo.WithTx(r.Context(), func(tx repository.Repository) error {
		if err := rejectDuplicate(r, tx, template); err != nil {
			return err
		}
		return tx.CreateTemplate(r.Context(), template)
	})
	if err != nil {
		h.writeDomainError(w, r, err, "Template")
		return
	}

	if template.Placeholders == nil {
		template.Placeholders = []*domain.Placeholder{}
	}
	writeJSON(w, http.StatusCreated, template)
}

// rejectDuplicate fails with ErrDuplicateTemplate when another stored
// template is equivalent to t.
func rejectDuplicate(r *http.Request, repo repository.Repository, t *domain.Template) error {
	existing, err := repo.ListTemplates(r.Context())
	if err != nil {
		return err
	}
	dup, err := diff.FindDuplicate(t, existing)
	if err != nil {
		return err
	}
	if dup != nil {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateTemplate, dup.ID)
	}
	return nil
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "templateId", "Template")
	if !ok {
		return
	}
	template, err := h.repo.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err, "Template")
		return
	}
	writeJSON(w, http.StatusOK, template)
}

// UpdateTemplate

type updateTemplateResponse struct {
	Template *domain.Template     `json:"template"`
	Diff     *diff.Result         `json:"diff"`
	Impact   *diff.ImpactAnalysis `json:"impact"`
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "templateId", "Template")
	if !ok {
		return
	}
	var req templateRequest
	if !h.decodeValidated(w, r, validator.SchemaTemplateUpdate, &req) {
		return
	}

	var resp updateTemplateResponse
	err := h.repo.WithTx(r.Context(), func(tx repository.Repository) error {
		previous, err := tx.GetTemplate(r.Context(), id)
		if err != nil {
			return err
		}
		updated := *previous
		updated.Label = req.Label
		updated.Base = req.Base
		updated.Description = req.Description
		updated.ExpectedResult = req.ExpectedResult
		updated.Category = req.category()
		updated.UpdatedAt = time.Now().UTC()

		if err := rejectDuplicate(r, tx, &updated); err != nil {
			return err
		}
		if err := tx.UpdateTemplate(r.Context(), &updated); err != nil {
			return err
		}

		result, err := diff.Templates(previous, &updated)
		if err != nil {
			return err
		}
		resp = updateTemplateResponse{Template: &updated, Diff: result, Impact: diff.AnalyzeImpact(result)}
		return nil
	})
	if err != nil {
		h.writeDomainError(w, r, err, "Template")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "templateId", "Template")
	if !ok {
		return
	}
	if err := h.repo.DeleteTemplate(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err, "Template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
