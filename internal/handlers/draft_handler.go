package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"wacrm/internal/api"
	"wacrm/internal/models"
	"wacrm/internal/template"
)

const (
	maxDraftTitle   = 200
	maxDraftContent = 4096
)

type DraftStore interface {
	Create(tenant string, draft *models.Draft) error
	GetByID(tenant string, id int64) (*models.Draft, error)
	GetAll(tenant string) ([]models.Draft, error)
	Update(tenant string, draft *models.Draft) (bool, error)
	Delete(tenant string, id int64) (bool, error)
}

type DraftHandler struct {
	drafts   DraftStore
	contacts ContactStore
}

func NewDraftHandler(drafts DraftStore, contacts ContactStore) *DraftHandler {
	return &DraftHandler{drafts: drafts, contacts: contacts}
}

// HandleDrafts handles GET /api/drafts (list) and POST /api/drafts (create)
func (h *DraftHandler) HandleDrafts(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		drafts, err := h.drafts.GetAll(tenant)
		if err != nil {
			jsonError(w, fmt.Sprintf("Failed to retrieve drafts: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, api.DraftListResponse{
			Success: true,
			Message: "Drafts retrieved successfully",
			Drafts:  drafts,
			Count:   len(drafts),
		})
	case http.MethodPost:
		draft, ok := readDraft(w, r)
		if !ok {
			return
		}
		if err := h.drafts.Create(tenant, draft); err != nil {
			jsonError(w, fmt.Sprintf("Failed to create draft: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, draftResponse("Draft created successfully", draft))
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleDraft handles GET/PUT/DELETE /api/drafts/{id} and POST /api/drafts/{id}/preview
func (h *DraftHandler) HandleDraft(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/drafts/"), "/")
	idPart, action, _ := strings.Cut(path, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		jsonError(w, "Invalid draft ID", http.StatusBadRequest)
		return
	}

	switch {
	case action == "preview" && r.Method == http.MethodPost:
		h.preview(w, r, tenant, id)
	case action != "":
		jsonError(w, "Not found", http.StatusNotFound)
	case r.Method == http.MethodGet:
		h.getDraft(w, tenant, id)
	case r.Method == http.MethodPut:
		h.updateDraft(w, r, tenant, id)
	case r.Method == http.MethodDelete:
		h.deleteDraft(w, tenant, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func draftResponse(message string, draft *models.Draft) api.DraftResponse {
	placeholders := template.Extract(draft.Content)
	if placeholders == nil {
		placeholders = []string{}
	}
	return api.DraftResponse{Success: true, Message: message, Draft: draft, Placeholders: placeholders}
}

// readDraft decodes and validates a draft body, answering 400 when it is unusable.
func readDraft(w http.ResponseWriter, r *http.Request) (*models.Draft, bool) {
	var req api.DraftRequest
	if !decodeJSON(w, r, &req) {
		return nil, false
	}

	title := strings.TrimSpace(req.Title)
	switch {
	case title == "":
		jsonError(w, "Draft title is required", http.StatusBadRequest)
		return nil, false
	case len(title) > maxDraftTitle:
		jsonError(w, fmt.Sprintf("Draft title must be at most %d characters", maxDraftTitle), http.StatusBadRequest)
		return nil, false
	case strings.TrimSpace(req.Content) == "":
		jsonError(w, "Draft content is required", http.StatusBadRequest)
		return nil, false
	case len(req.Content) > maxDraftContent:
		jsonError(w, fmt.Sprintf("Draft content must be at most %d characters", maxDraftContent), http.StatusBadRequest)
		return nil, false
	}
	if unknown := template.Unknown(req.Content); len(unknown) > 0 {
		jsonError(w, fmt.Sprintf("Unknown placeholders: %s (available: %s)",
			strings.Join(unknown, ", "), strings.Join(template.BuiltIn, ", ")), http.StatusBadRequest)
		return nil, false
	}
	return &models.Draft{Title: title, Content: req.Content}, true
}

func (h *DraftHandler) getDraft(w http.ResponseWriter, tenant string, id int64) {
	draft, err := h.drafts.GetByID(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to retrieve draft: %v", err), http.StatusInternalServerError)
		return
	}
	if draft == nil {
		jsonError(w, "Draft not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse("Draft retrieved successfully", draft))
}

func (h *DraftHandler) updateDraft(w http.ResponseWriter, r *http.Request, tenant string, id int64) {
	draft, ok := readDraft(w, r)
	if !ok {
		return
	}
	draft.ID = id

	updated, err := h.drafts.Update(tenant, draft)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to update draft: %v", err), http.StatusInternalServerError)
		return
	}
	if !updated {
		jsonError(w, "Draft not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse("Draft updated successfully", draft))
}

func (h *DraftHandler) deleteDraft(w http.ResponseWriter, tenant string, id int64) {
	deleted, err := h.drafts.Delete(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to delete draft: %v", err), http.StatusInternalServerError)
		return
	}
	if !deleted {
		jsonError(w, "Draft not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, api.Response{Success: true, Message: "Draft deleted successfully"})
}

func (h *DraftHandler) preview(w http.ResponseWriter, r *http.Request, tenant string, id int64) {
	var req api.PreviewRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	draft, err := h.drafts.GetByID(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to retrieve draft: %v", err), http.StatusInternalServerError)
		return
	}
	if draft == nil {
		jsonError(w, "Draft not found", http.StatusNotFound)
		return
	}

	values := template.SampleValues()
	if req.ContactID > 0 {
		contact, err := h.contacts.GetByID(tenant, req.ContactID)
		if err != nil {
			jsonError(w, fmt.Sprintf("Failed to retrieve contact: %v", err), http.StatusInternalServerError)
			return
		}
		if contact == nil {
			jsonError(w, "Contact not found", http.StatusNotFound)
			return
		}
		values = template.ContactValues(*contact)
	}

	writeJSON(w, http.StatusOK, api.PreviewResponse{
		Success:       true,
		Message:       "Preview generated",
		PreviewResult: template.Preview(draft.Content, values),
	})
}
