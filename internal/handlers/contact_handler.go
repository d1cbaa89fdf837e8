package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wacrm/internal/api"
	"wacrm/internal/importer"
	"wacrm/internal/metrics"
	"wacrm/internal/models"
	"wacrm/internal/whatsapp"
)

const (
	defaultPageSize = 30
	maxBulkIDs      = api.MaxBulkIDs
	maxImportBytes  = 10 << 20
)

type ContactStore interface {
	List(tenant string, filter models.ContactFilter, page, pageSize int) ([]models.Contact, int, error)
	GetByID(tenant string, id int64) (*models.Contact, error)
	BulkUpdate(tenant string, ids []int64, fields models.ContactFields) (models.BulkResult, error)
	BulkDelete(tenant string, ids []int64) (models.BulkResult, error)
}

type CategoryLookup interface {
	GetByID(tenant string, id int64) (*models.Category, error)
}

type Importer interface {
	ImportCSV(ctx context.Context, tenant string, r io.Reader) (importer.Report, error)
	SyncWhatsApp(ctx context.Context, tenant string) (importer.Report, error)
}

type ContactHandler struct {
	contacts    ContactStore
	categories  CategoryLookup
	importer    Importer
	maxPageSize int
	log         *zap.Logger
}

func NewContactHandler(contacts ContactStore, categories CategoryLookup, imp Importer, maxPageSize int, log *zap.Logger) *ContactHandler {
	if maxPageSize <= 0 {
		maxPageSize = 200
	}
	return &ContactHandler{
		contacts:    contacts,
		categories:  categories,
		importer:    imp,
		maxPageSize: maxPageSize,
		log:         log.Named("contacts"),
	}
}

// HandleContacts handles GET /api/contacts (filtered, paginated list).
func (h *ContactHandler) HandleContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	values := make(map[string]string)
	for key := range query {
		if key == "page" || key == "page_size" {
			continue
		}
		values[key] = query.Get(key)
	}

	filter, err := models.ParseContactFilter(values)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	page, err := positiveParam(query.Get("page"), 1)
	if err != nil {
		jsonError(w, "page must be a positive integer", http.StatusBadRequest)
		return
	}
	pageSize, err := positiveParam(query.Get("page_size"), defaultPageSize)
	if err != nil {
		jsonError(w, "page_size must be a positive integer", http.StatusBadRequest)
		return
	}
	pageSize = min(pageSize, h.maxPageSize)

	items, total, err := h.contacts.List(tenant, filter, page, pageSize)
	if err != nil {
		h.log.Error("failed to list contacts", zap.String("tenant", tenant), zap.Error(err))
		jsonError(w, fmt.Sprintf("Failed to retrieve contacts: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, api.ContactListResponse{
		Success:    true,
		Message:    "Contacts retrieved successfully",
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

// HandleContact handles everything under /api/contacts/:
// GET {id}, POST bulk-update, POST bulk-delete, POST import, POST import/whatsapp
func (h *ContactHandler) HandleContact(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/contacts/"), "/")

	switch path {
	case "bulk-update":
		h.requirePost(w, r, h.bulkUpdate)
		return
	case "bulk-delete":
		h.requirePost(w, r, h.bulkDelete)
		return
	case "import":
		h.requirePost(w, r, h.importCSV)
		return
	case "import/whatsapp":
		RequireAdmin(func(w http.ResponseWriter, r *http.Request) {
			h.requirePost(w, r, h.importWhatsApp)
		})(w, r)
		return
	}

	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		jsonError(w, "Invalid contact ID", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.getContact(w, r, id)
}

func (h *ContactHandler) requirePost(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request, string)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}
	next(w, r, tenant)
}

func (h *ContactHandler) getContact(w http.ResponseWriter, r *http.Request, id int64) {
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}

	contact, err := h.contacts.GetByID(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to retrieve contact: %v", err), http.StatusInternalServerError)
		return
	}
	if contact == nil {
		jsonError(w, "Contact not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, api.ContactResponse{
		Success: true,
		Message: "Contact retrieved successfully",
		Contact: contact,
	})
}

func (h *ContactHandler) bulkUpdate(w http.ResponseWriter, r *http.Request, tenant string) {
	var req api.BulkUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ids, ok := checkIDs(w, req.IDs)
	if !ok {
		return
	}

	fields, err := models.ParseContactFields(req.Fields)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if fields.CategoryID != nil {
		category, err := h.categories.GetByID(tenant, *fields.CategoryID)
		if err != nil {
			jsonError(w, fmt.Sprintf("Failed to check category: %v", err), http.StatusInternalServerError)
			return
		}
		if category == nil {
			jsonError(w, "Category not found", http.StatusBadRequest)
			return
		}
	}

	result, err := h.contacts.BulkUpdate(tenant, ids, fields)
	metrics.RecordBulk("update", result.Affected, len(result.Failed), err)
	if err != nil {
		h.log.Error("bulk update failed", zap.String("tenant", tenant), zap.Int("count", len(ids)), zap.Error(err))
		jsonError(w, fmt.Sprintf("Failed to update contacts: %v", err), http.StatusInternalServerError)
		return
	}

	h.log.Info("bulk update applied",
		zap.String("tenant", tenant),
		zap.Int("affected", result.Affected),
		zap.Int("failed", len(result.Failed)),
	)
	writeJSON(w, http.StatusOK, bulkResponse("updated", len(ids), result))
}

func (h *ContactHandler) bulkDelete(w http.ResponseWriter, r *http.Request, tenant string) {
	var req api.BulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ids, ok := checkIDs(w, req.IDs)
	if !ok {
		return
	}

	result, err := h.contacts.BulkDelete(tenant, ids)
	metrics.RecordBulk("delete", result.Affected, len(result.Failed), err)
	if err != nil {
		h.log.Error("bulk delete failed", zap.String("tenant", tenant), zap.Int("count", len(ids)), zap.Error(err))
		jsonError(w, fmt.Sprintf("Failed to delete contacts: %v", err), http.StatusInternalServerError)
		return
	}

	h.log.Info("bulk delete applied",
		zap.String("tenant", tenant),
		zap.Int("affected", result.Affected),
		zap.Int("failed", len(result.Failed)),
	)
	writeJSON(w, http.StatusOK, bulkResponse("deleted", len(ids), result))
}

func bulkResponse(verb string, requested int, result models.BulkResult) api.BulkResponse {
	failed := result.Failed
	if failed == nil {
		failed = []int64{}
	}
	message := fmt.Sprintf("%d contacts %s", result.Affected, verb)
	if len(failed) > 0 {
		message = fmt.Sprintf("%d succeeded, %d failed", result.Affected, len(failed))
	}
	return api.BulkResponse{
		Success:   true,
		Message:   message,
		Requested: requested,
		Affected:  result.Affected,
		Failed:    failed,
	}
}

// checkIDs rejects empty or oversized selections and drops duplicates.
func checkIDs(w http.ResponseWriter, ids []int64) ([]int64, bool) {
	if len(ids) == 0 {
		jsonError(w, "No contacts selected", http.StatusBadRequest)
		return nil, false
	}
	if len(ids) > maxBulkIDs {
		jsonError(w, fmt.Sprintf("At most %d contacts can be changed at once", maxBulkIDs), http.StatusBadRequest)
		return nil, false
	}

	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			jsonError(w, fmt.Sprintf("Invalid contact ID %d", id), http.StatusBadRequest)
			return nil, false
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique, true
}

func (h *ContactHandler) importCSV(w http.ResponseWriter, r *http.Request, tenant string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var body io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "Missing CSV file in form field \"file\"", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
	}

	report, err := h.importer.ImportCSV(r.Context(), tenant, body)
	h.writeImport(w, tenant, report, err)
}

func (h *ContactHandler) importWhatsApp(w http.ResponseWriter, r *http.Request, tenant string) {
	report, err := h.importer.SyncWhatsApp(r.Context(), tenant)
	h.writeImport(w, tenant, report, err)
}

func (h *ContactHandler) writeImport(w http.ResponseWriter, tenant string, report importer.Report, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, whatsapp.ErrNotConnected):
		jsonError(w, "WhatsApp client not connected", http.StatusBadRequest)
		return
	case err != nil:
		h.log.Error("import failed", zap.String("tenant", tenant), zap.Error(err))
		jsonError(w, fmt.Sprintf("Import failed: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, api.ImportResponse{
		Success:  true,
		Message:  fmt.Sprintf("%d imported, %d updated, %d skipped", report.Imported, report.Updated, report.Skipped),
		Imported: report.Imported,
		Updated:  report.Updated,
		Skipped:  report.Skipped,
		Errors:   report.Errors,
	})
}

func positiveParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return n, nil
}
