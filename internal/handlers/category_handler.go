package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"wacrm/internal/api"
	"wacrm/internal/models"
)

const maxCategoryName = 100

type CategoryStore interface {
	CategoryLookup
	Create(tenant string, category *models.Category) error
	GetByName(tenant, name string) (*models.Category, error)
	GetAll(tenant string) ([]models.Category, error)
	Rename(tenant string, category *models.Category) (bool, error)
	Delete(tenant string, id int64) (bool, error)
}

type CategoryHandler struct {
	categories CategoryStore
}

func NewCategoryHandler(categories CategoryStore) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// HandleCategories handles GET /api/categories (list) and POST /api/categories (create)
func (h *CategoryHandler) HandleCategories(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.listCategories(w, tenant)
	case http.MethodPost:
		h.createCategory(w, r, tenant)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleCategory handles GET/PUT/DELETE /api/categories/{id}
func (h *CategoryHandler) HandleCategory(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/categories/"), "/")
	id, err := strconv.ParseInt(path, 10, 64)
	if err != nil {
		jsonError(w, "Invalid category ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getCategory(w, tenant, id)
	case http.MethodPut:
		h.renameCategory(w, r, tenant, id)
	case http.MethodDelete:
		h.deleteCategory(w, tenant, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CategoryHandler) listCategories(w http.ResponseWriter, tenant string) {
	categories, err := h.categories.GetAll(tenant)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to retrieve categories: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, api.CategoryListResponse{
		Success:    true,
		Message:    "Categories retrieved successfully",
		Categories: categories,
		Count:      len(categories),
	})
}

// readName decodes and validates a category name, answering 400 when it is unusable.
func readName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req api.CategoryRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		jsonError(w, "Category name is required", http.StatusBadRequest)
		return "", false
	case len(name) > maxCategoryName:
		jsonError(w, fmt.Sprintf("Category name must be at most %d characters", maxCategoryName), http.StatusBadRequest)
		return "", false
	case strings.EqualFold(name, models.CategoryNone):
		jsonError(w, fmt.Sprintf("%q is reserved", models.CategoryNone), http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func (h *CategoryHandler) createCategory(w http.ResponseWriter, r *http.Request, tenant string) {
	name, ok := readName(w, r)
	if !ok {
		return
	}

	existing, err := h.categories.GetByName(tenant, name)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to check category name: %v", err), http.StatusInternalServerError)
		return
	}
	if existing != nil {
		jsonError(w, "A category with this name already exists", http.StatusConflict)
		return
	}

	category := &models.Category{Name: name}
	if err := h.categories.Create(tenant, category); err != nil {
		jsonError(w, fmt.Sprintf("Failed to create category: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, api.CategoryResponse{
		Success:  true,
		Message:  "Category created successfully",
		Category: category,
	})
}

func (h *CategoryHandler) getCategory(w http.ResponseWriter, tenant string, id int64) {
	category, err := h.categories.GetByID(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to retrieve category: %v", err), http.StatusInternalServerError)
		return
	}
	if category == nil {
		jsonError(w, "Category not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, api.CategoryResponse{
		Success:  true,
		Message:  "Category retrieved successfully",
		Category: category,
	})
}

func (h *CategoryHandler) renameCategory(w http.ResponseWriter, r *http.Request, tenant string, id int64) {
	name, ok := readName(w, r)
	if !ok {
		return
	}

	// Check if another category has this name
	existing, err := h.categories.GetByName(tenant, name)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to check category name: %v", err), http.StatusInternalServerError)
		return
	}
	if existing != nil && existing.ID != id {
		jsonError(w, "A category with this name already exists", http.StatusConflict)
		return
	}

	category := &models.Category{ID: id, Name: name}
	found, err := h.categories.Rename(tenant, category)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to update category: %v", err), http.StatusInternalServerError)
		return
	}
	if !found {
		jsonError(w, "Category not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, api.CategoryResponse{
		Success:  true,
		Message:  "Category updated successfully",
		Category: category,
	})
}

func (h *CategoryHandler) deleteCategory(w http.ResponseWriter, tenant string, id int64) {
	found, err := h.categories.Delete(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to delete category: %v", err), http.StatusInternalServerError)
		return
	}
	if !found {
		jsonError(w, "Category not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, api.Response{
		Success: true,
		Message: "Category deleted; its contacts are now uncategorized",
	})
}
