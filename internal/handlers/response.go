package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"wacrm/internal/api"
	"wacrm/internal/auth"
)

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, api.Response{Success: false, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		jsonError(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

// tenantOf returns the tenant set by RequireAuth, answering 401 when absent.
func tenantOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant, ok := auth.TenantFrom(r.Context())
	if !ok {
		jsonError(w, "Unauthorized", http.StatusUnauthorized)
	}
	return tenant, ok
}
