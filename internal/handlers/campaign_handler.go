package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"wacrm/internal/api"
	"wacrm/internal/campaign"
	"wacrm/internal/models"
)

// CampaignCreator renders a draft for its recipients and queues it.
type CampaignCreator interface {
	Create(tenant string, draftID int64, target campaign.Target) (*models.Campaign, campaign.Report, error)
}

type CampaignStore interface {
	GetByID(tenant string, id int64) (*models.Campaign, error)
	GetAll(tenant string) ([]models.Campaign, error)
	Messages(tenant string, campaignID int64) ([]models.CampaignMessage, error)
	Cancel(tenant string, id int64) (bool, error)
	Delete(tenant string, id int64) (bool, error)
}

// CampaignProgress reports the campaign the send worker is on.
type CampaignProgress interface {
	Progress() (campaign.Progress, bool)
}

// CampaignHandler serves campaigns. With a nil creator the server has no
// WhatsApp link and every route answers 503.
type CampaignHandler struct {
	creator   CampaignCreator
	campaigns CampaignStore
	progress  CampaignProgress
	log       *zap.Logger
}

func NewCampaignHandler(creator CampaignCreator, campaigns CampaignStore, progress CampaignProgress, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{
		creator:   creator,
		campaigns: campaigns,
		progress:  progress,
		log:       log.Named("campaigns"),
	}
}

func (h *CampaignHandler) available(w http.ResponseWriter) bool {
	if h.creator == nil {
		jsonError(w, "Campaigns need the WhatsApp integration", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// HandleCampaigns handles GET /api/campaigns (list) and POST /api/campaigns (create)
func (h *CampaignHandler) HandleCampaigns(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		campaigns, err := h.campaigns.GetAll(tenant)
		if err != nil {
			jsonError(w, fmt.Sprintf("Failed to retrieve campaigns: %v", err), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, api.CampaignListResponse{
			Success:   true,
			Message:   "Campaigns retrieved successfully",
			Campaigns: campaigns,
			Count:     len(campaigns),
		})
	case http.MethodPost:
		h.createCampaign(w, r, tenant)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleCampaign handles GET/DELETE /api/campaigns/{id}, POST {id}/cancel and GET {id}/messages
func (h *CampaignHandler) HandleCampaign(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	tenant, ok := tenantOf(w, r)
	if !ok {
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/campaigns/"), "/")
	idPart, action, _ := strings.Cut(path, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		jsonError(w, "Invalid campaign ID", http.StatusBadRequest)
		return
	}

	switch {
	case action == "cancel" && r.Method == http.MethodPost:
		h.cancelCampaign(w, tenant, id)
	case action == "messages" && r.Method == http.MethodGet:
		h.listMessages(w, tenant, id)
	case action != "":
		jsonError(w, "Not found", http.StatusNotFound)
	case r.Method == http.MethodGet:
		h.getCampaign(w, tenant, id)
	case r.Method == http.MethodDelete:
		h.deleteCampaign(w, tenant, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CampaignHandler) createCampaign(w http.ResponseWriter, r *http.Request, tenant string) {
	var req api.CampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DraftID <= 0 {
		jsonError(w, "draft_id is required", http.StatusBadRequest)
		return
	}

	target := campaign.Target{CategoryID: req.CategoryID}
	if len(req.ContactIDs) > 0 {
		if len(req.ContactIDs) > api.MaxCampaignContacts {
			jsonError(w, fmt.Sprintf("At most %d contacts per campaign", api.MaxCampaignContacts), http.StatusBadRequest)
			return
		}
		seen := make(map[int64]bool, len(req.ContactIDs))
		for _, id := range req.ContactIDs {
			if id <= 0 {
				jsonError(w, fmt.Sprintf("Invalid contact ID %d", id), http.StatusBadRequest)
				return
			}
			if !seen[id] {
				seen[id] = true
				target.ContactIDs = append(target.ContactIDs, id)
			}
		}
	}

	created, report, err := h.creator.Create(tenant, req.DraftID, target)
	switch {
	case errors.Is(err, campaign.ErrDraftNotFound), errors.Is(err, campaign.ErrCategoryNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, models.ErrInvalidInput):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.log.Error("failed to create campaign", zap.String("tenant", tenant), zap.Error(err))
		jsonError(w, fmt.Sprintf("Failed to create campaign: %v", err), http.StatusInternalServerError)
		return
	}

	message := fmt.Sprintf("%d messages queued", report.Queued)
	if len(report.Skipped) > 0 {
		message = fmt.Sprintf("%d queued, %d skipped", report.Queued, len(report.Skipped))
	}
	writeJSON(w, http.StatusCreated, api.CampaignResponse{
		Success:  true,
		Message:  message,
		Campaign: created,
		Queued:   report.Queued,
		Skipped:  report.Skipped,
	})
}

func (h *CampaignHandler) getCampaign(w http.ResponseWriter, tenant string, id int64) {
	c, err := h.campaigns.GetByID(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to retrieve campaign: %v", err), http.StatusInternalServerError)
		return
	}
	if c == nil {
		jsonError(w, "Campaign not found", http.StatusNotFound)
		return
	}

	resp := api.CampaignResponse{Success: true, Message: "Campaign retrieved successfully", Campaign: c}
	if h.progress != nil {
		if p, ok := h.progress.Progress(); ok && p.CampaignID == c.ID {
			next := max(int(time.Until(p.NextSendAt).Round(time.Second).Seconds()), 0)
			resp.NextSendInSeconds = &next
			resp.Paused = p.Paused
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CampaignHandler) cancelCampaign(w http.ResponseWriter, tenant string, id int64) {
	cancelled, err := h.campaigns.Cancel(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to cancel campaign: %v", err), http.StatusInternalServerError)
		return
	}
	if !cancelled {
		jsonError(w, "No queued or running campaign with this ID", http.StatusConflict)
		return
	}
	h.log.Info("campaign cancelled", zap.String("tenant", tenant), zap.Int64("campaign_id", id))
	writeJSON(w, http.StatusOK, api.Response{Success: true, Message: "Campaign cancelled"})
}

func (h *CampaignHandler) deleteCampaign(w http.ResponseWriter, tenant string, id int64) {
	deleted, err := h.campaigns.Delete(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to delete campaign: %v", err), http.StatusInternalServerError)
		return
	}
	if !deleted {
		jsonError(w, "Campaign not found or still running", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, api.Response{Success: true, Message: "Campaign deleted"})
}

func (h *CampaignHandler) listMessages(w http.ResponseWriter, tenant string, id int64) {
	c, err := h.campaigns.GetByID(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to retrieve campaign: %v", err), http.StatusInternalServerError)
		return
	}
	if c == nil {
		jsonError(w, "Campaign not found", http.StatusNotFound)
		return
	}

	messages, err := h.campaigns.Messages(tenant, id)
	if err != nil {
		jsonError(w, fmt.Sprintf("Failed to retrieve campaign messages: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, api.CampaignMessagesResponse{
		Success:  true,
		Message:  "Campaign messages retrieved successfully",
		Messages: messages,
		Count:    len(messages),
	})
}
