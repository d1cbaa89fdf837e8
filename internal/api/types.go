// Package api holds the JSON request and response bodies shared by the
// HTTP handlers and the REST client.
package api

import (
	"wacrm/internal/models"
	"wacrm/internal/template"
)

// MaxBulkIDs is the largest id list a single bulk request may carry.
const MaxBulkIDs = 1000

// MaxCampaignContacts is the largest recipient list of one campaign.
const MaxCampaignContacts = 5000

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ContactListResponse struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	Items      []models.Contact `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	Total      int              `json:"total"`
	TotalPages int              `json:"total_pages"`
}

type ContactResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Contact *models.Contact `json:"contact,omitempty"`
}

type BulkUpdateRequest struct {
	IDs    []int64           `json:"ids"`
	Fields map[string]string `json:"fields"`
}

type BulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// BulkResponse reports a bulk action. Failed lists requested IDs the server
// could not apply the action to.
type BulkResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	Requested int     `json:"requested"`
	Affected  int     `json:"affected"`
	Failed    []int64 `json:"failed"`
}

type ImportResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

type CategoryRequest struct {
	Name string `json:"name"`
}

type CategoryResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Category *models.Category `json:"category,omitempty"`
}

type CategoryListResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	Categories []models.Category `json:"categories"`
	Count      int               `json:"count"`
}

type StatusResponse struct {
	Connected  bool   `json:"connected"`
	HasSession bool   `json:"has_session"` // true if device was previously linked
	Connecting bool   `json:"connecting"`  // true if websocket connected but not authenticated yet
	Message    string `json:"message"`
}

type QRResponse struct {
	QRCode    string `json:"qr_code"`
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type DraftRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// DraftResponse carries a draft and the placeholders its content uses.
type DraftResponse struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Draft        *models.Draft `json:"draft,omitempty"`
	Placeholders []string      `json:"placeholders"`
}

type DraftListResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Drafts  []models.Draft `json:"drafts"`
	Count   int            `json:"count"`
}

// PreviewRequest fills a draft for one contact. Without a contact, sample
// values are used.
type PreviewRequest struct {
	ContactID int64 `json:"contact_id,omitempty"`
}

type PreviewResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	template.PreviewResult
}

// CampaignRequest sends a draft to a category or to explicit contacts.
type CampaignRequest struct {
	DraftID    int64   `json:"draft_id"`
	CategoryID int64   `json:"category_id,omitempty"`
	ContactIDs []int64 `json:"contact_ids,omitempty"`
}

// CampaignResponse describes one campaign. Skipped lists requested contacts
// that got no message. NextSendInSeconds is set while the campaign is sending.
type CampaignResponse struct {
	Success           bool             `json:"success"`
	Message           string           `json:"message"`
	Campaign          *models.Campaign `json:"campaign,omitempty"`
	Queued            int              `json:"queued,omitempty"`
	Skipped           []int64          `json:"skipped,omitempty"`
	NextSendInSeconds *int             `json:"next_send_in_seconds,omitempty"`
	Paused            bool             `json:"paused,omitempty"`
}

type CampaignListResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Campaigns []models.Campaign `json:"campaigns"`
	Count     int               `json:"count"`
}

type CampaignMessagesResponse struct {
	Success  bool                     `json:"success"`
	Message  string                   `json:"message"`
	Messages []models.CampaignMessage `json:"messages"`
	Count    int                      `json:"count"`
}
