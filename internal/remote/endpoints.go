package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"wacrm/internal/api"
	"wacrm/internal/models"
)

func call[T any](ctx context.Context, c *Client, method, path string, in any) (*T, error) {
	req, err := jsonRequest(method, path, in)
	if err != nil {
		return nil, err
	}
	var out T
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListContacts fetches one page of contacts. Transient failures are retried.
func (c *Client) ListContacts(ctx context.Context, filter map[string]string, page, pageSize int) (*api.ContactListResponse, error) {
	query := url.Values{}
	for key, value := range filter {
		if value != "" {
			query.Set(key, value)
		}
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	return retry(ctx, c, func() (*api.ContactListResponse, error) {
		var resp api.ContactListResponse
		err := c.do(ctx, request{method: http.MethodGet, path: "/api/contacts", query: query}, &resp)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	})
}

func (c *Client) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	resp, err := call[api.ContactResponse](ctx, c, http.MethodGet, fmt.Sprintf("/api/contacts/%d", id), nil)
	if err != nil {
		return nil, err
	}
	return resp.Contact, nil
}

func (c *Client) BulkUpdate(ctx context.Context, ids []int64, fields map[string]string) (*api.BulkResponse, error) {
	return call[api.BulkResponse](ctx, c, http.MethodPost, "/api/contacts/bulk-update", api.BulkUpdateRequest{IDs: ids, Fields: fields})
}

func (c *Client) BulkDelete(ctx context.Context, ids []int64) (*api.BulkResponse, error) {
	return call[api.BulkResponse](ctx, c, http.MethodPost, "/api/contacts/bulk-delete", api.BulkDeleteRequest{IDs: ids})
}

// ImportCSV uploads a CSV file of contacts.
func (c *Client) ImportCSV(ctx context.Context, csv io.Reader) (*api.ImportResponse, error) {
	var resp api.ImportResponse
	req := request{method: http.MethodPost, path: "/api/contacts/import", body: csv, contentType: "text/csv"}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncWhatsApp imports the linked account's address book on the server.
func (c *Client) SyncWhatsApp(ctx context.Context) (*api.ImportResponse, error) {
	return call[api.ImportResponse](ctx, c, http.MethodPost, "/api/contacts/import/whatsapp", nil)
}

func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	resp, err := call[api.CategoryListResponse](ctx, c, http.MethodGet, "/api/categories", nil)
	if err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

func (c *Client) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	resp, err := call[api.CategoryResponse](ctx, c, http.MethodPost, "/api/categories", api.CategoryRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return resp.Category, nil
}

func (c *Client) RenameCategory(ctx context.Context, id int64, name string) (*models.Category, error) {
	resp, err := call[api.CategoryResponse](ctx, c, http.MethodPut, fmt.Sprintf("/api/categories/%d", id), api.CategoryRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return resp.Category, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) error {
	_, err := call[api.Response](ctx, c, http.MethodDelete, fmt.Sprintf("/api/categories/%d", id), nil)
	return err
}

func (c *Client) WhatsAppStatus(ctx context.Context) (*api.StatusResponse, error) {
	return call[api.StatusResponse](ctx, c, http.MethodGet, "/api/whatsapp/status", nil)
}

func (c *Client) WhatsAppConnect(ctx context.Context) (*api.Response, error) {
	return call[api.Response](ctx, c, http.MethodPost, "/api/whatsapp/connect", nil)
}

func (c *Client) WhatsAppDisconnect(ctx context.Context) (*api.Response, error) {
	return call[api.Response](ctx, c, http.MethodPost, "/api/whatsapp/disconnect", nil)
}

func (c *Client) WhatsAppQR(ctx context.Context) (*api.QRResponse, error) {
	return call[api.QRResponse](ctx, c, http.MethodGet, "/api/whatsapp/qr", nil)
}

func (c *Client) Drafts(ctx context.Context) ([]models.Draft, error) {
	resp, err := call[api.DraftListResponse](ctx, c, http.MethodGet, "/api/drafts", nil)
	if err != nil {
		return nil, err
	}
	return resp.Drafts, nil
}

func (c *Client) Draft(ctx context.Context, id int64) (*api.DraftResponse, error) {
	return call[api.DraftResponse](ctx, c, http.MethodGet, fmt.Sprintf("/api/drafts/%d", id), nil)
}

func (c *Client) CreateDraft(ctx context.Context, title, content string) (*models.Draft, error) {
	resp, err := call[api.DraftResponse](ctx, c, http.MethodPost, "/api/drafts", api.DraftRequest{Title: title, Content: content})
	if err != nil {
		return nil, err
	}
	return resp.Draft, nil
}

func (c *Client) UpdateDraft(ctx context.Context, id int64, title, content string) (*models.Draft, error) {
	resp, err := call[api.DraftResponse](ctx, c, http.MethodPut, fmt.Sprintf("/api/drafts/%d", id), api.DraftRequest{Title: title, Content: content})
	if err != nil {
		return nil, err
	}
	return resp.Draft, nil
}

func (c *Client) DeleteDraft(ctx context.Context, id int64) error {
	_, err := call[api.Response](ctx, c, http.MethodDelete, fmt.Sprintf("/api/drafts/%d", id), nil)
	return err
}

// PreviewDraft fills a draft for contactID, or with sample values when
// contactID is 0.
func (c *Client) PreviewDraft(ctx context.Context, id, contactID int64) (*api.PreviewResponse, error) {
	return call[api.PreviewResponse](ctx, c, http.MethodPost, fmt.Sprintf("/api/drafts/%d/preview", id), api.PreviewRequest{ContactID: contactID})
}

func (c *Client) Campaigns(ctx context.Context) ([]models.Campaign, error) {
	resp, err := call[api.CampaignListResponse](ctx, c, http.MethodGet, "/api/campaigns", nil)
	if err != nil {
		return nil, err
	}
	return resp.Campaigns, nil
}

func (c *Client) Campaign(ctx context.Context, id int64) (*api.CampaignResponse, error) {
	return call[api.CampaignResponse](ctx, c, http.MethodGet, fmt.Sprintf("/api/campaigns/%d", id), nil)
}

// CreateCampaign is not retried: a repeated request would queue the
// messages twice.
func (c *Client) CreateCampaign(ctx context.Context, req api.CampaignRequest) (*api.CampaignResponse, error) {
	return call[api.CampaignResponse](ctx, c, http.MethodPost, "/api/campaigns", req)
}

func (c *Client) CancelCampaign(ctx context.Context, id int64) error {
	_, err := call[api.CampaignResponse](ctx, c, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/cancel", id), nil)
	return err
}

func (c *Client) DeleteCampaign(ctx context.Context, id int64) error {
	_, err := call[api.Response](ctx, c, http.MethodDelete, fmt.Sprintf("/api/campaigns/%d", id), nil)
	return err
}

func (c *Client) CampaignMessages(ctx context.Context, id int64) ([]models.CampaignMessage, error) {
	resp, err := call[api.CampaignMessagesResponse](ctx, c, http.MethodGet, fmt.Sprintf("/api/campaigns/%d/messages", id), nil)
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}
