package remote

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"wacrm/internal/api"
	"wacrm/internal/collection"
	"wacrm/internal/models"
)

// ContactSource serves the server's contacts to a collection.Controller.
type ContactSource struct {
	client *Client
}

func NewContactSource(client *Client) *ContactSource {
	return &ContactSource{client: client}
}

func (s *ContactSource) ListRecords(ctx context.Context, filter collection.Filter, page, pageSize int) (collection.Page[models.Contact], error) {
	resp, err := s.client.ListContacts(ctx, filter, page, pageSize)
	if err != nil {
		return collection.Page[models.Contact]{}, err
	}
	return collection.Page[models.Contact]{
		Items:  resp.Items,
		Number: resp.Page,
		Size:   resp.PageSize,
		Total:  resp.Total,
	}, nil
}

func (s *ContactSource) BulkUpdate(ctx context.Context, ids []string, fields map[string]string) (collection.BulkResult, error) {
	return s.inChunks(ids, func(chunk []int64) (*api.BulkResponse, error) {
		return s.client.BulkUpdate(ctx, chunk, fields)
	})
}

func (s *ContactSource) BulkDelete(ctx context.Context, ids []string) (collection.BulkResult, error) {
	return s.inChunks(ids, func(chunk []int64) (*api.BulkResponse, error) {
		return s.client.BulkDelete(ctx, chunk)
	})
}

// BulkSend queues one campaign sending the draft named by fields to ids.
// Contacts the server skipped are reported as failed.
func (s *ContactSource) BulkSend(ctx context.Context, ids []string, fields map[string]string) (collection.BulkResult, error) {
	draftID, err := strconv.ParseInt(fields[models.FieldDraftID], 10, 64)
	if err != nil || draftID <= 0 {
		return collection.BulkResult{}, fmt.Errorf("invalid draft id %q", fields[models.FieldDraftID])
	}
	numeric, err := parseIDs(ids)
	if err != nil {
		return collection.BulkResult{}, err
	}
	if len(numeric) > api.MaxCampaignContacts {
		return collection.BulkResult{}, fmt.Errorf("a campaign takes at most %d contacts, %d selected", api.MaxCampaignContacts, len(numeric))
	}

	resp, err := s.client.CreateCampaign(ctx, api.CampaignRequest{DraftID: draftID, ContactIDs: numeric})
	if err != nil {
		return collection.BulkResult{}, err
	}
	if resp.Campaign != nil {
		s.client.log.Info("campaign queued",
			zap.Int64("campaign_id", resp.Campaign.ID),
			zap.Int("queued", resp.Queued),
			zap.Int("skipped", len(resp.Skipped)))
	}
	return bulkResult(resp.Queued, resp.Skipped), nil
}

// inChunks splits ids into requests the server accepts. A failing request
// aborts the run. If an earlier request was already applied, the run reports
// partial success with the failed and unsent ids in Failed; otherwise it
// returns the error.
func (s *ContactSource) inChunks(ids []string, send func([]int64) (*api.BulkResponse, error)) (collection.BulkResult, error) {
	numeric, err := parseIDs(ids)
	if err != nil {
		return collection.BulkResult{}, err
	}

	var result collection.BulkResult
	sent := 0
	for chunk := range slices.Chunk(numeric, api.MaxBulkIDs) {
		resp, err := send(chunk)
		if err != nil {
			if sent == 0 {
				return collection.BulkResult{}, err
			}
			rest := numeric[sent:]
			s.client.log.Warn("bulk request failed after partial success",
				zap.Int("applied", sent),
				zap.Int("unapplied", len(rest)),
				zap.Error(err))
			result.Failed = append(result.Failed, bulkResult(0, rest).Failed...)
			return result, nil
		}
		part := bulkResult(resp.Affected, resp.Failed)
		result.Affected += part.Affected
		result.Failed = append(result.Failed, part.Failed...)
		sent += len(chunk)
	}
	return result, nil
}

func parseIDs(ids []string) ([]int64, error) {
	out := make([]int64, len(ids))
	for i, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid contact id %q", id)
		}
		out[i] = n
	}
	return out, nil
}

func bulkResult(affected int, failed []int64) collection.BulkResult {
	result := collection.BulkResult{Affected: affected}
	for _, id := range failed {
		result.Failed = append(result.Failed, strconv.FormatInt(id, 10))
	}
	return result
}
