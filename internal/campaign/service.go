// Package campaign queues a message draft for a set of contacts and sends
// the queue through the linked WhatsApp account.
package campaign

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"wacrm/internal/api"
	"wacrm/internal/metrics"
	"wacrm/internal/models"
	"wacrm/internal/template"
)

var (
	ErrDraftNotFound    = errors.New("draft not found")
	ErrCategoryNotFound = errors.New("category not found")
)

type DraftStore interface {
	GetByID(tenant string, id int64) (*models.Draft, error)
}

type ContactStore interface {
	GetMany(tenant string, ids []int64) ([]models.Contact, error)
	List(tenant string, filter models.ContactFilter, page, pageSize int) ([]models.Contact, int, error)
}

type CategoryStore interface {
	GetByID(tenant string, id int64) (*models.Category, error)
}

type CampaignStore interface {
	Create(tenant string, campaign *models.Campaign, messages []models.CampaignMessage) error
}

// Target selects the recipients: every contact of a category, or an
// explicit list of contact IDs. Exactly one must be set.
type Target struct {
	CategoryID int64
	ContactIDs []int64
}

// Report tells which requested contacts were left out of a campaign.
type Report struct {
	Queued  int
	Skipped []int64 // unknown IDs and contacts known not to be on WhatsApp
}

type Service struct {
	drafts     DraftStore
	contacts   ContactStore
	categories CategoryStore
	campaigns  CampaignStore
	log        *zap.Logger
}

func NewService(drafts DraftStore, contacts ContactStore, categories CategoryStore, campaigns CampaignStore, log *zap.Logger) *Service {
	return &Service{
		drafts:     drafts,
		contacts:   contacts,
		categories: categories,
		campaigns:  campaigns,
		log:        log.Named("campaign"),
	}
}

// Create renders the draft for every recipient and queues the campaign. The
// send worker picks it up in creation order.
func (s *Service) Create(tenant string, draftID int64, target Target) (*models.Campaign, Report, error) {
	if (target.CategoryID > 0) == (len(target.ContactIDs) > 0) {
		return nil, Report{}, fmt.Errorf("%w: choose either a category or contacts", models.ErrInvalidInput)
	}

	draft, err := s.drafts.GetByID(tenant, draftID)
	if err != nil {
		return nil, Report{}, err
	}
	if draft == nil {
		return nil, Report{}, ErrDraftNotFound
	}
	if strings.TrimSpace(draft.Content) == "" {
		return nil, Report{}, fmt.Errorf("%w: draft %q is empty", models.ErrInvalidInput, draft.Title)
	}
	if unknown := template.Unknown(draft.Content); len(unknown) > 0 {
		return nil, Report{}, fmt.Errorf("%w: draft uses unknown placeholders: %s", models.ErrInvalidInput, strings.Join(unknown, ", "))
	}

	recipients, label, err := s.recipients(tenant, target)
	if err != nil {
		return nil, Report{}, err
	}

	report := Report{}
	found := make(map[int64]bool, len(recipients))
	messages := make([]models.CampaignMessage, 0, len(recipients))
	for _, c := range recipients {
		found[c.ID] = true
		if c.OnWhatsApp != nil && !*c.OnWhatsApp {
			report.Skipped = append(report.Skipped, c.ID)
			continue
		}
		content, _ := template.Fill(draft.Content, template.ContactValues(c))
		messages = append(messages, models.CampaignMessage{
			ContactID:   c.ID,
			Phone:       c.Phone,
			ContactName: c.Name,
			Content:     content,
		})
	}
	for _, id := range target.ContactIDs {
		if !found[id] {
			report.Skipped = append(report.Skipped, id)
		}
	}
	if len(messages) == 0 {
		return nil, report, fmt.Errorf("%w: no recipient is reachable on WhatsApp", models.ErrInvalidInput)
	}

	campaign := &models.Campaign{DraftID: draft.ID, DraftTitle: draft.Title, Target: label}
	if err := s.campaigns.Create(tenant, campaign, messages); err != nil {
		return nil, report, err
	}
	report.Queued = len(messages)
	metrics.RecordCampaign(string(models.CampaignQueued))

	s.log.Info("campaign queued",
		zap.String("tenant", tenant),
		zap.Int64("campaign_id", campaign.ID),
		zap.String("draft", draft.Title),
		zap.String("target", label),
		zap.Int("messages", report.Queued),
		zap.Int("skipped", len(report.Skipped)),
	)
	return campaign, report, nil
}

func (s *Service) recipients(tenant string, target Target) ([]models.Contact, string, error) {
	if len(target.ContactIDs) > 0 {
		if len(target.ContactIDs) > api.MaxCampaignContacts {
			return nil, "", fmt.Errorf("%w: at most %d contacts per campaign", models.ErrInvalidInput, api.MaxCampaignContacts)
		}
		contacts, err := s.contacts.GetMany(tenant, target.ContactIDs)
		if err != nil {
			return nil, "", err
		}
		return contacts, fmt.Sprintf("%d selected contacts", len(target.ContactIDs)), nil
	}

	category, err := s.categories.GetByID(tenant, target.CategoryID)
	if err != nil {
		return nil, "", err
	}
	if category == nil {
		return nil, "", ErrCategoryNotFound
	}
	contacts, total, err := s.contacts.List(tenant, models.ContactFilter{CategoryID: category.ID}, 1, api.MaxCampaignContacts)
	if err != nil {
		return nil, "", err
	}
	if total > api.MaxCampaignContacts {
		return nil, "", fmt.Errorf("%w: category %q has %d contacts, at most %d per campaign",
			models.ErrInvalidInput, category.Name, total, api.MaxCampaignContacts)
	}
	return contacts, "category " + category.Name, nil
}
