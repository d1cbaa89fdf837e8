package importer

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"wacrm/internal/metrics"
	"wacrm/internal/models"
	"wacrm/internal/whatsapp"
)

type ContactStore interface {
	UpsertMany(tenant string, contacts []models.Contact) (models.UpsertResult, error)
}

type CategoryStore interface {
	EnsureByName(tenant, name string) (*models.Category, error)
}

// Directory is the linked WhatsApp account, used to validate numbers and
// to read the address book.
type Directory interface {
	IsConnected() bool
	ValidatePhones(ctx context.Context, phones []string) (map[string]bool, error)
	GetContacts(ctx context.Context) ([]whatsapp.Contact, error)
}

// Report summarizes one import.
type Report struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

func (r *Report) skip(line int, format string, args ...any) {
	r.Skipped++
	r.Errors = append(r.Errors, fmt.Sprintf("line %d: ", line)+fmt.Sprintf(format, args...))
}

type Service struct {
	contacts   ContactStore
	categories CategoryStore
	directory  Directory
	log        *zap.Logger
}

// NewService creates an import service. directory may be nil when the
// server runs without WhatsApp.
func NewService(contacts ContactStore, categories CategoryStore, directory Directory, log *zap.Logger) *Service {
	return &Service{
		contacts:   contacts,
		categories: categories,
		directory:  directory,
		log:        log.Named("importer"),
	}
}

// ImportCSV upserts the contacts of a CSV file into tenant. Invalid rows are
// skipped and reported; a file without a usable header fails as a whole.
func (s *Service) ImportCSV(ctx context.Context, tenant string, r io.Reader) (Report, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	report := Report{Errors: []string{}}
	seen := make(map[string]int)
	categoryIDs := make(map[string]int64)
	contacts := make([]models.Contact, 0, len(rows))

	for _, row := range rows {
		phone := whatsapp.NormalizePhone(row.Phone)
		if phone == "" {
			report.skip(row.Line, "invalid phone number %q", row.Phone)
			continue
		}
		if first, dup := seen[phone]; dup {
			report.skip(row.Line, "duplicate phone number (first seen on line %d)", first)
			continue
		}
		if row.Email != "" {
			if _, err := mail.ParseAddress(row.Email); err != nil {
				report.skip(row.Line, "invalid email %q", row.Email)
				continue
			}
		}
		seen[phone] = row.Line

		contact := models.Contact{
			Phone:  phone,
			Name:   row.Name,
			Email:  row.Email,
			Source: models.SourceCSV,
		}

		if name := strings.TrimSpace(row.Category); name != "" {
			id, ok := categoryIDs[strings.ToLower(name)]
			if !ok {
				category, err := s.categories.EnsureByName(tenant, name)
				if err != nil {
					return Report{}, err
				}
				id = category.ID
				categoryIDs[strings.ToLower(name)] = id
			}
			contact.CategoryID = &id
		}

		contacts = append(contacts, contact)
	}

	s.markRegistered(ctx, contacts)

	if len(contacts) > 0 {
		result, err := s.contacts.UpsertMany(tenant, contacts)
		if err != nil {
			return Report{}, err
		}
		report.Imported = result.Created
		report.Updated = result.Updated
	}

	metrics.RecordImport(models.SourceCSV, report.Imported, report.Updated, report.Skipped)
	s.log.Info("CSV import finished",
		zap.String("tenant", tenant),
		zap.Int("imported", report.Imported),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// markRegistered fills OnWhatsApp when the linked account can check numbers.
// A failed check leaves the flags unset.
func (s *Service) markRegistered(ctx context.Context, contacts []models.Contact) {
	if s.directory == nil || !s.directory.IsConnected() || len(contacts) == 0 {
		return
	}

	phones := make([]string, len(contacts))
	for i, c := range contacts {
		phones[i] = c.Phone
	}

	registered, err := s.directory.ValidatePhones(ctx, phones)
	if err != nil {
		s.log.Warn("phone validation failed, importing without it", zap.Error(err))
		return
	}

	for i := range contacts {
		if isIn, ok := registered[contacts[i].Phone]; ok {
			contacts[i].OnWhatsApp = &isIn
		}
	}
}

// SyncWhatsApp upserts the linked account's address book into tenant.
func (s *Service) SyncWhatsApp(ctx context.Context, tenant string) (Report, error) {
	if s.directory == nil || !s.directory.IsConnected() {
		return Report{}, whatsapp.ErrNotConnected
	}

	entries, err := s.directory.GetContacts(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{Errors: []string{}}
	registered := true
	contacts := make([]models.Contact, 0, len(entries))
	for i, entry := range entries {
		phone := whatsapp.NormalizePhone(entry.Phone)
		if phone == "" {
			report.skip(i+1, "invalid phone number %q", entry.Phone)
			continue
		}
		name := entry.Name
		if name == entry.Phone {
			name = ""
		}
		contacts = append(contacts, models.Contact{
			Phone:      phone,
			Name:       name,
			OnWhatsApp: &registered,
			Source:     models.SourceWhatsApp,
		})
	}

	if len(contacts) > 0 {
		result, err := s.contacts.UpsertMany(tenant, contacts)
		if err != nil {
			return Report{}, err
		}
		report.Imported = result.Created
		report.Updated = result.Updated
	}

	metrics.RecordImport(models.SourceWhatsApp, report.Imported, report.Updated, report.Skipped)
	s.log.Info("WhatsApp sync finished",
		zap.String("tenant", tenant),
		zap.Int("imported", report.Imported),
		zap.Int("updated", report.Updated),
	)
	return report, nil
}
