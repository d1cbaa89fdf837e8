package handlers

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"

	"wacrm/internal/campaign"
	"wacrm/internal/importer"
	"wacrm/internal/models"
	"wacrm/internal/whatsapp"
)

type fakeContacts struct {
	mu       sync.Mutex
	byTenant map[string][]models.Contact
	lastList models.ContactFilter
	bulkErr  error
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{byTenant: make(map[string][]models.Contact)}
}

func (f *fakeContacts) add(tenant string, c models.Contact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byTenant[tenant] = append(f.byTenant[tenant], c)
}

func (f *fakeContacts) List(tenant string, filter models.ContactFilter, page, pageSize int) ([]models.Contact, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = filter

	var matched []models.Contact
	for _, c := range f.byTenant[tenant] {
		if filter.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, c)
	}

	items := []models.Contact{}
	start := (page - 1) * pageSize
	if start < len(matched) {
		items = append(items, matched[start:min(start+pageSize, len(matched))]...)
	}
	return items, len(matched), nil
}

func (f *fakeContacts) GetByID(tenant string, id int64) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byTenant[tenant] {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeContacts) apply(tenant string, ids []int64, fn func(i int) bool) (models.BulkResult, error) {
	if f.bulkErr != nil {
		return models.BulkResult{}, f.bulkErr
	}
	var result models.BulkResult
	for _, id := range ids {
		i := slices.IndexFunc(f.byTenant[tenant], func(c models.Contact) bool { return c.ID == id })
		if i < 0 || !fn(i) {
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Affected++
	}
	return result, nil
}

func (f *fakeContacts) BulkUpdate(tenant string, ids []int64, fields models.ContactFields) (models.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apply(tenant, ids, func(i int) bool {
		f.byTenant[tenant][i].CategoryID = fields.CategoryID
		return true
	})
}

func (f *fakeContacts) BulkDelete(tenant string, ids []int64) (models.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, err := f.apply(tenant, ids, func(int) bool { return true })
	if err == nil {
		f.byTenant[tenant] = slices.DeleteFunc(f.byTenant[tenant], func(c models.Contact) bool {
			return slices.Contains(ids, c.ID)
		})
	}
	return result, err
}

type fakeCategories struct {
	mu       sync.Mutex
	byTenant map[string][]models.Category
	nextID   int64
}

func newFakeCategories() *fakeCategories {
	return &fakeCategories{byTenant: make(map[string][]models.Category)}
}

func (f *fakeCategories) Create(tenant string, category *models.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	category.ID = f.nextID
	f.byTenant[tenant] = append(f.byTenant[tenant], *category)
	return nil
}

func (f *fakeCategories) find(tenant string, match func(models.Category) bool) *models.Category {
	for _, c := range f.byTenant[tenant] {
		if match(c) {
			return &c
		}
	}
	return nil
}

func (f *fakeCategories) GetByID(tenant string, id int64) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(tenant, func(c models.Category) bool { return c.ID == id }), nil
}

func (f *fakeCategories) GetByName(tenant, name string) (*models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.find(tenant, func(c models.Category) bool { return c.Name == name }), nil
}

func (f *fakeCategories) GetAll(tenant string) ([]models.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Category{}, f.byTenant[tenant]...), nil
}

func (f *fakeCategories) Rename(tenant string, category *models.Category) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.byTenant[tenant] {
		if c.ID == category.ID {
			f.byTenant[tenant][i].Name = category.Name
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCategories) Delete(tenant string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := len(f.byTenant[tenant])
	f.byTenant[tenant] = slices.DeleteFunc(f.byTenant[tenant], func(c models.Category) bool { return c.ID == id })
	return len(f.byTenant[tenant]) < before, nil
}

type fakeImporter struct {
	body      string
	connected bool
}

func (f *fakeImporter) ImportCSV(_ context.Context, _ string, r io.Reader) (importer.Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return importer.Report{}, err
	}
	f.body = string(data)
	if !strings.HasPrefix(f.body, "phone") {
		return importer.Report{}, errors.Join(models.ErrInvalidInput, errors.New("CSV header has no phone column"))
	}
	return importer.Report{Imported: 2, Skipped: 1, Errors: []string{"line 3: invalid phone number \"x\""}}, nil
}

func (f *fakeImporter) SyncWhatsApp(context.Context, string) (importer.Report, error) {
	if !f.connected {
		return importer.Report{}, whatsapp.ErrNotConnected
	}
	return importer.Report{Imported: 4, Errors: []string{}}, nil
}

type fakeLink struct {
	connected  bool
	session    bool
	connectErr error
	cleared    bool
}

func (f *fakeLink) IsConnected() bool  { return f.connected }
func (f *fakeLink) HasSession() bool   { return f.session }
func (f *fakeLink) IsConnecting() bool { return false }

func (f *fakeLink) Connect() error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeLink) ClearSession() error {
	f.cleared = true
	f.connected = false
	f.session = false
	return nil
}

type fakeDrafts struct {
	mu       sync.Mutex
	byTenant map[string][]models.Draft
	nextID   int64
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{byTenant: make(map[string][]models.Draft)}
}

func (f *fakeDrafts) Create(tenant string, draft *models.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	draft.ID = f.nextID
	f.byTenant[tenant] = append(f.byTenant[tenant], *draft)
	return nil
}

func (f *fakeDrafts) GetByID(tenant string, id int64) (*models.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.byTenant[tenant] {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, nil
}

func (f *fakeDrafts) GetAll(tenant string) ([]models.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Draft{}, f.byTenant[tenant]...), nil
}

func (f *fakeDrafts) Update(tenant string, draft *models.Draft) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.byTenant[tenant] {
		if d.ID == draft.ID {
			f.byTenant[tenant][i] = *draft
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDrafts) Delete(tenant string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := len(f.byTenant[tenant])
	f.byTenant[tenant] = slices.DeleteFunc(f.byTenant[tenant], func(d models.Draft) bool { return d.ID == id })
	return len(f.byTenant[tenant]) < before, nil
}

// fakeCampaigns is both the campaign store and the creator. Created
// campaigns skip the contact IDs listed in skip.
type fakeCampaigns struct {
	mu        sync.Mutex
	byTenant  map[string][]models.Campaign
	messages  map[int64][]models.CampaignMessage
	lastDraft int64
	target    campaign.Target
	skip      map[int64]bool
	createErr error
}

func newFakeCampaigns() *fakeCampaigns {
	return &fakeCampaigns{
		byTenant: make(map[string][]models.Campaign),
		messages: make(map[int64][]models.CampaignMessage),
		skip:     make(map[int64]bool),
	}
}

func (f *fakeCampaigns) Create(tenant string, draftID int64, target campaign.Target) (*models.Campaign, campaign.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDraft, f.target = draftID, target
	if f.createErr != nil {
		return nil, campaign.Report{}, f.createErr
	}

	var report campaign.Report
	for _, id := range target.ContactIDs {
		if f.skip[id] {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		report.Queued++
	}
	c := models.Campaign{
		ID:         int64(len(f.byTenant[tenant]) + 1),
		DraftID:    draftID,
		Status:     models.CampaignQueued,
		TotalCount: report.Queued,
	}
	f.byTenant[tenant] = append(f.byTenant[tenant], c)
	return &c, report, nil
}

func (f *fakeCampaigns) find(tenant string, id int64) int {
	return slices.IndexFunc(f.byTenant[tenant], func(c models.Campaign) bool { return c.ID == id })
}

func (f *fakeCampaigns) GetByID(tenant string, id int64) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.find(tenant, id); i >= 0 {
		c := f.byTenant[tenant][i]
		return &c, nil
	}
	return nil, nil
}

func (f *fakeCampaigns) GetAll(tenant string) ([]models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Campaign{}, f.byTenant[tenant]...), nil
}

func (f *fakeCampaigns) Messages(tenant string, id int64) ([]models.CampaignMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(tenant, id) < 0 {
		return []models.CampaignMessage{}, nil
	}
	return append([]models.CampaignMessage{}, f.messages[id]...), nil
}

func (f *fakeCampaigns) Cancel(tenant string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(tenant, id)
	if i < 0 || f.byTenant[tenant][i].Finished() {
		return false, nil
	}
	f.byTenant[tenant][i].Status = models.CampaignCancelled
	return true, nil
}

func (f *fakeCampaigns) Delete(tenant string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(tenant, id)
	if i < 0 || f.byTenant[tenant][i].Status == models.CampaignRunning {
		return false, nil
	}
	f.byTenant[tenant] = slices.Delete(f.byTenant[tenant], i, i+1)
	return true, nil
}

type fakeProgress struct {
	progress campaign.Progress
	active   bool
}

func (f *fakeProgress) Progress() (campaign.Progress, bool) { return f.progress, f.active }
