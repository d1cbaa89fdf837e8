package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wacrm/internal/models"
	"wacrm/internal/whatsapp"
)

type fakeContacts struct {
	got    []models.Contact
	tenant string
}

func (f *fakeContacts) UpsertMany(tenant string, contacts []models.Contact) (models.UpsertResult, error) {
	f.tenant = tenant
	f.got = append(f.got, contacts...)
	return models.UpsertResult{Created: len(contacts)}, nil
}

type fakeCategories struct {
	calls []string
	next  int64
}

func (f *fakeCategories) EnsureByName(tenant, name string) (*models.Category, error) {
	f.calls = append(f.calls, name)
	f.next++
	return &models.Category{ID: f.next, Name: name}, nil
}

type fakeDirectory struct {
	connected   bool
	registered  map[string]bool
	validateErr error
	contacts    []whatsapp.Contact
}

func (f *fakeDirectory) IsConnected() bool { return f.connected }

func (f *fakeDirectory) ValidatePhones(_ context.Context, phones []string) (map[string]bool, error) {
	if f.validateErr != nil {
		return nil, f.validateErr
	}
	out := make(map[string]bool)
	for _, p := range phones {
		out[p] = f.registered[p]
	}
	return out, nil
}

func (f *fakeDirectory) GetContacts(context.Context) ([]whatsapp.Contact, error) {
	return f.contacts, nil
}

func TestParseCSV(t *testing.T) {
	input := "\ufeffName;Phone Number;Group;Notes\n" +
		"Ann; +62 812 0000 001;VIP;x\n" +
		"\n" +
		"Bob;628120000002\n"

	// "Phone Number" is not an alias, so this header has no phone column.
	_, err := ParseCSV(strings.NewReader(input))
	require.Error(t, err)

	input = strings.Replace(input, "Phone Number", "phone_number", 1)
	rows, err := ParseCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, Row{Line: 2, Phone: "+62 812 0000 001", Name: "Ann", Category: "VIP"}, rows[0])
	assert.Equal(t, Row{Line: 4, Phone: "628120000002", Name: "Bob"}, rows[1])
}

func TestParseCSV_Empty(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestImportCSV(t *testing.T) {
	contacts := &fakeContacts{}
	categories := &fakeCategories{}
	dir := &fakeDirectory{connected: true, registered: map[string]bool{"6281200000001": true}}
	svc := NewService(contacts, categories, dir, zap.NewNop())

	input := "phone,name,email,category\n" +
		"+62 812 0000 0001,Ann,ann@example.com,VIP\n" +
		"6281200000001,Ann again,,\n" +
		"12,Short,,\n" +
		"6281200000002,Bob,not-an-email,\n" +
		"6281200000003,Cy,,vip\n"

	report, err := svc.ImportCSV(context.Background(), "acme", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 3, report.Skipped)
	require.Len(t, report.Errors, 3)
	assert.Contains(t, report.Errors[0], "line 3: duplicate")
	assert.Contains(t, report.Errors[1], "line 4: invalid phone")
	assert.Contains(t, report.Errors[2], "line 5: invalid email")

	assert.Equal(t, "acme", contacts.tenant)
	require.Len(t, contacts.got, 2)
	assert.Equal(t, "6281200000001", contacts.got[0].Phone)
	assert.Equal(t, models.SourceCSV, contacts.got[0].Source)
	require.NotNil(t, contacts.got[0].OnWhatsApp)
	assert.True(t, *contacts.got[0].OnWhatsApp)
	require.NotNil(t, contacts.got[1].OnWhatsApp)
	assert.False(t, *contacts.got[1].OnWhatsApp)

	// Category names are matched case-insensitively within one import.
	assert.Equal(t, []string{"VIP"}, categories.calls)
	assert.Equal(t, contacts.got[0].CategoryID, contacts.got[1].CategoryID)
}

func TestImportCSV_ValidationFailureIsNotFatal(t *testing.T) {
	contacts := &fakeContacts{}
	dir := &fakeDirectory{connected: true, validateErr: errors.New("timeout")}
	svc := NewService(contacts, &fakeCategories{}, dir, zap.NewNop())

	report, err := svc.ImportCSV(context.Background(), "acme", strings.NewReader("phone\n6281200000001\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Nil(t, contacts.got[0].OnWhatsApp)
}

func TestImportCSV_BadHeader(t *testing.T) {
	svc := NewService(&fakeContacts{}, &fakeCategories{}, nil, zap.NewNop())

	_, err := svc.ImportCSV(context.Background(), "acme", strings.NewReader("name,email\nAnn,a@b.c\n"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSyncWhatsApp(t *testing.T) {
	svc := NewService(&fakeContacts{}, &fakeCategories{}, &fakeDirectory{}, zap.NewNop())
	_, err := svc.SyncWhatsApp(context.Background(), "acme")
	assert.ErrorIs(t, err, whatsapp.ErrNotConnected)

	contacts := &fakeContacts{}
	dir := &fakeDirectory{connected: true, contacts: []whatsapp.Contact{
		{Phone: "6281200000001", Name: "Ann"},
		{Phone: "6281200000002", Name: "6281200000002"},
		{Phone: "status", Name: "broadcast"},
	}}
	svc = NewService(contacts, &fakeCategories{}, dir, zap.NewNop())

	report, err := svc.SyncWhatsApp(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, contacts.got, 2)
	assert.Equal(t, "Ann", contacts.got[0].Name)
	assert.Empty(t, contacts.got[1].Name)
	assert.Equal(t, models.SourceWhatsApp, contacts.got[1].Source)
}
