package models

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wacrm/internal/database"
)

func newMockRepo(t *testing.T) (*ContactRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewContactRepository(database.Wrap(conn)), mock
}

var contactRowColumns = []string{
	"id", "phone", "name", "email", "category_id", "category_name",
	"on_whatsapp", "source", "created_at", "updated_at",
}

func TestParseContactFilter(t *testing.T) {
	f, err := ParseContactFilter(map[string]string{
		FilterSearch:     " ann ",
		FilterCategory:   "4",
		FilterOnWhatsApp: "true",
		FilterSource:     "",
	})
	require.NoError(t, err)
	assert.Equal(t, "ann", f.Search)
	assert.Equal(t, int64(4), f.CategoryID)
	require.NotNil(t, f.OnWhatsApp)
	assert.True(t, *f.OnWhatsApp)
	assert.Empty(t, f.Source)

	f, err = ParseContactFilter(map[string]string{FilterCategory: CategoryNone})
	require.NoError(t, err)
	assert.True(t, f.Uncategorized)

	for _, bad := range []map[string]string{
		{"tag": "x"},
		{FilterCategory: "abc"},
		{FilterCategory: "-2"},
		{FilterOnWhatsApp: "maybe"},
	} {
		_, err := ParseContactFilter(bad)
		assert.True(t, errors.Is(err, ErrInvalidInput), "%v", bad)
	}
}

func TestParseContactFields(t *testing.T) {
	fields, err := ParseContactFields(map[string]string{FieldCategoryID: "7"})
	require.NoError(t, err)
	assert.True(t, fields.SetCategory)
	require.NotNil(t, fields.CategoryID)
	assert.Equal(t, int64(7), *fields.CategoryID)

	fields, err = ParseContactFields(map[string]string{FieldCategoryID: CategoryNone})
	require.NoError(t, err)
	assert.True(t, fields.SetCategory)
	assert.Nil(t, fields.CategoryID)

	_, err = ParseContactFields(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = ParseContactFields(map[string]string{"name": "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}

func TestContactRepository_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contacts c WHERE c.tenant_id = \? AND \(c.name LIKE`).
		WithArgs("acme", "%ann%", "%ann%", "%ann%", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`FROM contacts c\s+LEFT JOIN categories g ON g.id = c.category_id\s+WHERE c.tenant_id = \?`).
		WithArgs("acme", "%ann%", "%ann%", "%ann%", int64(3), 5, 5).
		WillReturnRows(sqlmock.NewRows(contactRowColumns).
			AddRow(int64(6), "628111", "Ann", "", int64(3), "VIP", true, "csv", now, now).
			AddRow(int64(9), "628222", "Annie", "a@x.io", nil, "", nil, "manual", now, now))

	contacts, total, err := repo.List("acme", ContactFilter{Search: "ann", CategoryID: 3}, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, contacts, 2)

	assert.Equal(t, "6", contacts[0].RecordID())
	require.NotNil(t, contacts[0].CategoryID)
	assert.Equal(t, int64(3), *contacts[0].CategoryID)
	assert.Equal(t, "VIP", contacts[0].CategoryName)
	require.NotNil(t, contacts[0].OnWhatsApp)
	assert.True(t, *contacts[0].OnWhatsApp)

	assert.Nil(t, contacts[1].CategoryID)
	assert.Nil(t, contacts[1].OnWhatsApp)
	assert.Equal(t, "628222@s.whatsapp.net", contacts[1].JID())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_ListUncategorized(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contacts c WHERE c.tenant_id = \? AND c.category_id IS NULL`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`c.category_id IS NULL`).
		WithArgs("acme", 30, 0).
		WillReturnRows(sqlmock.NewRows(contactRowColumns))

	contacts, total, err := repo.List("acme", ContactFilter{Uncategorized: true}, 1, 30)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, contacts)
	assert.Empty(t, contacts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_ListPastLastPageSkipsQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM contacts c WHERE c.tenant_id = \?`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(40))

	contacts, total, err := repo.List("acme", ContactFilter{}, math.MaxInt, 30)
	require.NoError(t, err)
	assert.Equal(t, 40, total)
	assert.Empty(t, contacts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_BulkUpdateReportsMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	category := int64(4)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`UPDATE contacts`)
	prep.ExpectExec().WithArgs(int64(4), "acme", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(int64(4), "acme", int64(2)).WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WithArgs(int64(4), "acme", int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.BulkUpdate("acme", []int64{1, 2, 3}, ContactFields{SetCategory: true, CategoryID: &category})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Affected)
	assert.Equal(t, []int64{2}, result.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_BulkDeleteRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`DELETE FROM contacts`)
	prep.ExpectExec().WithArgs("acme", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("acme", int64(2)).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err := repo.BulkDelete("acme", []int64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepository_UpsertMany(t *testing.T) {
	repo, mock := newMockRepo(t)
	yes := true

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM contacts WHERE tenant_id = \? AND phone = \?`).
		WithArgs("acme", "628111").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO contacts`).
		WithArgs("acme", "628111", "Ann", "", nil, true, SourceCSV).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT id FROM contacts WHERE tenant_id = \? AND phone = \?`).
		WithArgs("acme", "628222").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectExec(`UPDATE contacts`).
		WithArgs("Bob", "", nil, nil, int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.UpsertMany("acme", []Contact{
		{Phone: "628111", Name: "Ann", OnWhatsApp: &yes, Source: SourceCSV},
		{Phone: "628222", Name: "Bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Created: 1, Updated: 1}, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
