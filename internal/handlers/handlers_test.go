package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wacrm/internal/api"
	"wacrm/internal/auth"
	"wacrm/internal/models"
)

type testServer struct {
	handler    http.Handler
	contacts   *fakeContacts
	categories *fakeCategories
	importer   *fakeImporter
	drafts     *fakeDrafts
	campaigns  *fakeCampaigns
	progress   *fakeProgress
	link       *fakeLink
	qr         *QRHandler
	issuer     *auth.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	issuer, err := auth.NewIssuer("handler-test-secret-value", "wacrm")
	require.NoError(t, err)

	s := &testServer{
		contacts:   newFakeContacts(),
		categories: newFakeCategories(),
		importer:   &fakeImporter{},
		drafts:     newFakeDrafts(),
		campaigns:  newFakeCampaigns(),
		progress:   &fakeProgress{},
		link:       &fakeLink{},
		qr:         NewQRHandler(),
		issuer:     issuer,
	}
	s.handler = NewRouter(Deps{
		Contacts:         s.contacts,
		Categories:       s.categories,
		Importer:         s.importer,
		Drafts:           s.drafts,
		Campaigns:        s.campaigns,
		CampaignCreator:  s.campaigns,
		CampaignProgress: s.progress,
		WhatsApp:         s.link,
		QR:               s.qr,
		Verifier:         issuer,
		MaxPageSize:      50,
		Logger:           zap.NewNop(),
	})
	return s
}

func (s *testServer) token(t *testing.T, tenant string) string {
	t.Helper()
	token, err := s.issuer.Issue(tenant, "test", time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, tenant, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	token := ""
	if tenant != "" {
		token = s.token(t, tenant)
	}
	return s.send(t, token, method, target, body)
}

// doAdmin is do with an admin token for tenant.
func (s *testServer) doAdmin(t *testing.T, tenant, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	token, err := s.issuer.IssueAdmin(tenant, "test", time.Hour)
	require.NoError(t, err)
	return s.send(t, token, method, target, body)
}

func (s *testServer) send(t *testing.T, token, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) seed(tenant string, n int) {
	for i := 1; i <= n; i++ {
		s.contacts.add(tenant, models.Contact{
			ID:    int64(i),
			Phone: fmt.Sprintf("62812%07d", i),
			Name:  fmt.Sprintf("Contact %02d", i),
		})
	}
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "", http.MethodGet, "/api/contacts", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, decode[api.Response](t, rec).Success)
}

func TestListContacts(t *testing.T) {
	s := newTestServer(t)
	s.seed("acme", 47)
	s.seed("other", 3)

	rec := s.do(t, "acme", http.MethodGet, "/api/contacts?page=2&page_size=30", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.ContactListResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Len(t, resp.Items, 17)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 47, resp.Total)
	assert.Equal(t, 2, resp.TotalPages)
	assert.Equal(t, int64(31), resp.Items[0].ID)
}

func TestListContactsFilterAndLimits(t *testing.T) {
	s := newTestServer(t)
	s.seed("acme", 12)

	rec := s.do(t, "acme", http.MethodGet, "/api/contacts?search=contact+1&page_size=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.ContactListResponse](t, rec)
	assert.Equal(t, 50, resp.PageSize)
	assert.Equal(t, 3, resp.Total) // 10, 11, 12
	assert.Equal(t, "contact 1", s.contacts.lastList.Search)

	rec = s.do(t, "acme", http.MethodGet, "/api/contacts?tag=vip", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "acme", http.MethodGet, "/api/contacts?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "acme", http.MethodGet, "/api/contacts?page=9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[api.ContactListResponse](t, rec).Items)
}

func TestGetContact(t *testing.T) {
	s := newTestServer(t)
	s.seed("acme", 2)

	rec := s.do(t, "acme", http.MethodGet, "/api/contacts/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Contact 02", decode[api.ContactResponse](t, rec).Contact.Name)

	rec = s.do(t, "other", http.MethodGet, "/api/contacts/2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "acme", http.MethodGet, "/api/contacts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkUpdate(t *testing.T) {
	s := newTestServer(t)
	s.seed("acme", 5)
	category := &models.Category{Name: "VIP"}
	require.NoError(t, s.categories.Create("acme", category))

	rec := s.do(t, "acme", http.MethodPost, "/api/contacts/bulk-update", api.BulkUpdateRequest{
		IDs:    []int64{1, 2, 2, 99},
		Fields: map[string]string{models.FieldCategoryID: fmt.Sprint(category.ID)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[api.BulkResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Requested)
	assert.Equal(t, 2, resp.Affected)
	assert.Equal(t, []int64{99}, resp.Failed)
	assert.Equal(t, "2 succeeded, 1 failed", resp.Message)

	contact, _ := s.contacts.GetByID("acme", 1)
	require.NotNil(t, contact.CategoryID)
	assert.Equal(t, category.ID, *contact.CategoryID)
}

func TestBulkUpdateRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	s.seed("acme", 2)

	tests := []struct {
		name string
		body any
	}{
		{"empty selection", api.BulkUpdateRequest{Fields: map[string]string{models.FieldCategoryID: "none"}}},
		{"unknown field", api.BulkUpdateRequest{IDs: []int64{1}, Fields: map[string]string{"name": "x"}}},
		{"missing category", api.BulkUpdateRequest{IDs: []int64{1}, Fields: map[string]string{models.FieldCategoryID: "42"}}},
		{"bad id", api.BulkUpdateRequest{IDs: []int64{-1}, Fields: map[string]string{models.FieldCategoryID: "none"}}},
		{"not json", "plain string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, "acme", http.MethodPost, "/api/contacts/bulk-update", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.False(t, decode[api.Response](t, rec).Success)
		})
	}
}

func TestBulkDelete(t *testing.T) {
	s := newTestServer(t)
	s.seed("acme", 3)

	rec := s.do(t, "acme", http.MethodPost, "/api/contacts/bulk-delete", api.BulkDeleteRequest{IDs: []int64{1, 3}})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[api.BulkResponse](t, rec)
	assert.Equal(t, 2, resp.Affected)
	assert.Empty(t, resp.Failed)
	assert.NotNil(t, resp.Failed)
	assert.Equal(t, "2 contacts deleted", resp.Message)

	_, total, _ := s.contacts.List("acme", models.ContactFilter{}, 1, 30)
	assert.Equal(t, 1, total)

	rec = s.do(t, "acme", http.MethodGet, "/api/contacts/bulk-delete", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	s.contacts.bulkErr = errors.New("database is locked")
	rec = s.do(t, "acme", http.MethodPost, "/api/contacts/bulk-delete", api.BulkDeleteRequest{IDs: []int64{2}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestImportCSV(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/contacts/import", bytes.NewBufferString("phone,name\n1,a\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+s.token(t, "acme"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[api.ImportResponse](t, rec)
	assert.Equal(t, 2, resp.Imported)
	assert.Equal(t, 1, resp.Skipped)
	assert.Len(t, resp.Errors, 1)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "contacts.csv")
	require.NoError(t, err)
	part.Write([]byte("phone\n628123456789\n"))
	require.NoError(t, mw.Close())

	req = httptest.NewRequest(http.MethodPost, "/api/contacts/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(t, "acme"))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "phone\n628123456789\n", s.importer.body)

	req = httptest.NewRequest(http.MethodPost, "/api/contacts/import", bytes.NewBufferString("name\nx\n"))
	req.Header.Set("Authorization", "Bearer "+s.token(t, "acme"))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportWhatsApp(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "acme", http.MethodPost, "/api/contacts/import/whatsapp", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "tenant tokens cannot read the shared address book")

	rec = s.doAdmin(t, "acme", http.MethodPost, "/api/contacts/import/whatsapp", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.importer.connected = true
	rec = s.doAdmin(t, "acme", http.MethodPost, "/api/contacts/import/whatsapp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decode[api.ImportResponse](t, rec).Imported)
}

func TestCategoryCRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "acme", http.MethodPost, "/api/categories", api.CategoryRequest{Name: " Leads "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.CategoryResponse](t, rec).Category
	require.NotNil(t, created)
	assert.Equal(t, "Leads", created.Name)

	rec = s.do(t, "acme", http.MethodPost, "/api/categories", api.CategoryRequest{Name: "Leads"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(t, "acme", http.MethodPost, "/api/categories", api.CategoryRequest{Name: "none"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Same name in another tenant is fine.
	rec = s.do(t, "other", http.MethodPost, "/api/categories", api.CategoryRequest{Name: "Leads"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	target := fmt.Sprintf("/api/categories/%d", created.ID)
	rec = s.do(t, "acme", http.MethodPut, target, api.CategoryRequest{Name: "Hot leads"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "acme", http.MethodGet, "/api/categories", nil)
	list := decode[api.CategoryListResponse](t, rec)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "Hot leads", list.Categories[0].Name)

	rec = s.do(t, "acme", http.MethodDelete, target, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, "acme", http.MethodGet, target, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWhatsAppEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "acme", http.MethodGet, "/api/whatsapp/status", nil)
	status := decode[api.StatusResponse](t, rec)
	assert.False(t, status.Connected)
	assert.Equal(t, "No session - QR code scan required", status.Message)

	rec = s.do(t, "acme", http.MethodPost, "/api/whatsapp/connect", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, s.link.connected)

	rec = s.doAdmin(t, "acme", http.MethodPost, "/api/whatsapp/connect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.link.connected)

	rec = s.doAdmin(t, "acme", http.MethodPost, "/api/whatsapp/disconnect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.link.cleared)

	s.link.connectErr = errors.New("dial tcp: timeout")
	rec = s.doAdmin(t, "acme", http.MethodPost, "/api/whatsapp/connect", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestQREndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "acme", http.MethodGet, "/api/whatsapp/qr", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doAdmin(t, "acme", http.MethodGet, "/api/whatsapp/qr", nil)
	assert.False(t, decode[api.QRResponse](t, rec).Available)
	rec = s.doAdmin(t, "acme", http.MethodGet, "/api/whatsapp/qr.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.qr.SetQR("2@pairing-code")
	rec = s.doAdmin(t, "acme", http.MethodGet, "/api/whatsapp/qr", nil)
	qr := decode[api.QRResponse](t, rec)
	assert.True(t, qr.Available)
	assert.Equal(t, "2@pairing-code", qr.QRCode)

	rec = s.doAdmin(t, "acme", http.MethodGet, "/api/whatsapp/qr.png", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	s.qr.ClearQR()
	rec = s.doAdmin(t, "acme", http.MethodGet, "/api/whatsapp/qr", nil)
	assert.False(t, decode[api.QRResponse](t, rec).Available)
}

func TestWhatsAppDisabled(t *testing.T) {
	h := NewWhatsAppHandler(nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/whatsapp/status", nil))
	assert.False(t, decode[api.StatusResponse](t, rec).Connected)

	rec = httptest.NewRecorder()
	h.HandleConnect(rec, httptest.NewRequest(http.MethodPost, "/api/whatsapp/connect", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")
}
