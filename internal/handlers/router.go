package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the collaborators the API routes are built from.
type Deps struct {
	Contacts   ContactStore
	Categories CategoryStore
	Importer   Importer
	Drafts     DraftStore
	Campaigns  CampaignStore
	// CampaignCreator is nil when WhatsApp is disabled.
	CampaignCreator  CampaignCreator
	CampaignProgress CampaignProgress
	WhatsApp         WhatsAppLink
	QR               *QRHandler
	Verifier         TokenVerifier
	MaxPageSize      int
	Logger           *zap.Logger
}

// NewRouter builds the server's HTTP handler. Everything under /api/
// requires a bearer token.
func NewRouter(d Deps) http.Handler {
	log := d.Logger.Named("http")

	contactHandler := NewContactHandler(d.Contacts, d.Categories, d.Importer, d.MaxPageSize, d.Logger)
	categoryHandler := NewCategoryHandler(d.Categories)
	draftHandler := NewDraftHandler(d.Drafts, d.Contacts)
	campaignHandler := NewCampaignHandler(d.CampaignCreator, d.Campaigns, d.CampaignProgress, d.Logger)
	whatsappHandler := NewWhatsAppHandler(d.WhatsApp, d.Logger)
	qrHandler := d.QR
	if qrHandler == nil {
		qrHandler = NewQRHandler()
	}

	requireAuth := RequireAuth(d.Verifier, log)
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, Instrument(pattern, requireAuth(h)))
	}

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "wacrm"})
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Contacts API
	handle("/api/contacts", contactHandler.HandleContacts) // GET (filtered list)
	handle("/api/contacts/", contactHandler.HandleContact) // GET/{id}, POST bulk-update, bulk-delete, import, import/whatsapp

	// Categories API
	handle("/api/categories", categoryHandler.HandleCategories) // GET (list), POST (create)
	handle("/api/categories/", categoryHandler.HandleCategory)  // GET/{id}, PUT/{id}, DELETE/{id}

	// Drafts API
	handle("/api/drafts", draftHandler.HandleDrafts) // GET (list), POST (create)
	handle("/api/drafts/", draftHandler.HandleDraft) // GET/PUT/DELETE {id}, POST {id}/preview

	// Campaigns API
	handle("/api/campaigns", campaignHandler.HandleCampaigns) // GET (list), POST (create)
	handle("/api/campaigns/", campaignHandler.HandleCampaign) // GET/DELETE {id}, POST {id}/cancel, GET {id}/messages

	// WhatsApp API. There is one link per server; managing it needs an admin token.
	handle("/api/whatsapp/status", whatsappHandler.HandleStatus)
	handle("/api/whatsapp/connect", RequireAdmin(whatsappHandler.HandleConnect))
	handle("/api/whatsapp/disconnect", RequireAdmin(whatsappHandler.HandleDisconnect))
	handle("/api/whatsapp/qr", RequireAdmin(qrHandler.HandleGetQR))
	handle("/api/whatsapp/qr.png", RequireAdmin(qrHandler.HandleQRImage))

	return RequestID(Logging(log)(mux))
}
