package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"wacrm/internal/api"
	"wacrm/internal/metrics"
)

// WhatsAppLink is the linked-device surface the handlers drive.
type WhatsAppLink interface {
	IsConnected() bool
	HasSession() bool
	IsConnecting() bool
	Connect() error
	ClearSession() error
}

// errWhatsAppDisabled is returned when the server runs with whatsapp.enabled=false.
var errWhatsAppDisabled = errors.New("WhatsApp is disabled on this server")

// offlineLink stands in for the client when WhatsApp is disabled.
type offlineLink struct{}

func (offlineLink) IsConnected() bool   { return false }
func (offlineLink) HasSession() bool    { return false }
func (offlineLink) IsConnecting() bool  { return false }
func (offlineLink) Connect() error      { return errWhatsAppDisabled }
func (offlineLink) ClearSession() error { return errWhatsAppDisabled }

type WhatsAppHandler struct {
	client WhatsAppLink
	log    *zap.Logger
}

func NewWhatsAppHandler(client WhatsAppLink, log *zap.Logger) *WhatsAppHandler {
	if client == nil {
		client = offlineLink{}
	}
	return &WhatsAppHandler{client: client, log: log.Named("whatsapp")}
}

func (h *WhatsAppHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	connected := h.client.IsConnected()
	hasSession := h.client.HasSession()
	connecting := h.client.IsConnecting()
	metrics.SetWhatsAppConnected(connected)

	response := api.StatusResponse{
		Connected:  connected,
		HasSession: hasSession,
		Connecting: connecting,
		Message:    "WhatsApp client connected",
	}

	if !connected {
		if connecting {
			response.Message = "WhatsApp session restoring..."
		} else if hasSession {
			response.Message = "Session exists, attempting to connect..."
		} else {
			response.Message = "No session - QR code scan required"
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *WhatsAppHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.client.IsConnected() {
		writeJSON(w, http.StatusOK, api.Response{Success: true, Message: "Already connected to WhatsApp"})
		return
	}

	if err := h.client.Connect(); err != nil {
		h.log.Error("connect failed", zap.Error(err))
		jsonError(w, fmt.Sprintf("Failed to connect: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, api.Response{
		Success: true,
		Message: "Connection initiated - fetch /api/whatsapp/qr if a scan is needed",
	})
}

// HandleDisconnect clears the WhatsApp session and disconnects the client.
// This forces a fresh QR code scan on the next connection attempt.
func (h *WhatsAppHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.client.ClearSession(); err != nil {
		h.log.Error("disconnect failed", zap.Error(err))
		jsonError(w, fmt.Sprintf("Failed to disconnect: %v", err), http.StatusInternalServerError)
		return
	}

	metrics.SetWhatsAppConnected(false)
	writeJSON(w, http.StatusOK, api.Response{
		Success: true,
		Message: "WhatsApp disconnected and session cleared",
	})
}
