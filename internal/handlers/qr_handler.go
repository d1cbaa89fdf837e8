package handlers

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/skip2/go-qrcode"

	"wacrm/internal/api"
)

// QRHandler keeps the latest pairing code pushed by the WhatsApp client.
type QRHandler struct {
	mu        sync.RWMutex
	currentQR string
}

func NewQRHandler() *QRHandler {
	return &QRHandler{}
}

func (h *QRHandler) current() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentQR
}

func (h *QRHandler) HandleGetQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := h.current()
	if code == "" {
		writeJSON(w, http.StatusOK, api.QRResponse{
			Available: false,
			Message:   "No QR code available. Try connecting to WhatsApp first.",
		})
		return
	}

	writeJSON(w, http.StatusOK, api.QRResponse{
		QRCode:    code,
		Available: true,
		Message:   "QR code ready for scanning",
	})
}

func (h *QRHandler) SetQR(qrCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentQR = qrCode
}

func (h *QRHandler) ClearQR() {
	h.SetQR("")
}

func (h *QRHandler) HandleQRImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := h.current()
	if code == "" {
		http.Error(w, "No QR code available. Try connecting to WhatsApp first.", http.StatusNotFound)
		return
	}

	qrBytes, err := qrcode.Encode(code, qrcode.Medium, 512)
	if err != nil {
		http.Error(w, "Failed to generate QR code image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(qrBytes)))
	w.Write(qrBytes)
}
