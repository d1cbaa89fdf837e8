package whatsapp

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"wacrm/internal/metrics"
)

func TestConnectionEventsUpdateGauge(t *testing.T) {
	c := &Client{log: zap.NewNop()}
	cleared := 0
	c.SetQRClearHandler(func() { cleared++ })

	c.handleEvent(&events.Connected{})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WhatsAppConnected))
	assert.Equal(t, 1, cleared)
	assert.True(t, c.connectedOnce)

	c.handleEvent(&events.Disconnected{})
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WhatsAppConnected))

	c.handleEvent(&events.Connected{})
	c.handleEvent(&events.LoggedOut{})
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.WhatsAppConnected))
	assert.False(t, c.connectedOnce)
}

func TestQREventReachesHandler(t *testing.T) {
	c := &Client{log: zap.NewNop()}
	var got string
	c.SetQRHandler(func(code string) { got = code })

	c.handleEvent(&events.QR{Codes: []string{"2@first", "2@second"}})
	assert.Equal(t, "2@first", got)
	assert.True(t, c.qrReceived)
}

func TestSendTextNeedsLoggedInClient(t *testing.T) {
	c := &Client{log: zap.NewNop()}
	err := c.SendText(context.Background(), "31612345678", "hello")
	assert.ErrorIs(t, err, ErrNotConnected)
}
