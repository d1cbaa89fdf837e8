package whatsapp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"wacrm/internal/metrics"
)

// Contact is an entry of the linked account's address book.
type Contact struct {
	JID       string `json:"jid"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	PushName  string `json:"push_name"`
	FirstName string `json:"first_name"`
	FullName  string `json:"full_name"`
}

// Client owns the single linked WhatsApp device of the server.
type Client struct {
	whatsappClient *whatsmeow.Client
	container      *sqlstore.Container
	dbPath         string
	log            *zap.Logger

	mu              sync.RWMutex // protects state fields below
	clearMu         sync.Mutex   // serializes clear+delete+reinitialize sequences
	clearInProgress atomic.Bool  // prevents duplicate clearAndReinitialize goroutines
	eventHandlerID  uint32       // whatsmeow handler registration ID; 0 = not registered

	// State fields (protected by mu)
	qrHandler      func(string)
	qrClearHandler func()
	qrReceived     bool
	connectedOnce  bool
}

// NewClient opens the session store at dbPath and prepares a client for the
// first stored device, or a fresh one when nothing is linked yet.
func NewClient(dbPath string, log *zap.Logger) (*Client, error) {
	c := &Client{dbPath: dbPath, log: log.Named("whatsapp")}
	if err := c.reinitialize(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Connect() error {
	c.mu.Lock()
	client := c.whatsappClient
	if client == nil {
		c.mu.Unlock()
		return fmt.Errorf("whatsapp client not initialized")
	}
	c.qrReceived = false
	if c.eventHandlerID != 0 {
		client.RemoveEventHandler(c.eventHandlerID)
	}
	c.eventHandlerID = client.AddEventHandler(c.handleEvent)
	c.mu.Unlock()

	if err := client.Connect(); err != nil {
		return err
	}

	go c.logConnectionStatus()
	return nil
}

// ConnectIfLinked reconnects a previously linked device. It does nothing
// when no session is stored, so startup never blocks on a QR scan.
func (c *Client) ConnectIfLinked() error {
	if !c.HasSession() {
		c.log.Info("no stored session, waiting for a connect request")
		return nil
	}
	c.log.Info("restoring stored session")
	return c.Connect()
}

func (c *Client) logConnectionStatus() {
	time.Sleep(5 * time.Second)

	c.mu.RLock()
	client := c.whatsappClient
	qrReceived := c.qrReceived
	connectedOnce := c.connectedOnce
	c.mu.RUnlock()

	switch {
	case client == nil:
		c.log.Warn("client not initialized")
	case client.IsLoggedIn():
		c.log.Info("logged in successfully")
	case connectedOnce:
		c.log.Info("was connected, session may be restoring")
	case qrReceived:
		c.log.Info("QR code displayed, waiting for scan")
	case client.Store != nil && client.Store.ID != nil:
		c.log.Warn("session exists but not logged in yet; disconnect and reconnect if this persists")
	default:
		c.log.Warn("no session found and no QR code received")
	}
}

func (c *Client) reinitialize() error {
	ctx := context.Background()
	waLogger := NewLogger(c.log.Named("whatsmeow"))

	container, err := sqlstore.New(ctx, "sqlite3", "file:"+c.dbPath+"?_foreign_keys=on", waLogger.Sub("store"))
	if err != nil {
		return fmt.Errorf("failed to create database container: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return fmt.Errorf("failed to get device store: %w", err)
	}

	c.mu.Lock()
	c.whatsappClient = whatsmeow.NewClient(deviceStore, waLogger.Sub("client"))
	c.container = container
	c.eventHandlerID = 0
	c.mu.Unlock()
	return nil
}

func (c *Client) clearAndReinitialize() {
	defer c.clearInProgress.Store(false)

	if err := c.ClearSession(); err != nil {
		c.log.Error("failed to clear stale session", zap.Error(err))
		return
	}
	c.log.Info("stale session cleared, ready for a fresh QR scan")
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.QR:
		if len(v.Codes) > 0 {
			c.mu.Lock()
			c.qrReceived = true
			handler := c.qrHandler
			c.mu.Unlock()
			if handler != nil {
				handler(v.Codes[0])
			}
		}

	case *events.Connected:
		c.log.Info("connected")
		metrics.SetWhatsAppConnected(true)
		c.mu.Lock()
		c.connectedOnce = true
		handler := c.qrClearHandler
		c.mu.Unlock()
		if handler != nil {
			handler()
		}

	case *events.LoggedOut:
		c.log.Warn("logged out", zap.Bool("on_connect", v.OnConnect), zap.String("reason", v.Reason.String()))
		metrics.SetWhatsAppConnected(false)
		c.mu.Lock()
		c.connectedOnce = false
		c.mu.Unlock()
		// OnConnect=true means the session was invalidated from the phone side
		if v.OnConnect && c.clearInProgress.CompareAndSwap(false, true) {
			c.log.Info("session was invalidated externally, clearing stale session data")
			go c.clearAndReinitialize()
		}

	case *events.Disconnected:
		c.log.Info("disconnected")
		metrics.SetWhatsAppConnected(false)

	case *events.ClientOutdated:
		c.log.Error("client outdated, update go.mau.fi/whatsmeow")
	}
}

func (c *Client) SetQRHandler(handler func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qrHandler = handler
}

func (c *Client) SetQRClearHandler(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qrClearHandler = handler
}

// Disconnect closes the websocket and releases the session database file lock.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.whatsappClient != nil {
		c.whatsappClient.Disconnect()
	}
	if c.container != nil {
		c.container.Close()
		c.container = nil
	}
}

// ClearSession removes the stored session and reinitializes the client for a fresh QR scan.
func (c *Client) ClearSession() error {
	c.clearMu.Lock()
	defer c.clearMu.Unlock()

	c.log.Info("clearing session")
	c.Disconnect()

	c.mu.Lock()
	c.connectedOnce = false
	c.qrReceived = false
	c.mu.Unlock()
	metrics.SetWhatsAppConnected(false)

	if err := os.Remove(c.dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	if err := c.reinitialize(); err != nil {
		c.mu.Lock()
		c.whatsappClient = nil
		c.container = nil
		c.mu.Unlock()
		return fmt.Errorf("session cleared but failed to reinitialize: %w", err)
	}

	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	client := c.whatsappClient
	c.mu.RUnlock()
	if client == nil {
		return false
	}
	return client.IsConnected() && client.IsLoggedIn()
}

func (c *Client) HasSession() bool {
	c.mu.RLock()
	client := c.whatsappClient
	c.mu.RUnlock()
	if client == nil || client.Store == nil {
		return false
	}
	return client.Store.ID != nil
}

// IsConnecting returns true if websocket is connected but not yet authenticated (session restoring).
func (c *Client) IsConnecting() bool {
	c.mu.RLock()
	client := c.whatsappClient
	c.mu.RUnlock()
	if client == nil {
		return false
	}
	return client.IsConnected() && !client.IsLoggedIn()
}

func (c *Client) loggedIn() (*whatsmeow.Client, error) {
	c.mu.RLock()
	client := c.whatsappClient
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() || !client.IsLoggedIn() {
		return nil, ErrNotConnected
	}
	return client, nil
}

// GetContacts returns the address book of the linked account.
func (c *Client) GetContacts(ctx context.Context) ([]Contact, error) {
	client, err := c.loggedIn()
	if err != nil {
		return nil, err
	}

	contacts, err := client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}

	result := make([]Contact, 0, len(contacts))
	for jid, info := range contacts {
		if jid.Server != "s.whatsapp.net" {
			continue
		}
		phone := jid.User
		name := info.FullName
		if name == "" && info.FirstName != "" {
			name = info.FirstName
		}
		if name == "" && info.PushName != "" {
			name = info.PushName
		}
		if name == "" {
			name = phone
		}

		result = append(result, Contact{
			JID:       jid.String(),
			Phone:     phone,
			Name:      name,
			PushName:  info.PushName,
			FirstName: info.FirstName,
			FullName:  info.FullName,
		})
	}

	return result, nil
}

// ValidatePhones reports, per digits-only phone number, whether it is
// registered on WhatsApp.
func (c *Client) ValidatePhones(ctx context.Context, phones []string) (map[string]bool, error) {
	client, err := c.loggedIn()
	if err != nil {
		return nil, err
	}

	if len(phones) == 0 {
		return map[string]bool{}, nil
	}

	queries := make([]string, len(phones))
	for i, phone := range phones {
		queries[i] = "+" + phone
	}

	responses, err := client.IsOnWhatsApp(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to validate phones: %w", err)
	}

	result := make(map[string]bool, len(responses))
	for _, resp := range responses {
		result[strings.TrimPrefix(resp.Query, "+")] = resp.IsIn
	}

	return result, nil
}

// SendText sends a plain text message to a phone number.
func (c *Client) SendText(ctx context.Context, phone, text string) error {
	client, err := c.loggedIn()
	if err != nil {
		return err
	}

	number := NormalizePhone(phone)
	if number == "" {
		return fmt.Errorf("invalid phone number %q", phone)
	}
	jid := types.NewJID(number, types.DefaultUserServer)

	resp, err := client.SendMessage(ctx, jid, &waE2E.Message{Conversation: &text})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.log.Debug("message sent", zap.String("to", jid.String()), zap.String("message_id", resp.ID))
	return nil
}
