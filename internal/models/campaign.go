package models

import (
	"database/sql"
	"fmt"
	"time"

	"wacrm/internal/database"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignQueued    CampaignStatus = "queued"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// MessageStatus is the delivery state of one campaign message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
	MessageCancelled MessageStatus = "cancelled"
)

// Campaign sends one draft to a fixed set of contacts, one message at a time.
type Campaign struct {
	ID          int64          `json:"id"`
	DraftID     int64          `json:"draft_id"`
	DraftTitle  string         `json:"draft_title"`
	Target      string         `json:"target"` // e.g. "category Leads" or "12 selected contacts"
	Status      CampaignStatus `json:"status"`
	TotalCount  int            `json:"total_count"`
	SentCount   int            `json:"sent_count"`
	FailedCount int            `json:"failed_count"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Finished reports whether the campaign reached a final state.
func (c Campaign) Finished() bool {
	switch c.Status {
	case CampaignCompleted, CampaignCancelled:
		return true
	}
	return false
}

// CampaignMessage is one contact's copy of a campaign, with the placeholders
// already filled in.
type CampaignMessage struct {
	ID           int64         `json:"id"`
	CampaignID   int64         `json:"campaign_id"`
	ContactID    int64         `json:"contact_id"`
	Phone        string        `json:"phone"`
	ContactName  string        `json:"contact_name"`
	Content      string        `json:"content"`
	Status       MessageStatus `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// CampaignRepository stores campaigns and their messages. Methods taking a
// tenant serve the API; the others serve the send worker, which handles
// every tenant.
type CampaignRepository struct {
	db *database.DB
}

func NewCampaignRepository(db *database.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, draft_id, draft_title, target, status, total_count, sent_count,
	failed_count, started_at, completed_at, created_at`

func scanCampaign(row rowScanner) (Campaign, error) {
	var (
		c           Campaign
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.DraftID,
		&c.DraftTitle,
		&c.Target,
		&c.Status,
		&c.TotalCount,
		&c.SentCount,
		&c.FailedCount,
		&startedAt,
		&completedAt,
		&c.CreatedAt,
	); err != nil {
		return Campaign{}, err
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	return c, nil
}

const messageColumns = `id, campaign_id, contact_id, phone, contact_name, content, status,
	error_message, sent_at, created_at`

func scanMessage(row rowScanner) (CampaignMessage, error) {
	var (
		m        CampaignMessage
		errorMsg sql.NullString
		sentAt   sql.NullTime
	)
	if err := row.Scan(
		&m.ID,
		&m.CampaignID,
		&m.ContactID,
		&m.Phone,
		&m.ContactName,
		&m.Content,
		&m.Status,
		&errorMsg,
		&sentAt,
		&m.CreatedAt,
	); err != nil {
		return CampaignMessage{}, err
	}
	if errorMsg.Valid {
		m.ErrorMessage = &errorMsg.String
	}
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	return m, nil
}

// Create queues a campaign together with all of its messages in one
// transaction. TotalCount is set from messages.
func (r *CampaignRepository) Create(tenant string, campaign *Campaign, messages []CampaignMessage) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.Exec(`
		INSERT INTO campaigns (tenant_id, draft_id, draft_title, target, status, total_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, tenant, campaign.DraftID, campaign.DraftTitle, campaign.Target, CampaignQueued, len(messages))
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO campaign_messages (campaign_id, contact_id, phone, contact_name, content, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range messages {
		if _, err := stmt.Exec(id, m.ContactID, m.Phone, m.ContactName, m.Content, MessagePending); err != nil {
			return fmt.Errorf("failed to queue message for %s: %w", m.Phone, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	campaign.ID = id
	campaign.Status = CampaignQueued
	campaign.TotalCount = len(messages)
	campaign.CreatedAt = time.Now()
	return nil
}

// GetByID returns nil when the campaign does not exist for the tenant.
func (r *CampaignRepository) GetByID(tenant string, id int64) (*Campaign, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE tenant_id = ? AND id = ?`, tenant, id)
	return optionalCampaign(row)
}

func optionalCampaign(row *sql.Row) (*Campaign, error) {
	campaign, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

// GetAll returns the tenant's campaigns, newest first.
func (r *CampaignRepository) GetAll(tenant string) ([]Campaign, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT `+campaignColumns+`
		FROM campaigns
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id DESC`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}
	return campaigns, nil
}

// Messages returns the messages of one of the tenant's campaigns in send order.
func (r *CampaignRepository) Messages(tenant string, campaignID int64) ([]CampaignMessage, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT m.id, m.campaign_id, m.contact_id, m.phone, m.contact_name, m.content,
			m.status, m.error_message, m.sent_at, m.created_at
		FROM campaign_messages m
		JOIN campaigns c ON c.id = m.campaign_id
		WHERE c.tenant_id = ? AND m.campaign_id = ?
		ORDER BY m.id ASC`, tenant, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign messages: %w", err)
	}
	defer rows.Close()

	messages := []CampaignMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign messages: %w", err)
	}
	return messages, nil
}

// Cancel stops a queued or running campaign. Messages not sent yet are
// marked cancelled. It reports false when no such campaign can be cancelled.
func (r *CampaignRepository) Cancel(tenant string, id int64) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.Exec(`
		UPDATE campaigns
		SET status = ?, completed_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ? AND status IN (?, ?)
	`, CampaignCancelled, tenant, id, CampaignQueued, CampaignRunning)
	if err != nil {
		return false, fmt.Errorf("failed to cancel campaign: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.Exec(`UPDATE campaign_messages SET status = ? WHERE campaign_id = ? AND status = ?`,
		MessageCancelled, id, MessagePending); err != nil {
		return false, fmt.Errorf("failed to cancel campaign messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// Delete removes a campaign that is not running, with its messages.
func (r *CampaignRepository) Delete(tenant string, id int64) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM campaigns WHERE tenant_id = ? AND id = ? AND status != ?`,
		tenant, id, CampaignRunning)
	if err != nil {
		return false, fmt.Errorf("failed to delete campaign: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Active returns the running campaign, if any.
func (r *CampaignRepository) Active() (*Campaign, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return optionalCampaign(r.db.Conn().QueryRow(`SELECT `+campaignColumns+`
		FROM campaigns WHERE status = ? ORDER BY started_at ASC, id ASC LIMIT 1`, CampaignRunning))
}

// NextQueued returns the oldest queued campaign of any tenant.
func (r *CampaignRepository) NextQueued() (*Campaign, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return optionalCampaign(r.db.Conn().QueryRow(`SELECT `+campaignColumns+`
		FROM campaigns WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`, CampaignQueued))
}

// Status returns the current state of a campaign.
func (r *CampaignRepository) Status(id int64) (CampaignStatus, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var status CampaignStatus
	err := r.db.Conn().QueryRow(`SELECT status FROM campaigns WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		// Deleted campaigns are as good as cancelled.
		return CampaignCancelled, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get campaign status: %w", err)
	}
	return status, nil
}

// Start moves a queued campaign to running. It reports false when the
// campaign was cancelled or started meanwhile.
func (r *CampaignRepository) Start(id int64) (bool, error) {
	return r.transition(id, CampaignQueued, CampaignRunning)
}

// Complete finishes a running campaign.
func (r *CampaignRepository) Complete(id int64) error {
	_, err := r.transition(id, CampaignRunning, CampaignCompleted)
	return err
}

func (r *CampaignRepository) transition(id int64, from, to CampaignStatus) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	timestamp := "completed_at"
	if to == CampaignRunning {
		timestamp = "started_at"
	}

	result, err := r.db.Conn().Exec(`
		UPDATE campaigns
		SET status = ?, `+timestamp+` = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to mark campaign %s: %w", to, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// NextPending returns the next unsent message of a campaign, or nil when
// none is left.
func (r *CampaignRepository) NextPending(campaignID int64) (*CampaignMessage, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	m, err := scanMessage(r.db.Conn().QueryRow(`SELECT `+messageColumns+`
		FROM campaign_messages
		WHERE campaign_id = ? AND status = ?
		ORDER BY id ASC LIMIT 1`, campaignID, MessagePending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next message: %w", err)
	}
	return &m, nil
}

func (r *CampaignRepository) MarkSending(messageID int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE campaign_messages SET status = ? WHERE id = ?`, MessageSending, messageID); err != nil {
		return fmt.Errorf("failed to mark message sending: %w", err)
	}
	return nil
}

// MarkSent records a delivered message and counts it on its campaign.
func (r *CampaignRepository) MarkSent(m *CampaignMessage) error {
	return r.finish(m, MessageSent, nil, "sent_count")
}

// MarkFailed records a failed message and counts it on its campaign.
func (r *CampaignRepository) MarkFailed(m *CampaignMessage, reason string) error {
	return r.finish(m, MessageFailed, &reason, "failed_count")
}

func (r *CampaignRepository) finish(m *CampaignMessage, status MessageStatus, reason *string, counter string) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	sentAt := "NULL"
	if status == MessageSent {
		sentAt = "CURRENT_TIMESTAMP"
	}
	if _, err := tx.Exec(`UPDATE campaign_messages SET status = ?, error_message = ?, sent_at = `+sentAt+` WHERE id = ?`,
		status, reason, m.ID); err != nil {
		return fmt.Errorf("failed to mark message %s: %w", status, err)
	}
	if _, err := tx.Exec(`UPDATE campaigns SET `+counter+` = `+counter+` + 1 WHERE id = ?`, m.CampaignID); err != nil {
		return fmt.Errorf("failed to count message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	m.Status = status
	m.ErrorMessage = reason
	return nil
}

// FailInterrupted marks messages left in sending by a crash as failed, since
// it is unknown whether they went out. It returns how many there were.
func (r *CampaignRepository) FailInterrupted(campaignID int64) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.Exec(`UPDATE campaign_messages SET status = ?, error_message = ? WHERE campaign_id = ? AND status = ?`,
		MessageFailed, "interrupted while sending", campaignID, MessageSending)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted messages: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		if _, err := tx.Exec(`UPDATE campaigns SET failed_count = failed_count + ? WHERE id = ?`, n, campaignID); err != nil {
			return 0, fmt.Errorf("failed to count interrupted messages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int(n), nil
}
