package models

import (
	"database/sql"
	"fmt"
	"time"

	"wacrm/internal/database"
)

// Draft is a reusable message text with {{placeholders}}.
type Draft struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DraftRepository handles database operations for message drafts.
type DraftRepository struct {
	db *database.DB
}

func NewDraftRepository(db *database.DB) *DraftRepository {
	return &DraftRepository{db: db}
}

func (r *DraftRepository) Create(tenant string, draft *Draft) error {
	r.db.Lock()
	defer r.db.Unlock()

	query := `
		INSERT INTO message_drafts (tenant_id, title, content, created_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`

	result, err := r.db.Conn().Exec(query, tenant, draft.Title, draft.Content)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	draft.ID = id

	row := r.db.Conn().QueryRow("SELECT created_at, updated_at FROM message_drafts WHERE id = ?", id)
	if err := row.Scan(&draft.CreatedAt, &draft.UpdatedAt); err != nil {
		draft.CreatedAt = time.Now()
		draft.UpdatedAt = draft.CreatedAt
	}

	return nil
}

// GetByID returns nil when the draft does not exist for the tenant.
func (r *DraftRepository) GetByID(tenant string, id int64) (*Draft, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, title, content, created_at, updated_at
		FROM message_drafts
		WHERE tenant_id = ? AND id = ?
	`

	var draft Draft
	err := r.db.Conn().QueryRow(query, tenant, id).Scan(
		&draft.ID,
		&draft.Title,
		&draft.Content,
		&draft.CreatedAt,
		&draft.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	return &draft, nil
}

// GetAll returns the tenant's drafts, most recently edited first.
func (r *DraftRepository) GetAll(tenant string) ([]Draft, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, title, content, created_at, updated_at
		FROM message_drafts
		WHERE tenant_id = ?
		ORDER BY updated_at DESC, id DESC
	`

	rows, err := r.db.Conn().Query(query, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	drafts := []Draft{}

	for rows.Next() {
		var draft Draft
		if err := rows.Scan(
			&draft.ID,
			&draft.Title,
			&draft.Content,
			&draft.CreatedAt,
			&draft.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		drafts = append(drafts, draft)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drafts: %w", err)
	}

	return drafts, nil
}

// Update stores a new title and content. It reports false when the draft does
// not exist for the tenant.
func (r *DraftRepository) Update(tenant string, draft *Draft) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	query := `
		UPDATE message_drafts
		SET title = ?, content = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.Conn().Exec(query, draft.Title, draft.Content, tenant, draft.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update draft: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	row := r.db.Conn().QueryRow("SELECT created_at, updated_at FROM message_drafts WHERE id = ?", draft.ID)
	if err := row.Scan(&draft.CreatedAt, &draft.UpdatedAt); err != nil {
		draft.UpdatedAt = time.Now()
	}
	return true, nil
}

// Delete removes a draft. Campaigns created from it keep their own copy.
func (r *DraftRepository) Delete(tenant string, id int64) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec("DELETE FROM message_drafts WHERE tenant_id = ? AND id = ?", tenant, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete draft: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}
