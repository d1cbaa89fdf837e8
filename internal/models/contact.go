package models

import (
	"cmp"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"wacrm/internal/database"
)

// ErrInvalidInput marks filter and field values a client sent wrongly.
var ErrInvalidInput = errors.New("invalid input")

// Filter keys understood by ParseContactFilter.
const (
	FilterSearch     = "search"
	FilterCategory   = "category"
	FilterOnWhatsApp = "on_whatsapp"
	FilterSource     = "source"

	// CategoryNone selects, or assigns, no category.
	CategoryNone = "none"

	FieldCategoryID = "category_id"
	// FieldDraftID names the draft a send action delivers.
	FieldDraftID = "draft_id"
)

// Contact sources.
const (
	SourceManual   = "manual"
	SourceCSV      = "csv"
	SourceWhatsApp = "whatsapp"
)

type Contact struct {
	ID           int64     `json:"id"`
	Phone        string    `json:"phone"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	CategoryID   *int64    `json:"category_id,omitempty"`
	CategoryName string    `json:"category_name,omitempty"` // Populated by the JOIN with categories
	OnWhatsApp   *bool     `json:"on_whatsapp,omitempty"`   // nil until the number was checked
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c Contact) RecordID() string {
	return strconv.FormatInt(c.ID, 10)
}

// JID returns the WhatsApp user JID for the contact's phone number.
func (c Contact) JID() string {
	return c.Phone + "@s.whatsapp.net"
}

// ContactFilter narrows a contact listing. Zero values mean no constraint.
type ContactFilter struct {
	Search        string
	CategoryID    int64
	Uncategorized bool
	OnWhatsApp    *bool
	Source        string
}

// ParseContactFilter converts filter key/value pairs into a ContactFilter.
// Empty values are ignored; unknown keys are rejected.
func ParseContactFilter(values map[string]string) (ContactFilter, error) {
	var f ContactFilter
	for key, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		switch key {
		case FilterSearch:
			f.Search = value
		case FilterCategory:
			if value == CategoryNone {
				f.Uncategorized = true
				continue
			}
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil || id <= 0 {
				return ContactFilter{}, fmt.Errorf("%w: category must be an ID or %q", ErrInvalidInput, CategoryNone)
			}
			f.CategoryID = id
		case FilterOnWhatsApp:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return ContactFilter{}, fmt.Errorf("%w: on_whatsapp must be true or false", ErrInvalidInput)
			}
			f.OnWhatsApp = &b
		case FilterSource:
			f.Source = value
		default:
			return ContactFilter{}, fmt.Errorf("%w: unknown filter %q", ErrInvalidInput, key)
		}
	}
	return f, nil
}

func (f ContactFilter) where(tenant string) (string, []any) {
	clauses := []string{"c.tenant_id = ?"}
	args := []any{tenant}

	if f.Search != "" {
		like := "%" + escapeLike(f.Search) + "%"
		clauses = append(clauses, `(c.name LIKE ? ESCAPE '\' OR c.phone LIKE ? ESCAPE '\' OR c.email LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if f.Uncategorized {
		clauses = append(clauses, "c.category_id IS NULL")
	} else if f.CategoryID > 0 {
		clauses = append(clauses, "c.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.OnWhatsApp != nil {
		clauses = append(clauses, "c.on_whatsapp = ?")
		args = append(args, *f.OnWhatsApp)
	}
	if f.Source != "" {
		clauses = append(clauses, "c.source = ?")
		args = append(args, f.Source)
	}

	return strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// ContactFields are the fields a bulk update may change.
type ContactFields struct {
	SetCategory bool
	CategoryID  *int64 // nil with SetCategory clears the category
}

// ParseContactFields converts bulk update fields. Only category_id is
// supported; "" or "none" clears the category.
func ParseContactFields(values map[string]string) (ContactFields, error) {
	var fields ContactFields
	for key, raw := range values {
		value := strings.TrimSpace(raw)
		switch key {
		case FieldCategoryID:
			fields.SetCategory = true
			if value == "" || value == CategoryNone {
				continue
			}
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil || id <= 0 {
				return ContactFields{}, fmt.Errorf("%w: category_id must be an ID or %q", ErrInvalidInput, CategoryNone)
			}
			fields.CategoryID = &id
		default:
			return ContactFields{}, fmt.Errorf("%w: field %q cannot be bulk updated", ErrInvalidInput, key)
		}
	}
	if !fields.SetCategory {
		return ContactFields{}, fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	return fields, nil
}

// BulkResult reports which of the requested contacts a bulk action touched.
type BulkResult struct {
	Affected int
	Failed   []int64
}

// UpsertResult counts the outcome of UpsertMany.
type UpsertResult struct {
	Created int
	Updated int
}

// ContactRepository handles database operations for tenant contacts.
type ContactRepository struct {
	db *database.DB
}

func NewContactRepository(db *database.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `
	c.id, c.phone, c.name, c.email, c.category_id, COALESCE(g.name, ''),
	c.on_whatsapp, c.source, c.created_at, c.updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (Contact, error) {
	var (
		contact    Contact
		categoryID sql.NullInt64
		onWhatsApp sql.NullBool
	)
	if err := row.Scan(
		&contact.ID,
		&contact.Phone,
		&contact.Name,
		&contact.Email,
		&categoryID,
		&contact.CategoryName,
		&onWhatsApp,
		&contact.Source,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	); err != nil {
		return Contact{}, err
	}
	if categoryID.Valid {
		id := categoryID.Int64
		contact.CategoryID = &id
	}
	if onWhatsApp.Valid {
		b := onWhatsApp.Bool
		contact.OnWhatsApp = &b
	}
	return contact, nil
}

// List returns one page of contacts matching the filter, ordered by name,
// together with the total number of matches.
func (r *ContactRepository) List(tenant string, filter ContactFilter, page, pageSize int) ([]Contact, int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := filter.where(tenant)

	var total int
	if err := r.db.Conn().QueryRow("SELECT COUNT(*) FROM contacts c WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	// Past the last page. Checked before computing the offset so a huge page
	// number cannot overflow it.
	if page < 1 || pageSize < 1 || page-1 > total/pageSize {
		return []Contact{}, total, nil
	}

	query := `SELECT ` + contactColumns + `
		FROM contacts c
		LEFT JOIN categories g ON g.id = c.category_id
		WHERE ` + where + `
		ORDER BY c.name COLLATE NOCASE ASC, c.id ASC
		LIMIT ? OFFSET ?`

	rows, err := r.db.Conn().Query(query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	contacts := []Contact{}

	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, total, nil
}

// GetByID retrieves a single contact. It returns nil when the contact does
// not exist for the tenant.
func (r *ContactRepository) GetByID(tenant string, id int64) (*Contact, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT ` + contactColumns + `
		FROM contacts c
		LEFT JOIN categories g ON g.id = c.category_id
		WHERE c.tenant_id = ? AND c.id = ?`

	contact, err := scanContact(r.db.Conn().QueryRow(query, tenant, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}

	return &contact, nil
}

// GetMany returns the tenant's contacts among ids, ordered by id. IDs that do
// not exist for the tenant are skipped.
func (r *ContactRepository) GetMany(tenant string, ids []int64) ([]Contact, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	contacts := []Contact{}
	for chunk := range slices.Chunk(ids, 500) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, tenant)
		for _, id := range chunk {
			args = append(args, id)
		}
		query := `SELECT ` + contactColumns + `
			FROM contacts c
			LEFT JOIN categories g ON g.id = c.category_id
			WHERE c.tenant_id = ? AND c.id IN (?` + strings.Repeat(", ?", len(chunk)-1) + `)`

		rows, err := r.db.Conn().Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query contacts: %w", err)
		}
		for rows.Next() {
			contact, err := scanContact(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan contact: %w", err)
			}
			contacts = append(contacts, contact)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating contacts: %w", err)
		}
	}

	slices.SortFunc(contacts, func(a, b Contact) int { return cmp.Compare(a.ID, b.ID) })
	return contacts, nil
}

// BulkUpdate applies fields to every contact in ids in a single transaction.
// IDs that do not exist for the tenant are reported as failed.
func (r *ContactRepository) BulkUpdate(tenant string, ids []int64, fields ContactFields) (BulkResult, error) {
	query := `
		UPDATE contacts
		SET category_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?
	`

	var category any
	if fields.CategoryID != nil {
		category = *fields.CategoryID
	}

	return r.bulk(query, ids, func(id int64) []any {
		return []any{category, tenant, id}
	})
}

// BulkDelete removes every contact in ids in a single transaction.
// IDs that do not exist for the tenant are reported as failed.
func (r *ContactRepository) BulkDelete(tenant string, ids []int64) (BulkResult, error) {
	return r.bulk("DELETE FROM contacts WHERE tenant_id = ? AND id = ?", ids, func(id int64) []any {
		return []any{tenant, id}
	})
}

func (r *ContactRepository) bulk(query string, ids []int64, args func(id int64) []any) (BulkResult, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.Prepare(query)
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var result BulkResult
	for _, id := range ids {
		res, err := stmt.Exec(args(id)...)
		if err != nil {
			return BulkResult{}, fmt.Errorf("failed to apply to contact %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return BulkResult{}, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Affected++
	}

	if err := tx.Commit(); err != nil {
		return BulkResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}

// UpsertMany inserts contacts or updates existing ones matched by phone
// number, in one transaction. Empty name/email and nil category/on_whatsapp
// leave the stored value unchanged.
func (r *ContactRepository) UpsertMany(tenant string, contacts []Contact) (UpsertResult, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var result UpsertResult
	for _, c := range contacts {
		var category, onWhatsApp any
		if c.CategoryID != nil {
			category = *c.CategoryID
		}
		if c.OnWhatsApp != nil {
			onWhatsApp = *c.OnWhatsApp
		}
		source := c.Source
		if source == "" {
			source = SourceManual
		}

		var id int64
		err := tx.QueryRow("SELECT id FROM contacts WHERE tenant_id = ? AND phone = ?", tenant, c.Phone).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.Exec(`
				INSERT INTO contacts (tenant_id, phone, name, email, category_id, on_whatsapp, source, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			`, tenant, c.Phone, c.Name, c.Email, category, onWhatsApp, source)
			if err != nil {
				return UpsertResult{}, fmt.Errorf("failed to insert contact %s: %w", c.Phone, err)
			}
			result.Created++
		case err != nil:
			return UpsertResult{}, fmt.Errorf("failed to look up contact %s: %w", c.Phone, err)
		default:
			_, err = tx.Exec(`
				UPDATE contacts
				SET name = COALESCE(NULLIF(?, ''), name),
					email = COALESCE(NULLIF(?, ''), email),
					category_id = COALESCE(?, category_id),
					on_whatsapp = COALESCE(?, on_whatsapp),
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?
			`, c.Name, c.Email, category, onWhatsApp, id)
			if err != nil {
				return UpsertResult{}, fmt.Errorf("failed to update contact %s: %w", c.Phone, err)
			}
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
