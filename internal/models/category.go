package models

import (
	"database/sql"
	"fmt"
	"time"

	"wacrm/internal/database"
)

type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ContactCount int       `json:"contact_count"` // Populated by queries that JOIN with contacts
}

// CategoryRepository handles all database operations for contact categories.
// Every query is scoped to one tenant.
type CategoryRepository struct {
	db *database.DB
}

func NewCategoryRepository(db *database.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a new category and fills in its ID and timestamps.
func (r *CategoryRepository) Create(tenant string, category *Category) error {
	r.db.Lock()
	defer r.db.Unlock()

	return r.create(r.db.Conn(), tenant, category)
}

type execQuerier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (r *CategoryRepository) create(q execQuerier, tenant string, category *Category) error {
	query := `
		INSERT INTO categories (tenant_id, name, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`

	result, err := q.Exec(query, tenant, category.Name)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}

	category.ID = id

	row := q.QueryRow("SELECT created_at, updated_at FROM categories WHERE id = ?", id)
	if err := row.Scan(&category.CreatedAt, &category.UpdatedAt); err != nil {
		category.CreatedAt = time.Now()
		category.UpdatedAt = category.CreatedAt
	}

	return nil
}

// GetByID retrieves a single category with its contact count. It returns
// nil when the category does not exist for the tenant.
func (r *CategoryRepository) GetByID(tenant string, id int64) (*Category, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT g.id, g.name, g.created_at, g.updated_at, COUNT(c.id) AS contact_count
		FROM categories g
		LEFT JOIN contacts c ON c.category_id = g.id
		WHERE g.tenant_id = ? AND g.id = ?
		GROUP BY g.id
	`

	var category Category
	err := r.db.Conn().QueryRow(query, tenant, id).Scan(
		&category.ID,
		&category.Name,
		&category.CreatedAt,
		&category.UpdatedAt,
		&category.ContactCount,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	return &category, nil
}

// GetByName retrieves a category by its name (for uniqueness checks).
func (r *CategoryRepository) GetByName(tenant, name string) (*Category, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	return r.getByName(r.db.Conn(), tenant, name)
}

func (r *CategoryRepository) getByName(q execQuerier, tenant, name string) (*Category, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM categories
		WHERE tenant_id = ? AND name = ?
	`

	var category Category
	err := q.QueryRow(query, tenant, name).Scan(
		&category.ID,
		&category.Name,
		&category.CreatedAt,
		&category.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category by name: %w", err)
	}

	return &category, nil
}

// EnsureByName returns the category with the given name, creating it first
// when it does not exist yet.
func (r *CategoryRepository) EnsureByName(tenant, name string) (*Category, error) {
	r.db.Lock()
	defer r.db.Unlock()

	existing, err := r.getByName(r.db.Conn(), tenant, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	category := &Category{Name: name}
	if err := r.create(r.db.Conn(), tenant, category); err != nil {
		return nil, err
	}
	return category, nil
}

// GetAll retrieves all categories with their contact counts, ordered by name.
func (r *CategoryRepository) GetAll(tenant string) ([]Category, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT g.id, g.name, g.created_at, g.updated_at, COUNT(c.id) AS contact_count
		FROM categories g
		LEFT JOIN contacts c ON c.category_id = g.id
		WHERE g.tenant_id = ?
		GROUP BY g.id
		ORDER BY g.name ASC
	`

	rows, err := r.db.Conn().Query(query, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []Category{}

	for rows.Next() {
		var category Category
		if err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.CreatedAt,
			&category.UpdatedAt,
			&category.ContactCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

// Rename changes a category's name. It reports false when the category does
// not exist for the tenant.
func (r *CategoryRepository) Rename(tenant string, category *Category) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	query := `
		UPDATE categories
		SET name = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.Conn().Exec(query, category.Name, tenant, category.ID)
	if err != nil {
		return false, fmt.Errorf("failed to update category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	row := r.db.Conn().QueryRow("SELECT updated_at FROM categories WHERE id = ?", category.ID)
	row.Scan(&category.UpdatedAt)

	return true, nil
}

// Delete removes a category by ID.
// Note: contacts in the category are kept; ON DELETE SET NULL uncategorizes them.
func (r *CategoryRepository) Delete(tenant string, id int64) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec("DELETE FROM categories WHERE tenant_id = ? AND id = ?", tenant, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete category: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
