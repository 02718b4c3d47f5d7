package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// ===== Model types =====

// EnsureModelType returns the type with the given code, creating it with
// name if it doesn't exist. An existing type keeps its name.
func (db *DB) EnsureModelType(ctx context.Context, code, name string) (*schema.ModelType, error) {
	t := &schema.ModelType{Code: code, Name: name}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model type: %w", err)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO model_types (code, name) VALUES (?, ?) ON CONFLICT(code) DO NOTHING`,
		code, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create model type %s: %w", code, err)
	}
	return db.GetModelTypeByCode(ctx, code)
}

// GetModelTypeByCode returns the type with the given code.
// Returns ErrNotFound if there is none.
func (db *DB) GetModelTypeByCode(ctx context.Context, code string) (*schema.ModelType, error) {
	var t schema.ModelType
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, code, name FROM model_types WHERE code = ?`, code).Scan(&t.ID, &t.Code, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model type %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model type %s: %w", code, err)
	}
	return &t, nil
}

// ListModelTypes returns all types ordered by code.
func (db *DB) ListModelTypes(ctx context.Context) ([]*schema.ModelType, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, code, name FROM model_types ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list model types: %w", err)
	}
	defer rows.Close()

	var types []*schema.ModelType
	for rows.Next() {
		var t schema.ModelType
		if err := rows.Scan(&t.ID, &t.Code, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan model type: %w", err)
		}
		types = append(types, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model types: %w", err)
	}
	return types, nil
}

// ===== Categories =====

// EnsureCategory returns the category name within typeID, creating it if
// it doesn't exist.
func (db *DB) EnsureCategory(ctx context.Context, typeID int64, name string) (*schema.Category, error) {
	c := &schema.Category{Name: name, TypeID: typeID}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid category: %w", err)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO categories (name, type_id) VALUES (?, ?) ON CONFLICT(name, type_id) DO NOTHING`,
		name, typeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create category %s: %w", name, err)
	}

	err = db.conn.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE name = ? AND type_id = ?`, name, typeID).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get category %s: %w", name, err)
	}
	return c, nil
}

// GetCategory returns the category with the given ID.
// Returns ErrNotFound if there is none.
func (db *DB) GetCategory(ctx context.Context, id int64) (*schema.Category, error) {
	var c schema.Category
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, type_id FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name, &c.TypeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category %d: %w", id, err)
	}
	return &c, nil
}

// ListCategories returns categories ordered by type code, then name.
// A typeID of 0 lists all of them.
func (db *DB) ListCategories(ctx context.Context, typeID int64) ([]*schema.Category, error) {
	query := `
	SELECT c.id, c.name, c.type_id
	FROM categories c JOIN model_types t ON t.id = c.type_id
	`
	var args []interface{}
	if typeID > 0 {
		query += " WHERE c.type_id = ?"
		args = append(args, typeID)
	}
	query += " ORDER BY t.code, c.name"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var cats []*schema.Category
	for rows.Next() {
		var c schema.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.TypeID); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cats = append(cats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return cats, nil
}

// ===== Tags =====

// EnsureTag returns the tag with the given name, creating it if needed.
func (db *DB) EnsureTag(ctx context.Context, name string) (*schema.Tag, error) {
	name, err := schema.NormalizeTag(name)
	if err != nil {
		return nil, fmt.Errorf("invalid tag: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return nil, fmt.Errorf("failed to create tag %s: %w", name, err)
	}

	t := &schema.Tag{Name: name}
	if err := db.conn.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&t.ID); err != nil {
		return nil, fmt.Errorf("failed to get tag %s: %w", name, err)
	}
	return t, nil
}

// ListTags returns all tags ordered by name.
func (db *DB) ListTags(ctx context.Context) ([]*schema.Tag, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*schema.Tag
	for rows.Next() {
		var t schema.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}
