package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

const entryColumns = `e.id, e.name, e.path, e.thumb_ref, e.model_path, e.link_url,
	e.obtained_on, e.type_id, e.category_id`

// ===== Reconciler store =====

// ListEntries returns every entry ordered by name. Tags are not loaded.
func (db *DB) ListEntries(ctx context.Context) ([]*schema.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries e ORDER BY e.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CreateEntry inserts a new entry and returns its ID.
func (db *DB) CreateEntry(ctx context.Context, e *schema.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("invalid entry: %w", err)
	}

	query := `
	INSERT INTO entries (
		name, path, thumb_ref, model_path, link_url,
		obtained_on, type_id, category_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		e.Name,
		e.Path,
		nullString(e.ThumbRef),
		nullString(e.ModelPath),
		nullString(e.LinkURL),
		timeToNullString(e.ObtainedOn),
		nullInt64(e.TypeID),
		nullInt64(e.CategoryID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create entry %s: %w", e.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read id of entry %s: %w", e.Name, err)
	}
	return id, nil
}

// UpdateEntry writes the named fields of e to the row with e.ID.
// Fields outside schema.SyncFields are rejected; an empty list is a no-op.
func (db *DB) UpdateEntry(ctx context.Context, e *schema.Entry, fields []schema.Field) error {
	if len(fields) == 0 {
		return nil
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	sets := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	for _, f := range lo.Uniq(fields) {
		if !f.Valid() {
			return fmt.Errorf("unknown entry field %q", f)
		}
		sets = append(sets, string(f)+" = ?")
		args = append(args, fieldValue(e, f))
	}
	args = append(args, e.ID)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE entries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update entry %s: %w", e.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update entry %s: %w", e.Name, ErrNotFound)
	}
	return nil
}

func fieldValue(e *schema.Entry, f schema.Field) interface{} {
	switch f {
	case schema.FieldPath:
		return e.Path
	case schema.FieldThumbRef:
		return nullString(e.ThumbRef)
	case schema.FieldModelPath:
		return nullString(e.ModelPath)
	case schema.FieldLinkURL:
		return nullString(e.LinkURL)
	case schema.FieldObtainedOn:
		return timeToNullString(e.ObtainedOn)
	case schema.FieldTypeID:
		return nullInt64(e.TypeID)
	}
	return nil
}

// DeleteEntry removes an entry and its tag links.
// Returns nil if the entry doesn't exist (idempotent).
func (db *DB) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	return nil
}

// ===== Lookups =====

// GetEntry returns the entry with the given ID, tags included.
// Returns ErrNotFound if there is none.
func (db *DB) GetEntry(ctx context.Context, id int64) (*schema.Entry, error) {
	return db.getEntry(ctx, `e.id = ?`, id)
}

// GetEntryByName returns the entry for a folder name, tags included.
// Returns ErrNotFound if there is none.
func (db *DB) GetEntryByName(ctx context.Context, name string) (*schema.Entry, error) {
	return db.getEntry(ctx, `e.name = ?`, name)
}

func (db *DB) getEntry(ctx context.Context, cond string, arg interface{}) (*schema.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries e WHERE `+cond, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %v: %w", arg, err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("entry %v: %w", arg, ErrNotFound)
	}
	if err := db.loadTags(ctx, entries); err != nil {
		return nil, err
	}
	return entries[0], nil
}

// EntryFilter narrows QueryEntries and CountEntries.
type EntryFilter struct {
	// Query matches a case-insensitive substring of the name (empty = all)
	Query string
	// TypeID filters by model type (0 = all types)
	TypeID int64
	// TypeCode filters by model type code (empty = all types)
	TypeCode string
	// CategoryID filters by category (0 = all categories)
	CategoryID int64
	// Tag filters to entries carrying this tag (empty = all)
	Tag string
	// Since keeps entries obtained at or after this instant (nil = all)
	Since *time.Time
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

func (f EntryFilter) where() (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q := strings.TrimSpace(f.Query); q != "" {
		conditions = append(conditions, `e.name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q)+"%")
	}
	if f.TypeID > 0 {
		conditions = append(conditions, "e.type_id = ?")
		args = append(args, f.TypeID)
	}
	if f.TypeCode != "" {
		conditions = append(conditions, "e.type_id = (SELECT id FROM model_types WHERE code = ?)")
		args = append(args, f.TypeCode)
	}
	if f.CategoryID > 0 {
		conditions = append(conditions, "e.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Tag != "" {
		conditions = append(conditions, `EXISTS (
			SELECT 1 FROM entry_tags et JOIN tags t ON t.id = et.tag_id
			WHERE et.entry_id = e.id AND t.name = ?)`)
		args = append(args, f.Tag)
	}
	if f.Since != nil {
		conditions = append(conditions, "e.obtained_on >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// QueryEntries retrieves entries matching the filter, ordered by name,
// with tags loaded.
func (db *DB) QueryEntries(ctx context.Context, f EntryFilter) ([]*schema.Entry, error) {
	where, args := f.where()
	query := `SELECT ` + entryColumns + ` FROM entries e` + where + ` ORDER BY e.name`

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if err := db.loadTags(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountEntries returns how many entries match the filter.
// Limit and Offset are ignored.
func (db *DB) CountEntries(ctx context.Context, f EntryFilter) (int, error) {
	where, args := f.where()
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries e`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// ===== User-owned fields =====

// SetEntryClassification sets the type and category of an entry. Either may
// be nil to clear it. A category must belong to the given type.
func (db *DB) SetEntryClassification(ctx context.Context, entryID int64, typeID, categoryID *int64) error {
	if categoryID != nil {
		cat, err := db.GetCategory(ctx, *categoryID)
		if err != nil {
			return err
		}
		if typeID == nil {
			typeID = schema.Int64(cat.TypeID)
		} else if *typeID != cat.TypeID {
			return fmt.Errorf("category %q does not belong to type %d", cat.Name, *typeID)
		}
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE entries SET type_id = ?, category_id = ? WHERE id = ?`,
		nullInt64(typeID), nullInt64(categoryID), entryID)
	if err != nil {
		return fmt.Errorf("failed to classify entry %d: %w", entryID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("entry %d: %w", entryID, ErrNotFound)
	}
	return nil
}

// SetEntryTags replaces the tags of an entry. Unknown tags are created.
func (db *DB) SetEntryTags(ctx context.Context, entryID int64, names []string) error {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		tag, err := schema.NormalizeTag(n)
		if err != nil {
			return fmt.Errorf("invalid tag: %w", err)
		}
		normalized = append(normalized, tag)
	}
	normalized = lo.Uniq(normalized)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE id = ?`, entryID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to look up entry %d: %w", entryID, err)
	}
	if exists == 0 {
		return fmt.Errorf("entry %d: %w", entryID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("failed to clear tags of entry %d: %w", entryID, err)
	}

	for _, name := range normalized {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("failed to create tag %s: %w", name, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entry_tags (entry_id, tag_id)
			SELECT ?, id FROM tags WHERE name = ?`, entryID, name)
		if err != nil {
			return fmt.Errorf("failed to tag entry %d with %s: %w", entryID, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tags of entry %d: %w", entryID, err)
	}
	return nil
}

// ===== Scanning =====

// scanEntries is a helper function to scan multiple entries from query results.
func scanEntries(rows *sql.Rows) ([]*schema.Entry, error) {
	var entries []*schema.Entry

	for rows.Next() {
		var e schema.Entry
		var thumbRef, modelPath, linkURL, obtainedOn sql.NullString
		var typeID, categoryID sql.NullInt64

		err := rows.Scan(
			&e.ID,
			&e.Name,
			&e.Path,
			&thumbRef,
			&modelPath,
			&linkURL,
			&obtainedOn,
			&typeID,
			&categoryID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		e.ThumbRef = stringPtr(thumbRef)
		e.ModelPath = stringPtr(modelPath)
		e.LinkURL = stringPtr(linkURL)
		e.ObtainedOn = nullStringToTime(obtainedOn)
		e.TypeID = int64Ptr(typeID)
		e.CategoryID = int64Ptr(categoryID)

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// loadTags fills Tags on each entry, querying in chunks to stay below the
// SQLite variable limit.
func (db *DB) loadTags(ctx context.Context, entries []*schema.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	byID := lo.KeyBy(entries, func(e *schema.Entry) int64 { return e.ID })

	for _, chunk := range lo.Chunk(lo.Keys(byID), 500) {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := lo.Map(chunk, func(id int64, _ int) interface{} { return id })

		rows, err := db.conn.QueryContext(ctx, `
			SELECT et.entry_id, t.name
			FROM entry_tags et JOIN tags t ON t.id = et.tag_id
			WHERE et.entry_id IN (`+placeholders+`)
			ORDER BY t.name`, args...)
		if err != nil {
			return fmt.Errorf("failed to load tags: %w", err)
		}

		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan tag: %w", err)
			}
			byID[id].Tags = append(byID[id].Tags, name)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("error iterating tags: %w", err)
		}
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
