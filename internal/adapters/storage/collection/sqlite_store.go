// Package collection stores resource documents as JSON in SQLite. It is the
// local stand-in for the hosted REST backend.
package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"gymdesk/internal/adapters/storage"
	"gymdesk/internal/application/resource"
)

// fieldPattern guards the document paths built from field names.
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore implements resource.Backend using SQLite.
type SQLiteStore struct {
	db         storage.SQLDB
	GenerateID func() string
	Now        func() time.Time
}

// Compile-time check that *SQLiteStore satisfies resource.Backend.
var _ resource.Backend = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new document store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{
		db:         db,
		GenerateID: uuid.NewString,
		Now:        time.Now,
	}
}

// List returns one page of documents and the total number of matches.
// PRE: q.Limit > 0
// POST: documents are ordered by q.Order, then id
func (s *SQLiteStore) List(ctx context.Context, collection string, q resource.Query) ([]json.RawMessage, int, error) {
	where, args, err := buildWhere(collection, q)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM record WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", collection, err)
	}

	orderBy, orderArgs, err := buildOrder(q.Order)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT body FROM record WHERE " + where + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
	listArgs := append(append(args, orderArgs...), q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, err
		}
		docs = append(docs, json.RawMessage(body))
	}
	return docs, total, rows.Err()
}

// Get returns the document with id.
// POST: Returns the document or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM record WHERE collection = ? AND id = ?", collection, id).Scan(&body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", collection, id, err)
	}
	return json.RawMessage(body), nil
}

// Insert stores doc under a fresh id.
// PRE: doc is a JSON object
// POST: the stored document carries the assigned id and createdAt
func (s *SQLiteStore) Insert(ctx context.Context, collection string, doc json.RawMessage) (json.RawMessage, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("insert %s: document must be a JSON object: %w", collection, err)
	}
	id := s.GenerateID()
	createdAt := s.Now().UTC().Format(storage.TimeLayout)
	fields[resource.FieldID] = id
	fields[resource.FieldCreatedAt] = createdAt

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO record (collection, id, created_at, body) VALUES (?, ?, ?, ?)",
		collection, id, createdAt, string(body),
	)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return body, nil
}

// Update merges patch into the stored document.
// PRE: patch is a JSON object
// POST: id and createdAt are unchanged; returns an error wrapping sql.ErrNoRows if absent
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, patch json.RawMessage) (json.RawMessage, error) {
	changes := resource.Patch{}
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, fmt.Errorf("update %s: patch must be a JSON object: %w", collection, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT body FROM record WHERE collection = ? AND id = ?", collection, id).Scan(&current)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", collection, id, err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal([]byte(current), &doc); err != nil {
		return nil, fmt.Errorf("stored %s %s is corrupt: %w", collection, id, err)
	}
	doc = resource.MergePatch(doc, changes.Sanitized())

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE record SET body = ? WHERE collection = ? AND id = ?", string(body), collection, id); err != nil {
		return nil, fmt.Errorf("update %s: %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return body, nil
}

// Delete removes the document with id.
// POST: returns an error wrapping sql.ErrNoRows when nothing was deleted
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM record WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", collection, id, sql.ErrNoRows)
	}
	return nil
}

// fieldExpr returns the SQL expression for a document field.
// Non-column fields are read with a bound json path.
func fieldExpr(field string) (string, []any, error) {
	switch field {
	case resource.FieldID:
		return "id", nil, nil
	case resource.FieldCreatedAt:
		return "created_at", nil, nil
	}
	if !fieldPattern.MatchString(field) {
		return "", nil, fmt.Errorf("invalid field name %q", field)
	}
	return "json_extract(body, ?)", []any{"$." + field}, nil
}

func buildWhere(collection string, q resource.Query) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{collection}

	for _, c := range q.Conditions {
		expr, exprArgs, err := fieldExpr(c.Field)
		if err != nil {
			return "", nil, err
		}
		if len(c.Values) == 0 {
			return "", nil, fmt.Errorf("condition on %s has no value", c.Field)
		}
		switch c.Op {
		case resource.OpEq:
			clauses = append(clauses, expr+" = ?")
			args = append(append(args, exprArgs...), c.Values[0])
		case resource.OpGte:
			clauses = append(clauses, expr+" >= ?")
			args = append(append(args, exprArgs...), c.Values[0])
		case resource.OpLte:
			clauses = append(clauses, expr+" <= ?")
			args = append(append(args, exprArgs...), c.Values[0])
		case resource.OpLt:
			clauses = append(clauses, expr+" < ?")
			args = append(append(args, exprArgs...), c.Values[0])
		case resource.OpIn:
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
			clauses = append(clauses, expr+" IN ("+placeholders+")")
			args = append(append(args, exprArgs...), c.Values...)
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
	}

	if q.Search != "" && len(q.SearchFields) > 0 {
		pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		var ors []string
		for _, f := range q.SearchFields {
			expr, exprArgs, err := fieldExpr(f)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, "LOWER(COALESCE("+expr+", '')) LIKE ? ESCAPE '\\'")
			args = append(append(args, exprArgs...), pattern)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	return strings.Join(clauses, " AND "), args, nil
}

func buildOrder(order []resource.Order) (string, []any, error) {
	var parts []string
	var args []any
	for _, o := range order {
		expr, exprArgs, err := fieldExpr(o.Field)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
		args = append(args, exprArgs...)
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", "), args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
