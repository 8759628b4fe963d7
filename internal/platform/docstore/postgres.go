package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PostgresStore keeps every collection in the documents table as JSONB.
// Filters are rendered as SQL/JSONPath predicates evaluated with
// jsonb_path_exists, with all values passed as JSONPath variables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool. The documents table is created by
// the migrations under ./migrations.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Collection(name string) Collection {
	return &pgCollection{db: s.pool, name: name}
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

type pgCollection struct {
	db   queryable
	name string
}

func (c *pgCollection) FindOne(ctx context.Context, f Filter) (*Document, error) {
	args := &pgArgs{}
	coll := args.add(c.name)
	where, err := renderWhere(f, args)
	if err != nil {
		return nil, err
	}
	sql := `SELECT id::text, body FROM documents WHERE collection = ` + coll + ` AND ` + where + ` ORDER BY seq LIMIT 1`
	var (
		id   string
		body []byte
	)
	if err := c.db.QueryRow(ctx, sql, args.values...).Scan(&id, &body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find one in %s: %w", c.name, err)
	}
	return &Document{ID: id, Body: append(json.RawMessage(nil), body...)}, nil
}

func (c *pgCollection) Find(ctx context.Context, f Filter) ([]*Document, error) {
	args := &pgArgs{}
	coll := args.add(c.name)
	where, err := renderWhere(f, args)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.Query(ctx, `SELECT id::text, body FROM documents WHERE collection = `+coll+` AND `+where+` ORDER BY seq`, args.values...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.name, err)
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", c.name, err)
		}
		docs = append(docs, &Document{ID: id, Body: append(json.RawMessage(nil), body...)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s documents: %w", c.name, err)
	}
	return docs, nil
}

func (c *pgCollection) Count(ctx context.Context, f Filter) (int64, error) {
	args := &pgArgs{}
	coll := args.add(c.name)
	where, err := renderWhere(f, args)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE collection = `+coll+` AND `+where, args.values...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return n, nil
}

func (c *pgCollection) InsertOne(ctx context.Context, body interface{}) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	id := uuid.New()
	if _, err := c.db.Exec(ctx, `INSERT INTO documents (id, collection, body) VALUES ($1, $2, $3::jsonb)`,
		id, c.name, string(raw)); err != nil {
		return "", fmt.Errorf("insert into %s: %w", c.name, err)
	}
	return id.String(), nil
}

func (c *pgCollection) UpdateOne(ctx context.Context, f Filter, u Update) (int64, error) {
	sql, args, err := buildUpdateSQL(c.name, f, u)
	if err != nil {
		return 0, err
	}
	tag, err := c.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", c.name, err)
	}
	return tag.RowsAffected(), nil
}

// buildUpdateSQL locks the first matching row, computes the new body and
// writes it back only when it differs, so RowsAffected is the modified count.
func buildUpdateSQL(collection string, f Filter, u Update) (string, []interface{}, error) {
	args := &pgArgs{}
	coll := args.add(collection)
	where, err := renderWhere(f, args)
	if err != nil {
		return "", nil, err
	}
	expr, err := renderUpdate(u, args)
	if err != nil {
		return "", nil, err
	}
	sql := `WITH target AS (
	SELECT id, body FROM documents WHERE collection = ` + coll + ` AND ` + where + ` ORDER BY seq LIMIT 1 FOR UPDATE
), changed AS (
	SELECT id, ` + expr + ` AS body FROM target
)
UPDATE documents d SET body = changed.body, updated_at = NOW()
FROM changed, target
WHERE d.id = changed.id AND target.id = changed.id AND changed.body IS DISTINCT FROM target.body`
	return sql, args.values, nil
}

type pgArgs struct {
	values []interface{}
}

func (a *pgArgs) add(v interface{}) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

// renderWhere renders f as a SQL boolean expression over the body column.
func renderWhere(f Filter, args *pgArgs) (string, error) {
	if f.IsAll() {
		return "TRUE", nil
	}
	switch f.op {
	case opID:
		id, _ := f.value.(string)
		parsed, err := uuid.Parse(id)
		if err != nil {
			return "FALSE", nil
		}
		return "id = " + args.add(parsed), nil
	case opAnd:
		parts := make([]string, 0, len(f.children))
		for _, c := range f.children {
			p, err := renderWhere(c, args)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	}
	vars := newPathVars()
	pred, err := renderPredicate(f, vars)
	if err != nil {
		return "", err
	}
	varsJSON, err := vars.json()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("jsonb_path_exists(body, %s::jsonpath, %s::jsonb)", args.add("$ ? ("+pred+")"), args.add(varsJSON)), nil
}

// renderUpdate returns a JSONB expression computing the updated body.
func renderUpdate(u Update, args *pgArgs) (string, error) {
	if u.Empty() {
		return "", fmt.Errorf("empty update")
	}
	expr := "body"
	for _, s := range u.steps {
		switch s.op {
		case opSet:
			val, err := json.Marshal(s.value)
			if err != nil {
				return "", err
			}
			expr = fmt.Sprintf("jsonb_set(%s, %s::text[], %s::jsonb, true)", expr, args.add(splitPath(s.path)), args.add(string(val)))
		case opPush:
			if len(s.values) == 0 {
				continue
			}
			vals, err := json.Marshal(s.values)
			if err != nil {
				return "", err
			}
			p := args.add(splitPath(s.path))
			expr = fmt.Sprintf("jsonb_set(%[1]s, %[2]s::text[], COALESCE(%[1]s #> %[2]s::text[], '[]'::jsonb) || %[3]s::jsonb, true)",
				expr, p, args.add(string(vals)))
		case opSetWhere:
			vars := newPathVars()
			pred, err := renderPredicate(And(s.conds...), vars)
			if err != nil {
				return "", err
			}
			varsJSON, err := vars.json()
			if err != nil {
				return "", err
			}
			val, err := json.Marshal(s.value)
			if err != nil {
				return "", err
			}
			p := args.add(splitPath(s.path))
			expr = fmt.Sprintf(`CASE WHEN jsonb_typeof(%[1]s #> %[2]s::text[]) = 'array' THEN jsonb_set(%[1]s, %[2]s::text[], COALESCE((SELECT jsonb_agg(CASE WHEN jsonb_path_exists(x.elem, %[3]s::jsonpath, %[4]s::jsonb) THEN jsonb_set(x.elem, %[5]s::text[], %[6]s::jsonb, true) ELSE x.elem END ORDER BY x.ord) FROM jsonb_array_elements(%[1]s #> %[2]s::text[]) WITH ORDINALITY AS x(elem, ord)), '[]'::jsonb), true) ELSE %[1]s END`,
				expr, p, args.add("$ ? ("+pred+")"), args.add(varsJSON), args.add(splitPath(s.subPath)), args.add(string(val)))
		}
	}
	return expr, nil
}

type pathVars struct {
	vars map[string]interface{}
}

func newPathVars() *pathVars { return &pathVars{vars: map[string]interface{}{}} }

func (p *pathVars) bind(v interface{}) (string, error) {
	jv, err := toJSONValue(v)
	if err != nil {
		return "", err
	}
	name := "v" + strconv.Itoa(len(p.vars)+1)
	p.vars[name] = jv
	return "$" + name, nil
}

func (p *pathVars) json() (string, error) {
	raw, err := json.Marshal(p.vars)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// renderPredicate renders f as a JSONPath filter predicate relative to @.
func renderPredicate(f Filter, vars *pathVars) (string, error) {
	switch f.op {
	case opAll:
		return "(1 == 1)", nil
	case opEq:
		v, err := vars.bind(f.value)
		if err != nil {
			return "", err
		}
		return jsonPathAccessor(f.path) + " == " + v, nil
	case opIn:
		if len(f.values) == 0 {
			return "(1 == 0)", nil
		}
		parts := make([]string, 0, len(f.values))
		for _, val := range f.values {
			v, err := vars.bind(val)
			if err != nil {
				return "", err
			}
			parts = append(parts, jsonPathAccessor(f.path)+" == "+v)
		}
		return "(" + strings.Join(parts, " || ") + ")", nil
	case opExists:
		return "exists(" + jsonPathAccessor(f.path) + ")", nil
	case opElemMatch:
		inner := "(1 == 1)"
		if len(f.children) > 0 {
			p, err := renderPredicate(And(f.children...), vars)
			if err != nil {
				return "", err
			}
			inner = p
		}
		return "exists(" + jsonPathAccessor(f.path) + "[*] ? (" + inner + "))", nil
	case opAnd:
		if len(f.children) == 0 {
			return "(1 == 1)", nil
		}
		parts := make([]string, 0, len(f.children))
		for _, c := range f.children {
			p, err := renderPredicate(c, vars)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "(" + strings.Join(parts, " && ") + ")", nil
	case opID:
		return "", fmt.Errorf("ByID is only supported at the top level of a filter")
	}
	return "", fmt.Errorf("unknown filter op %d", f.op)
}

func jsonPathAccessor(path string) string {
	var b strings.Builder
	b.WriteString("@")
	for _, seg := range splitPath(path) {
		if n, ok := isIndex(seg); ok {
			b.WriteString("[" + strconv.Itoa(n) + "]")
			continue
		}
		b.WriteString("." + strconv.Quote(seg))
	}
	return b.String()
}
