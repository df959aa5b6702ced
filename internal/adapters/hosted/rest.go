package hosted

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gymdesk/internal/application/resource"
)

// TokenSource yields the bearer token for resource calls. An empty token
// falls back to the anon key.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Backend implements resource.Backend over the hosted REST API. Column names
// match the document's JSON field names.
type Backend struct {
	client *Client
	tokens TokenSource
}

// Compile-time check that *Backend satisfies resource.Backend.
var _ resource.Backend = (*Backend)(nil)

// NewBackend creates a Backend. tokens may be nil for anonymous access.
func NewBackend(client *Client, tokens TokenSource) *Backend {
	return &Backend{client: client, tokens: tokens}
}

func (b *Backend) token(ctx context.Context) (string, error) {
	if b.tokens == nil {
		return "", nil
	}
	return b.tokens.AccessToken(ctx)
}

func tablePath(collection string) string {
	return "/rest/v1/" + url.PathEscape(collection)
}

// List returns one page and the exact match count from Content-Range.
// PRE: q.Limit > 0
func (b *Backend) List(ctx context.Context, collection string, q resource.Query) ([]json.RawMessage, int, error) {
	token, err := b.token(ctx)
	if err != nil {
		return nil, 0, err
	}
	query, err := encodeQuery(q)
	if err != nil {
		return nil, 0, err
	}
	resp, err := b.client.do(ctx, request{
		method: http.MethodGet,
		path:   tablePath(collection),
		query:  query,
		token:  token,
		header: http.Header{"Prefer": {"count=exact"}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", collection, err)
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(resp.body, &docs); err != nil {
		return nil, 0, fmt.Errorf("decode %s list: %w", collection, err)
	}
	total, ok := parseContentRange(resp.header.Get("Content-Range"))
	if !ok {
		total = q.Offset + len(docs)
	}
	return docs, total, nil
}

// Get returns the row with id.
// POST: a missing row yields a 404 *StatusError
func (b *Backend) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	token, err := b.token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.do(ctx, request{
		method: http.MethodGet,
		path:   tablePath(collection),
		query:  url.Values{"id": {"eq." + id}, "limit": {"1"}},
		token:  token,
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", collection, id, err)
	}
	return single(collection, id, resp.body)
}

// Insert creates a row; the server assigns id and createdAt.
func (b *Backend) Insert(ctx context.Context, collection string, doc json.RawMessage) (json.RawMessage, error) {
	token, err := b.token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.do(ctx, request{
		method:  http.MethodPost,
		path:    tablePath(collection),
		token:   token,
		rawBody: doc,
		header:  http.Header{"Prefer": {"return=representation"}},
	})
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return single(collection, "", resp.body)
}

// Update patches the row with id.
// POST: id and createdAt are never sent
func (b *Backend) Update(ctx context.Context, collection, id string, patch json.RawMessage) (json.RawMessage, error) {
	changes := resource.Patch{}
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, fmt.Errorf("update %s: patch must be a JSON object: %w", collection, err)
	}
	body, err := json.Marshal(changes.Sanitized())
	if err != nil {
		return nil, err
	}
	token, err := b.token(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.do(ctx, request{
		method:  http.MethodPatch,
		path:    tablePath(collection),
		query:   url.Values{"id": {"eq." + id}},
		token:   token,
		rawBody: body,
		header:  http.Header{"Prefer": {"return=representation"}},
	})
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	return single(collection, id, resp.body)
}

// Delete removes the row with id.
// POST: deleting a missing row yields a 404 *StatusError
func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	token, err := b.token(ctx)
	if err != nil {
		return err
	}
	resp, err := b.client.do(ctx, request{
		method: http.MethodDelete,
		path:   tablePath(collection),
		query:  url.Values{"id": {"eq." + id}},
		token:  token,
		header: http.Header{"Prefer": {"return=representation"}},
	})
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	_, err = single(collection, id, resp.body)
	return err
}

// single unwraps the one-element array the REST API returns for row calls.
func single(collection, id string, body []byte) (json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	if len(rows) == 0 {
		return nil, &StatusError{Code: http.StatusNotFound, Message: strings.TrimSpace(collection + " " + id + " not found")}
	}
	return rows[0], nil
}

// encodeQuery maps a resource.Query onto REST filter parameters.
func encodeQuery(q resource.Query) (url.Values, error) {
	v := url.Values{}
	for _, c := range q.Conditions {
		if len(c.Values) == 0 {
			return nil, fmt.Errorf("condition on %s has no values", c.Field)
		}
		switch c.Op {
		case resource.OpEq, resource.OpGte, resource.OpLte, resource.OpLt:
			v.Add(c.Field, string(c.Op)+"."+literal(c.Values[0]))
		case resource.OpIn:
			parts := make([]string, len(c.Values))
			for i, val := range c.Values {
				parts[i] = quote(literal(val))
			}
			v.Add(c.Field, "in.("+strings.Join(parts, ",")+")")
		default:
			return nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
	}

	if s := strings.TrimSpace(q.Search); s != "" && len(q.SearchFields) > 0 {
		pattern := quote("*" + escapeLike(s) + "*")
		parts := make([]string, len(q.SearchFields))
		for i, f := range q.SearchFields {
			parts[i] = f + ".ilike." + pattern
		}
		v.Set("or", "("+strings.Join(parts, ",")+")")
	}

	order := make([]string, 0, len(q.Order)+1)
	for _, o := range q.Order {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		order = append(order, o.Field+"."+dir)
	}
	order = append(order, resource.FieldID+".asc")
	v.Set("order", strings.Join(order, ","))

	v.Set("offset", strconv.Itoa(q.Offset))
	v.Set("limit", strconv.Itoa(q.Limit))
	return v, nil
}

func literal(val any) string {
	switch x := val.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return "null"
	default:
		return fmt.Sprint(x)
	}
}

// escapeLike makes s match literally inside an ilike pattern. PostgREST
// turns every * into %, so a literal * can only be kept as a one-character
// wildcard.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `_`)
	return r.Replace(s)
}

// quote wraps s in double quotes when it holds a reserved character.
func quote(s string) string {
	if !strings.ContainsAny(s, `,.:()" \`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// parseContentRange reads the total from "0-24/137" or "*/0".
func parseContentRange(h string) (int, bool) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
