package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Query builds and executes a request against one table. Filters, ordering,
// and pagination compose in the PostgREST query-string form; Select with an
// embedded relation ("*, order_items(*)") joins child rows into the result.
type Query struct {
	client    *Client
	table     string
	method    string
	columns   string
	filters   []string
	orders    []string
	limitVal  *int
	offsetVal *int
	body      []byte
	headers   map[string]string
	single    bool
	err       error
}

// Select specifies the columns (or embeddings) to return.
func (q *Query) Select(columns string) *Query {
	q.method = http.MethodGet
	q.columns = columns
	return q
}

// Insert inserts one record or a slice of records.
func (q *Query) Insert(data any) *Query {
	q.method = http.MethodPost
	q.setBody(data)
	q.headers["Prefer"] = "return=representation"
	return q
}

// Upsert inserts records, merging on conflict.
func (q *Query) Upsert(data any, onConflict string) *Query {
	q.method = http.MethodPost
	q.setBody(data)
	q.headers["Prefer"] = "return=representation,resolution=merge-duplicates"
	if onConflict != "" {
		q.headers["on-conflict"] = onConflict
	}
	return q
}

// Update patches all records matching the filters.
func (q *Query) Update(data any) *Query {
	q.method = http.MethodPatch
	q.setBody(data)
	q.headers["Prefer"] = "return=representation"
	return q
}

// Delete removes all records matching the filters.
func (q *Query) Delete() *Query {
	q.method = http.MethodDelete
	q.headers["Prefer"] = "return=representation"
	return q
}

func (q *Query) setBody(data any) {
	body, err := json.Marshal(data)
	if err != nil && q.err == nil {
		q.err = fmt.Errorf("marshal body: %w", err)
	}
	q.body = body
}

// Eq adds an equality filter.
func (q *Query) Eq(column string, value any) *Query {
	q.filters = append(q.filters, fmt.Sprintf("%s=eq.%v", column, value))
	return q
}

// Neq adds a not-equal filter.
func (q *Query) Neq(column string, value any) *Query {
	q.filters = append(q.filters, fmt.Sprintf("%s=neq.%v", column, value))
	return q
}

// Gt adds a greater-than filter.
func (q *Query) Gt(column string, value any) *Query {
	q.filters = append(q.filters, fmt.Sprintf("%s=gt.%v", column, value))
	return q
}

// Gte adds a greater-than-or-equal filter.
func (q *Query) Gte(column string, value any) *Query {
	q.filters = append(q.filters, fmt.Sprintf("%s=gte.%v", column, value))
	return q
}

// Lt adds a less-than filter.
func (q *Query) Lt(column string, value any) *Query {
	q.filters = append(q.filters, fmt.Sprintf("%s=lt.%v", column, value))
	return q
}

// Lte adds a less-than-or-equal filter.
func (q *Query) Lte(column string, value any) *Query {
	q.filters = append(q.filters, fmt.Sprintf("%s=lte.%v", column, value))
	return q
}

// Is adds an IS filter (null, true, false).
func (q *Query) Is(column string, value any) *Query {
	q.filters = append(q.filters, fmt.Sprintf("%s=is.%v", column, value))
	return q
}

// In adds an IN filter.
func (q *Query) In(column string, values ...any) *Query {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	q.filters = append(q.filters, fmt.Sprintf("%s=in.(%s)", column, strings.Join(parts, ",")))
	return q
}

// Order adds an order clause; desc sorts descending.
func (q *Query) Order(column string, desc bool) *Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limitVal = &n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.offsetVal = &n
	return q
}

// Single expects exactly one row and returns it as an object. A missing row
// surfaces as a not-found error.
func (q *Query) Single() *Query {
	q.single = true
	q.headers["Accept"] = "application/vnd.pgrst.object+json"
	return q
}

// Execute runs the query and returns the raw response body.
func (q *Query) Execute(ctx context.Context) ([]byte, error) {
	if q.err != nil {
		return nil, q.err
	}

	body, status, err := q.client.do(ctx, q.method, q.buildURL(), q.table, q.body, q.headers)
	if err != nil {
		return nil, err
	}

	if q.single && status == http.StatusNotAcceptable {
		return nil, &Error{Code: "not_found", Message: "row not found in " + q.table, StatusCode: status}
	}
	if status >= 400 {
		return nil, parseError(body, status)
	}
	return body, nil
}

// ExecuteInto runs the query and unmarshals the response into dest.
func (q *Query) ExecuteInto(ctx context.Context, dest any) error {
	data, err := q.Execute(ctx)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (q *Query) buildURL() string {
	u := q.client.restURL + "/" + url.PathEscape(q.table)

	params := make([]string, 0, len(q.filters)+4)
	if q.method == http.MethodGet && q.columns != "" {
		params = append(params, "select="+url.QueryEscape(q.columns))
	}
	params = append(params, q.filters...)
	if len(q.orders) > 0 {
		params = append(params, "order="+strings.Join(q.orders, ","))
	}
	if q.limitVal != nil {
		params = append(params, fmt.Sprintf("limit=%d", *q.limitVal))
	}
	if q.offsetVal != nil {
		params = append(params, fmt.Sprintf("offset=%d", *q.offsetVal))
	}

	if len(params) > 0 {
		u += "?" + strings.Join(params, "&")
	}
	return u
}
