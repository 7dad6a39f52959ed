// crew-registry-system/services/coda_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"crew-registry-system/utils"
)

// RemoteRow is one row of the registry table as Coda returns it:
// an opaque row id plus column-name → value pairs.
type RemoteRow struct {
	ID     string                 `json:"id"`
	Values map[string]interface{} `json:"values"`
}

// Column describes one column of the registry table.
type Column struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecordStore is the contract the onboarding flow needs from the remote
// tabular store. Every call is potentially slow, potentially failing, and
// non-atomic; nothing here assumes read-after-write consistency.
type RecordStore interface {
	CreateRow(ctx context.Context, cells map[string]interface{}) (string, error)
	QueryRows(ctx context.Context, column, value string) ([]RemoteRow, error)
	ListRows(ctx context.Context) ([]RemoteRow, error)
	UpdateRow(ctx context.Context, rowID string, cells map[string]interface{}) error
	GetColumns(ctx context.Context) ([]Column, error)
}

// CodaClient talks to the Coda REST API for a single doc/table.
type CodaClient struct {
	BaseURL string // normally https://coda.io/apis/v1
	Token   string
	DocID   string
	TableID string
	Client  *http.Client
}

func NewCodaClient(baseURL, token, docID, tableID string) *CodaClient {
	if baseURL == "" {
		baseURL = "https://coda.io/apis/v1"
	}
	return &CodaClient{
		BaseURL: baseURL,
		Token:   token,
		DocID:   docID,
		TableID: tableID,
		Client:  utils.HTTPClient,
	}
}

func (c *CodaClient) tableURL(suffix string) string {
	return fmt.Sprintf("%s/docs/%s/tables/%s%s", c.BaseURL, c.DocID, c.TableID, suffix)
}

func (c *CodaClient) do(ctx context.Context, method, rawURL string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("coda request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		// Per-endpoint rate limit. Coda sends Retry-After but we surface the
		// failure to the caller instead of sleeping on the event path.
		log.Printf("⏳ [CODA] Rate limited on %s %s", method, rawURL)
		return fmt.Errorf("coda rate limited: %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("❌ [CODA] %s %s returned %d: %s", method, rawURL, resp.StatusCode, string(errBody))
		return fmt.Errorf("coda returned %d: %s", resp.StatusCode, string(errBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode coda response: %w", err)
		}
	}
	return nil
}

// CreateRow inserts one row and returns the store-assigned row id. An empty
// row id with a nil error never happens; a missing id is reported as an
// error so callers can treat the write as failed.
func (c *CodaClient) CreateRow(ctx context.Context, cells map[string]interface{}) (string, error) {
	type cell struct {
		Column string      `json:"column"`
		Value  interface{} `json:"value"`
	}
	var rowCells []cell
	for col, val := range cells {
		rowCells = append(rowCells, cell{Column: col, Value: val})
	}

	body := map[string]interface{}{
		"rows": []map[string]interface{}{
			{"cells": rowCells},
		},
	}

	var out struct {
		AddedRowIDs []string `json:"addedRowIds"`
	}
	if err := c.do(ctx, "POST", c.tableURL("/rows"), body, &out); err != nil {
		return "", err
	}
	if len(out.AddedRowIDs) == 0 {
		return "", fmt.Errorf("coda accepted the insert but returned no row id")
	}
	return out.AddedRowIDs[0], nil
}

// QueryRows returns every row whose column equals value, following
// pagination to the end. Coda's query filter is a single column:value
// equality; anything richer is filtered by the caller.
func (c *CodaClient) QueryRows(ctx context.Context, column, value string) ([]RemoteRow, error) {
	query := fmt.Sprintf("%q:%q", column, value)
	return c.listRows(ctx, query)
}

// ListRows returns every row in the table. Used by the allocator's sequence
// scan and the pending-registration audit.
func (c *CodaClient) ListRows(ctx context.Context) ([]RemoteRow, error) {
	return c.listRows(ctx, "")
}

func (c *CodaClient) listRows(ctx context.Context, query string) ([]RemoteRow, error) {
	var rows []RemoteRow
	pageToken := ""

	for {
		u, err := url.Parse(c.tableURL("/rows"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse rows URL: %w", err)
		}
		q := u.Query()
		q.Set("useColumnNames", "true")
		q.Set("limit", "100")
		if query != "" {
			q.Set("query", query)
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u.RawQuery = q.Encode()

		var out struct {
			Items         []RemoteRow `json:"items"`
			NextPageToken string      `json:"nextPageToken"`
		}
		if err := c.do(ctx, "GET", u.String(), nil, &out); err != nil {
			return nil, err
		}

		rows = append(rows, out.Items...)
		if out.NextPageToken == "" {
			return rows, nil
		}
		pageToken = out.NextPageToken
	}
}

// UpdateRow patches the given cells on one row.
func (c *CodaClient) UpdateRow(ctx context.Context, rowID string, cells map[string]interface{}) error {
	type cell struct {
		Column string      `json:"column"`
		Value  interface{} `json:"value"`
	}
	var rowCells []cell
	for col, val := range cells {
		rowCells = append(rowCells, cell{Column: col, Value: val})
	}

	body := map[string]interface{}{
		"row": map[string]interface{}{"cells": rowCells},
	}
	return c.do(ctx, "PUT", c.tableURL("/rows/"+url.PathEscape(rowID)), body, nil)
}

// GetColumns lists the table's columns (name + id), following pagination.
func (c *CodaClient) GetColumns(ctx context.Context) ([]Column, error) {
	var cols []Column
	pageToken := ""

	for {
		u, err := url.Parse(c.tableURL("/columns"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse columns URL: %w", err)
		}
		q := u.Query()
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		u.RawQuery = q.Encode()

		var out struct {
			Items         []Column `json:"items"`
			NextPageToken string   `json:"nextPageToken"`
		}
		if err := c.do(ctx, "GET", u.String(), nil, &out); err != nil {
			return nil, err
		}

		cols = append(cols, out.Items...)
		if out.NextPageToken == "" {
			return cols, nil
		}
		pageToken = out.NextPageToken
	}
}

// ValidateSchema checks that every column this service depends on exists in
// the live table. Run once at startup; a missing column means the doc was
// reorganized under us and the service must refuse to operate.
func ValidateSchema(ctx context.Context, store RecordStore, required []string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cols, err := store.GetColumns(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch registry columns: %w", err)
	}

	have := make(map[string]bool, len(cols))
	for _, col := range cols {
		have[col.Name] = true
	}

	var missing []string
	for _, name := range required {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("registry table is missing required columns: %v", missing)
	}
	return nil
}
