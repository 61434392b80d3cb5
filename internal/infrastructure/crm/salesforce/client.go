package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseSize is the maximum allowed response size from the REST API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// collectionChunkSize is the record limit of one sObject collection request
const collectionChunkSize = 200

// ErrInvalidResponse indicates a body that could not be decoded
var ErrInvalidResponse = errors.New("salesforce: invalid response")

// APIError is an error reported by the Salesforce REST API
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Fields     []string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("salesforce: %s: %s (HTTP %d)", e.ErrorCode, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("salesforce: %s (HTTP %d)", e.Message, e.StatusCode)
}

// restClient performs authenticated REST calls against one API version
type restClient struct {
	httpClient *http.Client
	apiVersion string
}

func (c *restClient) endpoint(creds Credentials, path string) string {
	return creds.InstanceURL + "/services/data/" + c.apiVersion + path
}

// do sends the request and decodes a successful body into out. Transport and
// context errors are returned unchanged.
func (c *restClient) do(ctx context.Context, creds Credentials, method, rawURL string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("salesforce: failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("salesforce: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("salesforce: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// parseAPIError decodes the error array, a single error object, or falls back to the raw body
func parseAPIError(status int, body []byte) *APIError {
	var items []apiErrorItem
	if err := json.Unmarshal(body, &items); err == nil && len(items) > 0 {
		return &APIError{StatusCode: status, ErrorCode: items[0].code(), Message: items[0].Message, Fields: items[0].Fields}
	}
	var single apiErrorItem
	if err := json.Unmarshal(body, &single); err == nil && single.Message != "" {
		return &APIError{StatusCode: status, ErrorCode: single.code(), Message: single.Message, Fields: single.Fields}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}

// query runs a SOQL statement and follows nextRecordsUrl until done
func (c *restClient) query(ctx context.Context, creds Credentials, soql string) ([]json.RawMessage, error) {
	next := c.endpoint(creds, "/query") + "?q=" + url.QueryEscape(soql)
	records := make([]json.RawMessage, 0)
	for {
		var page queryResponse
		if err := c.do(ctx, creds, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.Done || page.NextRecordsURL == "" {
			return records, nil
		}
		next = creds.InstanceURL + page.NextRecordsURL
	}
}

// create inserts one record and returns its id
func (c *restClient) create(ctx context.Context, creds Credentials, object string, fields map[string]any) (string, error) {
	var result saveResult
	if err := c.do(ctx, creds, http.MethodPost, c.endpoint(creds, "/sobjects/"+object+"/"), fields, &result); err != nil {
		return "", err
	}
	if !result.IsSuccess() {
		return "", saveResultError(result)
	}
	return result.ID, nil
}

// update patches one record
func (c *restClient) update(ctx context.Context, creds Credentials, object, id string, fields map[string]any) error {
	return c.do(ctx, creds, http.MethodPatch, c.endpoint(creds, "/sobjects/"+object+"/"+url.PathEscape(id)), fields, nil)
}

// createCollection inserts records with allOrNone=false, returning one result
// per record in order. When a chunk fails the results of the earlier chunks are
// returned with the error; the records they report exist in the org.
func (c *restClient) createCollection(ctx context.Context, creds Credentials, object string, records []map[string]any) ([]saveResult, error) {
	results := make([]saveResult, 0, len(records))
	for start := 0; start < len(records); start += collectionChunkSize {
		end := min(start+collectionChunkSize, len(records))

		req := collectionRequest{AllOrNone: false, Records: make([]map[string]any, 0, end-start)}
		for _, rec := range records[start:end] {
			withType := make(map[string]any, len(rec)+1)
			for k, v := range rec {
				withType[k] = v
			}
			withType["attributes"] = map[string]string{"type": object}
			req.Records = append(req.Records, withType)
		}

		var chunk []saveResult
		if err := c.do(ctx, creds, http.MethodPost, c.endpoint(creds, "/composite/sobjects"), req, &chunk); err != nil {
			return results, err
		}
		if len(chunk) != end-start {
			return results, fmt.Errorf("%w: expected %d results, got %d", ErrInvalidResponse, end-start, len(chunk))
		}
		results = append(results, chunk...)
	}
	return results, nil
}

// saveResultError converts a failed save result into an APIError
func saveResultError(r saveResult) *APIError {
	if len(r.Errors) == 0 {
		return &APIError{StatusCode: http.StatusBadRequest, Message: "record was not saved"}
	}
	e := r.Errors[0]
	return &APIError{StatusCode: http.StatusBadRequest, ErrorCode: e.code(), Message: e.Message, Fields: e.Fields}
}
