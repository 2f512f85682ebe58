package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds remote store client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Token returns the bearer token for a request. Nil sends no token.
	Token func(ctx context.Context) string
}

// HTTPStore is a DocumentStore backed by the store's REST gateway.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	token   func(ctx context.Context) string
}

// NewHTTPStore creates a REST client for the document store.
func NewHTTPStore(cfg Config) *HTTPStore {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		token:   cfg.Token,
	}
}

type queryRequest struct {
	Where []Query `json:"where,omitempty"`
}

type queryResponse struct {
	Documents []Document `json:"documents"`
}

type writeRequest struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type writeResponse struct {
	ID string `json:"id"`
}

func (s *HTTPStore) docURL(collection, id string) string {
	return fmt.Sprintf("%s/v1/%s/%s", s.baseURL, url.PathEscape(collection), url.PathEscape(id))
}

func (s *HTTPStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var doc Document
	if err := s.do(ctx, "get "+collection, http.MethodGet, s.docURL(collection, id), nil, &doc); err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = id
	}
	doc.Collection = collection
	return &doc, nil
}

func (s *HTTPStore) Query(ctx context.Context, q Query) ([]Document, error) {
	return s.query(ctx, q.Collection, queryRequest{Where: []Query{q}})
}

func (s *HTTPStore) query(ctx context.Context, collection string, body queryRequest) ([]Document, error) {
	endpoint := fmt.Sprintf("%s/v1/%s:query", s.baseURL, url.PathEscape(collection))
	var resp queryResponse
	if err := s.do(ctx, "query "+collection, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Documents {
		resp.Documents[i].Collection = collection
	}
	return resp.Documents, nil
}

// Create writes a new document. An empty id lets the store assign one.
func (s *HTTPStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/%s", s.baseURL, url.PathEscape(collection))
	var resp writeResponse
	if err := s.do(ctx, "create "+collection, http.MethodPost, endpoint, writeRequest{ID: id, Fields: fields}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		resp.ID = id
	}
	return resp.ID, nil
}

func (s *HTTPStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.do(ctx, "update "+collection, http.MethodPatch, s.docURL(collection, id), writeRequest{Fields: fields}, nil)
}

func (s *HTTPStore) Delete(ctx context.Context, collection, id string) error {
	return s.do(ctx, "delete "+collection, http.MethodDelete, s.docURL(collection, id), nil, nil)
}

func (s *HTTPStore) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.token != nil {
		if tok := s.token(ctx); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	case resp.StatusCode >= 300:
		return &TransportError{Op: op, Status: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
