package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/clovenbradshaw-ctrl/eosync/pkg/errors"
)

// HTTPStore is a Store backed by a REST tabular-store API. Calls run
// through a circuit breaker so a degraded remote trips open instead of
// absorbing a request per scheduled pass.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPStore) {
		s.client = c
	}
}

// NewHTTPStore creates a Store talking to the API rooted at baseURL,
// authenticating with a bearer token.
func NewHTTPStore(baseURL, token string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "remote-store",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return s
}

// Schema lists the remote tables and their field definitions.
func (s *HTTPStore) Schema(ctx context.Context) ([]Table, error) {
	var out struct {
		Tables []Table `json:"tables"`
	}
	if err := s.get(ctx, "/v1/schema", &out); err != nil {
		return nil, err
	}
	return out.Tables, nil
}

// Records fetches all rows of a table.
func (s *HTTPStore) Records(ctx context.Context, tableRef string) ([]Record, error) {
	var out struct {
		Records []Record `json:"records"`
	}
	path := "/v1/tables/" + url.PathEscape(tableRef) + "/records"
	if err := s.get(ctx, path, &out); err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range out.Records {
		out.Records[i].FetchedAt = now
	}
	return out.Records, nil
}

// Write creates or replaces a row.
func (s *HTTPStore) Write(ctx context.Context, tableRef string, rec Record) error {
	path := "/v1/tables/" + url.PathEscape(tableRef) + "/records/" + url.PathEscape(rec.ID)
	return s.do(ctx, http.MethodPut, path, rec, nil)
}

// Delete removes a row.
func (s *HTTPStore) Delete(ctx context.Context, tableRef string, id string) error {
	path := "/v1/tables/" + url.PathEscape(tableRef) + "/records/" + url.PathEscape(id)
	return s.do(ctx, http.MethodDelete, path, nil, nil)
}

func (s *HTTPStore) get(ctx context.Context, path string, out any) error {
	return s.do(ctx, http.MethodGet, path, nil, out)
}

// do executes one API call through the circuit breaker, mapping HTTP
// status codes into the error taxonomy.
func (s *HTTPStore) do(ctx context.Context, method, path string, body, out any) error {
	_, err := s.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encoding request body: %w", err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+s.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, &errors.RemoteError{Endpoint: path, Message: "request failed", Err: err}
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, errors.NewRemoteError(path, resp.StatusCode, string(msg))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, &errors.RemoteError{Endpoint: path, Message: "decoding response", Err: err}
			}
		}
		return nil, nil
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &errors.RemoteError{Endpoint: path, StatusCode: 503, Message: "circuit open", Err: errors.ErrUnavailable}
	}
	return err
}
