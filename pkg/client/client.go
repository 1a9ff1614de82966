// Package client is a Go client for the fhe-server HTTP API.
package client

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
	"time"
)

// Error codes reported by the server.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeTypeMismatch         = "TYPE_MISMATCH"
	CodeInvalidArgument      = "INVALID_ARGUMENT"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeSerialization        = "SERIALIZATION"
	CodeInternalCrypto       = "INTERNAL_CRYPTO"
	CodeUnavailable          = "UNAVAILABLE"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.Status)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type Keys struct {
	ClientKeyID string `json:"client_key_id"`
	ServerKeyID string `json:"server_key_id"`
}

// Source names a ciphertext to decrypt, either by ID or by its serialized
// envelope.
type Source struct {
	ID   string
	Data []byte
}

func ByID(id string) Source     { return Source{ID: id} }
func Inline(data []byte) Source { return Source{Data: data} }

func (s Source) request(clientKeyID string) decryptRequest {
	return decryptRequest{ClientKeyID: clientKeyID, EncryptedDataID: s.ID, SerializedData: s.Data}
}

type decryptRequest struct {
	ClientKeyID     string `json:"client_key_id"`
	EncryptedDataID string `json:"encrypted_data_id,omitempty"`
	SerializedData  []byte `json:"serialized_data,omitempty"`
}

// Job is the state of an asynchronous evaluation.
type Job struct {
	ID          string    `json:"id"`
	ServerKeyID string    `json:"server_key_id"`
	Operation   string    `json:"operation"`
	OperandIDs  []string  `json:"operand_ids"`
	Status      string    `json:"status"`
	ResultID    string    `json:"result_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	Code        string    `json:"code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == "completed" || j.Status == "failed"
}

type Stats struct {
	Objects     map[string]int64 `json:"objects"`
	Evaluations struct {
		TotalExecutions int64 `json:"total_executions"`
		SuccessCount    int64 `json:"success_count"`
		FailureCount    int64 `json:"failure_count"`
	} `json:"evaluations"`
	Compute *struct {
		Slots int `json:"slots"`
		Busy  int `json:"busy"`
	} `json:"compute,omitempty"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPollInterval sets how often WaitJob polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.poll = d }
}

// Client talks to one fhe-server.
type Client struct {
	baseURL string
	http    *http.Client
	poll    time.Duration
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Minute},
		poll:    250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) GenerateKeys(ctx context.Context, parameterSet string) (Keys, error) {
	var keys Keys
	err := c.do(ctx, http.MethodPost, "/v1/keys", map[string]string{"parameter_set": parameterSet}, &keys)
	return keys, err
}

type encryptResponse struct {
	EncryptedDataID string `json:"encrypted_data_id"`
}

func (c *Client) EncryptBoolean(ctx context.Context, clientKeyID string, value bool) (string, error) {
	var resp encryptResponse
	err := c.do(ctx, http.MethodPost, "/v1/encrypt/boolean", map[string]any{
		"client_key_id": clientKeyID,
		"value":         value,
	}, &resp)
	return resp.EncryptedDataID, err
}

func (c *Client) EncryptInteger(ctx context.Context, clientKeyID string, value int64, numBits uint32) (string, error) {
	var resp encryptResponse
	err := c.do(ctx, http.MethodPost, "/v1/encrypt/integer", map[string]any{
		"client_key_id": clientKeyID,
		"value":         value,
		"num_bits":      numBits,
	}, &resp)
	return resp.EncryptedDataID, err
}

// Evaluate applies operation (e.g. "AND", "ADD") to the operands and returns
// the result ID.
func (c *Client) Evaluate(ctx context.Context, serverKeyID, operation string, operandIDs ...string) (string, error) {
	var resp struct {
		ResultID string `json:"result_id"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/evaluate", evaluateRequest(serverKeyID, operation, operandIDs), &resp)
	return resp.ResultID, err
}

func evaluateRequest(serverKeyID, operation string, operandIDs []string) map[string]any {
	if operandIDs == nil {
		operandIDs = []string{}
	}
	return map[string]any{
		"server_key_id": serverKeyID,
		"operation":     operation,
		"operand_ids":   operandIDs,
	}
}

func (c *Client) DecryptBoolean(ctx context.Context, clientKeyID string, src Source) (bool, error) {
	var resp struct {
		Value bool `json:"value"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/decrypt/boolean", src.request(clientKeyID), &resp)
	return resp.Value, err
}

func (c *Client) DecryptInteger(ctx context.Context, clientKeyID string, src Source) (int64, error) {
	var resp struct {
		Value int64 `json:"value"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/decrypt/integer", src.request(clientKeyID), &resp)
	return resp.Value, err
}

// Export returns the serialized envelope of a stored ciphertext.
func (c *Client) Export(ctx context.Context, id string) ([]byte, error) {
	var resp struct {
		SerializedData []byte `json:"serialized_data"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/ciphertexts/"+url.PathEscape(id), nil, &resp)
	return resp.SerializedData, err
}

func (c *Client) SubmitJob(ctx context.Context, serverKeyID, operation string, operandIDs ...string) (string, error) {
	var resp struct {
		JobID string `json:"job_id"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/jobs", evaluateRequest(serverKeyID, operation, operandIDs), &resp)
	return resp.JobID, err
}

func (c *Client) Job(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitJob polls until the job is done or ctx ends.
func (c *Client) WaitJob(ctx context.Context, id string) (*Job, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, &stats)
	return stats, err
}

// Health returns nil when the server reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
