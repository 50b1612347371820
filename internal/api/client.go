// Package api is the typed HTTP client for the loan server.
package api

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

	"github.com/segyhp/loan-tracker/internal/domain"
)

// HealthPath is the canonical health endpoint probed before every operation
const HealthPath = "/health"

// ErrEmptyResponse is returned when a 2xx answer carries no body where a
// resource was expected
var ErrEmptyResponse = errors.New("empty response body")

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client talks to the loan server
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
}

// NewClient creates a client for baseURL. Requests time out after timeout;
// zero means 30s.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "loan-tracker/1.0",
		},
	}, nil
}

// Health performs one GET against the health endpoint
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, HealthPath, nil, nil)
}

func (c *Client) ListLoans(ctx context.Context) ([]*domain.Loan, error) {
	var loans []*domain.Loan
	if err := c.do(ctx, http.MethodGet, "/loans", nil, &loans); err != nil {
		return nil, err
	}
	for _, loan := range loans {
		loan.Recalculate()
	}
	if loans == nil {
		loans = []*domain.Loan{}
	}
	return loans, nil
}

func (c *Client) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	var loan domain.Loan
	if err := c.do(ctx, http.MethodGet, loanPath(id), nil, &loan); err != nil {
		return nil, err
	}
	loan.Recalculate()
	return &loan, nil
}

func (c *Client) CreateLoan(ctx context.Context, req *domain.CreateLoanRequest) (*domain.Loan, error) {
	var loan domain.Loan
	if err := c.do(ctx, http.MethodPost, "/loans", req, &loan); err != nil {
		return nil, err
	}
	loan.Recalculate()
	return &loan, nil
}

func (c *Client) DeleteLoan(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, loanPath(id), nil, nil)
}

func (c *Client) AddPayment(ctx context.Context, loanID string, req *domain.AddPaymentRequest) (*domain.Payment, error) {
	var payment domain.Payment
	if err := c.do(ctx, http.MethodPost, loanPath(loanID)+"/payments", req, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) DeletePayment(ctx context.Context, loanID, paymentID string) error {
	return c.do(ctx, http.MethodDelete, paymentPath(loanID, paymentID), nil, nil)
}

func (c *Client) UpdatePayment(ctx context.Context, loanID, paymentID string, req *domain.UpdatePaymentRequest) (*domain.Payment, error) {
	var payment domain.Payment
	if err := c.do(ctx, http.MethodPut, paymentPath(loanID, paymentID), req, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func loanPath(id string) string {
	return "/loans/" + url.PathEscape(id)
}

func paymentPath(loanID, paymentID string) string {
	return loanPath(loanID) + "/payments/" + url.PathEscape(paymentID)
}

// do sends one request and decodes a 2xx JSON body into out when out is set
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil {
		return nil
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("%s %s: %w", method, path, ErrEmptyResponse)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
