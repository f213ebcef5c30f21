// Package cms talks to the Sanity content API: GROQ queries for the sync
// paths and createOrReplace mutations for seeding.
package cms

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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/alexdfirestone/national-parks/internal/config"
	"github.com/alexdfirestone/national-parks/internal/observability"
)

const defaultTimeout = 15 * time.Second

// Config configures a Client.
type Config struct {
	ProjectID  string
	Dataset    string
	APIVersion string
	Token      string
	UseCDN     bool
	RateLimit  float64
	Timeout    time.Duration

	// BaseURL replaces https://<project>.api.sanity.io when set.
	BaseURL string
}

// ConfigFrom builds a client config from application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ProjectID:  cfg.SanityProjectID,
		Dataset:    cfg.SanityDataset,
		APIVersion: cfg.SanityAPIVersion,
		Token:      cfg.SanityToken,
		UseCDN:     cfg.SanityUseCDN,
		RateLimit:  cfg.SanityRateLimit,
	}
}

// APIError is a non-2xx response from the CMS.
type APIError struct {
	Status      int
	Type        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("cms returned %d: %s", e.Status, e.Description)
	}
	return fmt.Sprintf("cms returned %d", e.Status)
}

// Client is a rate-limited Sanity HTTP client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	apiBase    string
	cdnBase    string
}

// NewClient creates a client. ProjectID and Dataset are required.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("cms: project id is required")
	}
	if cfg.Dataset == "" {
		return nil, errors.New("cms: dataset is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-01-01"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		apiBase:    fmt.Sprintf("https://%s.api.sanity.io", cfg.ProjectID),
		cdnBase:    fmt.Sprintf("https://%s.apicdn.sanity.io", cfg.ProjectID),
	}
	if cfg.BaseURL != "" {
		c.apiBase = strings.TrimRight(cfg.BaseURL, "/")
		c.cdnBase = c.apiBase
	}
	return c, nil
}

// ProjectID returns the configured project.
func (c *Client) ProjectID() string { return c.cfg.ProjectID }

// Dataset returns the configured dataset.
func (c *Client) Dataset() string { return c.cfg.Dataset }

// Transformer returns a Transformer bound to this project and dataset.
func (c *Client) Transformer() Transformer {
	return Transformer{ProjectID: c.cfg.ProjectID, Dataset: c.cfg.Dataset}
}

// Query runs a GROQ query and decodes its result into dest. It reads from
// the CDN when the client is configured to.
func (c *Client) Query(ctx context.Context, query string, params map[string]any, dest any) error {
	base := c.apiBase
	if c.cfg.UseCDN {
		base = c.cdnBase
	}
	return c.query(ctx, base, "query", query, params, dest)
}

// FetchParks returns every published park. Sync reads bypass the CDN.
func (c *Client) FetchParks(ctx context.Context) ([]ParkDocument, error) {
	var docs []ParkDocument
	if err := c.query(ctx, c.apiBase, "fetch_parks", QueryAllParks, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// FetchCategories returns every published category.
func (c *Client) FetchCategories(ctx context.Context) ([]CategoryDocument, error) {
	var docs []CategoryDocument
	if err := c.query(ctx, c.apiBase, "fetch_categories", QueryAllCategories, nil, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// FetchPark returns the park with the given id, or nil when it does not exist.
func (c *Client) FetchPark(ctx context.Context, id string) (*ParkDocument, error) {
	var doc *ParkDocument
	if err := c.query(ctx, c.apiBase, "fetch_park", QueryParkByID, map[string]any{"id": id}, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FetchCategory returns the category with the given id, or nil.
func (c *Client) FetchCategory(ctx context.Context, id string) (*CategoryDocument, error) {
	var doc *CategoryDocument
	if err := c.query(ctx, c.apiBase, "fetch_category", QueryCategoryByID, map[string]any{"id": id}, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

type errorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"error"`
	Message string `json:"message"`
}

func (c *Client) query(ctx context.Context, base, operation, query string, params map[string]any, dest any) error {
	values := url.Values{}
	values.Set("query", query)
	values.Set("perspective", "published")
	for name, v := range params {
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode param %s: %w", name, err)
		}
		values.Set("$"+name, string(encoded))
	}
	endpoint := fmt.Sprintf("%s/v%s/data/query/%s?%s", base, c.cfg.APIVersion, url.PathEscape(c.cfg.Dataset), values.Encode())

	body, err := c.do(ctx, operation, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	if len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, dest); err != nil {
		return fmt.Errorf("decode %s result: %w", operation, err)
	}
	return nil
}

// Mutation is one entry of a mutate request.
type Mutation struct {
	CreateOrReplace any            `json:"createOrReplace,omitempty"`
	Delete          *DeleteByID    `json:"delete,omitempty"`
	Patch           map[string]any `json:"patch,omitempty"`
}

// DeleteByID deletes a document by id.
type DeleteByID struct {
	ID string `json:"id"`
}

// MutateResult lists the documents a mutation touched.
type MutateResult struct {
	TransactionID string `json:"transactionId"`
	Results       []struct {
		ID        string `json:"id"`
		Operation string `json:"operation"`
	} `json:"results"`
}

// Mutate applies mutations in one transaction. A token is required.
func (c *Client) Mutate(ctx context.Context, mutations ...Mutation) (*MutateResult, error) {
	if c.cfg.Token == "" {
		return nil, errors.New("cms: a write token is required for mutations")
	}
	if len(mutations) == 0 {
		return &MutateResult{}, nil
	}
	payload, err := json.Marshal(map[string]any{"mutations": mutations})
	if err != nil {
		return nil, fmt.Errorf("encode mutations: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v%s/data/mutate/%s?returnIds=true", c.apiBase, c.cfg.APIVersion, url.PathEscape(c.cfg.Dataset))

	body, err := c.do(ctx, "mutate", http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}
	var result MutateResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode mutate response: %w", err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, operation, method, endpoint string, payload []byte) ([]byte, error) {
	ctx, span := observability.StartCMSSpan(ctx, operation, c.cfg.Dataset)
	defer span.End()
	defer observability.TrackCMSRequest(operation)()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("cms rate limit: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build cms request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("cms %s: %w", operation, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read cms response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var decoded errorResponse
		if json.Unmarshal(body, &decoded) == nil {
			apiErr.Type = decoded.Error.Type
			apiErr.Description = decoded.Error.Description
			if apiErr.Description == "" {
				apiErr.Description = decoded.Message
			}
		}
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}
	return body, nil
}
