// Package transport talks to the backend: event batches, campaigns and
// resources, and the identity service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Swrve/swrve-smarttv-sdk/internal/config"
	"github.com/Swrve/swrve-smarttv-sdk/internal/metrics"
	"github.com/Swrve/swrve-smarttv-sdk/internal/models"
	"go.uber.org/zap"
)

// Protocol versions.
const (
	BatchVersion     = 3
	CampaignsVersion = "7"
)

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
}

// Session supplies the identity sent with every request.
type Session interface {
	CurrentUser() models.User
}

// Device is the device description sent with content requests.
type Device struct {
	ID        string
	Language  string
	AppStore  string
	OSVersion string
	Width     int
	Height    int
	DPI       int
}

// Client is the backend REST client. Every call is bounded by the configured
// HTTPS timeout.
type Client struct {
	http    *http.Client
	cfg     config.SDKConfig
	device  Device
	session Session
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client. A nil httpClient uses a default one.
func NewClient(cfg config.SDKConfig, device Device, session Session, httpClient *http.Client,
	logger *zap.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpClient, cfg: cfg, device: device, session: session, logger: logger, metrics: m}
}

// ===========================================
// ENDPOINTS
// ===========================================

func (c *Client) batchURL() string {
	if c.cfg.APIURL != "" {
		return c.cfg.APIURL
	}
	return fmt.Sprintf("https://%d.%s.swrve.com/1/batch", c.cfg.AppID, c.stackPrefix("api"))
}

func (c *Client) contentURL(path string) string {
	if c.cfg.ContentURL != "" {
		return c.cfg.ContentURL + path
	}
	return fmt.Sprintf("https://%d.%s.swrve.com%s", c.cfg.AppID, c.stackPrefix("content"), path)
}

func (c *Client) identityURL() string {
	if c.cfg.IdentityURL != "" {
		return c.cfg.IdentityURL
	}
	return fmt.Sprintf("https://%d.identity.swrve.com/identify", c.cfg.AppID)
}

func (c *Client) stackPrefix(host string) string {
	if c.cfg.Stack == config.StackEU {
		return "eu-" + host
	}
	return host
}

// ===========================================
// BATCH
// ===========================================

type batchBody struct {
	User           string         `json:"user"`
	AppVersion     string         `json:"app_version"`
	SessionToken   string         `json:"session_token"`
	Version        int            `json:"version"`
	UniqueDeviceID string         `json:"unique_device_id"`
	Data           []models.Event `json:"data"`
}

// SendBatch posts events on behalf of userID.
func (c *Client) SendBatch(ctx context.Context, userID string, events []models.Event) error {
	body := batchBody{
		User:           userID,
		AppVersion:     c.cfg.AppVersion,
		SessionToken:   c.session.CurrentUser().SessionToken,
		Version:        BatchVersion,
		UniqueDeviceID: c.device.ID,
		Data:           events,
	}
	resp, err := c.do(ctx, "batch", http.MethodPost, c.batchURL(), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if !ok(resp.StatusCode) {
		return &StatusError{Endpoint: "batch", Code: resp.StatusCode}
	}
	return nil
}

// ===========================================
// CONTENT
// ===========================================

// Campaigns fetches campaigns and resources. It returns the response and
// its ETag. A 304 or an empty body yields an empty response.
func (c *Client) Campaigns(ctx context.Context) (*models.CampaignsResponse, string, error) {
	user := c.session.CurrentUser()
	q := c.contentQuery(user)
	if user.ETag != "" {
		q.Set("etag", user.ETag)
	}
	target := c.contentURL("/api/1/user_resources_and_campaigns") + "?" + q.Encode()

	resp, err := c.do(ctx, "campaigns", http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	etag := resp.Header.Get("ETag")
	if resp.StatusCode == http.StatusNotModified {
		return &models.CampaignsResponse{}, etag, nil
	}
	if !ok(resp.StatusCode) {
		return nil, "", &StatusError{Endpoint: "campaigns", Code: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read campaigns response: %w", err)
	}
	out := &models.CampaignsResponse{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, etag, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, "", fmt.Errorf("failed to decode campaigns response: %w", err)
	}
	return out, etag, nil
}

// ResourcesDiff fetches the A/B test differences of the user's resources.
func (c *Client) ResourcesDiff(ctx context.Context) ([]models.ResourceDiff, error) {
	q := c.contentQuery(c.session.CurrentUser())
	target := c.contentURL("/api/1/user_resources_diff") + "?" + q.Encode()

	resp, err := c.do(ctx, "resources_diff", http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if !ok(resp.StatusCode) {
		return nil, &StatusError{Endpoint: "resources_diff", Code: resp.StatusCode}
	}

	var diffs []models.ResourceDiff
	if err := json.NewDecoder(resp.Body).Decode(&diffs); err != nil {
		return nil, fmt.Errorf("failed to decode resources diff: %w", err)
	}
	return diffs, nil
}

func (c *Client) contentQuery(user models.User) url.Values {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("user", user.UserID)
	if c.cfg.AppVersion != "" {
		q.Set("app_version", c.cfg.AppVersion)
	}
	q.Set("joined", strconv.FormatInt(user.FirstUse, 10))
	q.Set("version", CampaignsVersion)
	q.Set("language", c.device.Language)
	q.Set("app_store", c.device.AppStore)
	q.Set("device_width", strconv.Itoa(c.device.Width))
	q.Set("device_height", strconv.Itoa(c.device.Height))
	q.Set("device_dpi", strconv.Itoa(c.device.DPI))
	q.Set("device_name", c.device.ID)
	q.Set("os_version", c.device.OSVersion)
	q.Set("orientation", "landscape")
	q.Set("session_token", user.SessionToken)
	return q
}

// ===========================================
// IDENTITY
// ===========================================

type identifyBody struct {
	APIKey         string `json:"api_key"`
	SwrveID        string `json:"swrve_id"`
	ExternalUserID string `json:"external_user_id"`
	UniqueDeviceID string `json:"unique_device_id"`
}

// Identify resolves externalID against the identity service.
func (c *Client) Identify(ctx context.Context, externalID, swrveID string) (*models.IdentityResponse, error) {
	body := identifyBody{
		APIKey:         c.cfg.APIKey,
		SwrveID:        swrveID,
		ExternalUserID: externalID,
		UniqueDeviceID: c.device.ID,
	}
	resp, err := c.do(ctx, "identify", http.MethodPost, c.identityURL(), body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if !ok(resp.StatusCode) {
		return nil, &StatusError{Endpoint: "identify", Code: resp.StatusCode}
	}

	var out models.IdentityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode identify response: %w", err)
	}
	return &out, nil
}

// ===========================================
// PLUMBING
// ===========================================

// do sends one request bounded by the HTTPS timeout. The caller closes the
// body. The timeout context is released when the body is closed.
func (c *Client) do(ctx context.Context, endpoint, method, target string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(b)
	}

	timeout := c.cfg.HTTPSTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.http.Do(req)
	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	if c.metrics != nil {
		c.metrics.RecordHTTPRequest(endpoint, code, time.Since(start))
	}
	if err != nil {
		cancel()
		c.logger.Warn("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	c.logger.Debug("request completed",
		zap.String("endpoint", endpoint),
		zap.Int("status", code),
		zap.Duration("latency", time.Since(start)),
	)
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func ok(code int) bool {
	return code >= 200 && code <= 299
}
