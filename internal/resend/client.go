package resend

import (
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

const (
	defaultBaseURL         = "https://api.resend.com"
	defaultAPITimeout      = 30 * time.Second
	defaultDownloadTimeout = 120 * time.Second
	defaultMaxBytes        = 40 << 20 // 40MB
	maxErrorBody           = 4 << 10
)

// ErrTooLarge reports a download exceeding the configured size cap.
var ErrTooLarge = errors.New("attachment exceeds size limit")

// APIError is a non-2xx response from the Resend API or the download host.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("resend api status %d: %s", e.StatusCode, e.Body)
}

// Attachment is the authoritative detail of a received attachment.
type Attachment struct {
	ID                 string `json:"id"`
	Filename           string `json:"filename"`
	ContentType        string `json:"content_type"`
	ContentDisposition string `json:"content_disposition"`
	ContentID          string `json:"content_id"`
	DownloadURL        string `json:"download_url"`
	ExpiresAt          string `json:"expires_at"`
	Size               int64  `json:"size"`
}

// Options configures the client.
type Options struct {
	APIKey          string
	BaseURL         string
	APITimeout      time.Duration
	DownloadTimeout time.Duration
	MaxBytes        int64
}

// Client talks to the Resend receiving API.
type Client struct {
	apiKey     string
	baseURL    string
	api        *http.Client
	downloader *http.Client
	maxBytes   int64
}

// NewClient constructs a Resend client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("RESEND_API_KEY is required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	apiTimeout := opts.APITimeout
	if apiTimeout <= 0 {
		apiTimeout = defaultAPITimeout
	}
	downloadTimeout := opts.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = defaultDownloadTimeout
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    base,
		api:        &http.Client{Timeout: apiTimeout},
		downloader: &http.Client{Timeout: downloadTimeout},
		maxBytes:   maxBytes,
	}, nil
}

// GetAttachment fetches attachment detail, including a short-lived download URL.
func (c *Client) GetAttachment(ctx context.Context, emailID, attachmentID string) (Attachment, error) {
	if strings.TrimSpace(emailID) == "" || strings.TrimSpace(attachmentID) == "" {
		return Attachment{}, fmt.Errorf("email id and attachment id are required")
	}
	endpoint := fmt.Sprintf("%s/emails/receiving/%s/attachments/%s",
		c.baseURL, url.PathEscape(emailID), url.PathEscape(attachmentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Attachment{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return Attachment{}, fmt.Errorf("get attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Attachment{}, apiError(resp)
	}

	var out Attachment
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Attachment{}, fmt.Errorf("decode attachment: %w", err)
	}
	if strings.TrimSpace(out.DownloadURL) == "" {
		return Attachment{}, fmt.Errorf("attachment %s has no download url", attachmentID)
	}
	return out, nil
}

// Download fetches the binary behind a download URL, bounded by the size cap.
func (c *Client) Download(ctx context.Context, downloadURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.downloader.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp)
	}
	if resp.ContentLength > c.maxBytes {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment body: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
