package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotFound = errors.New("blob not found")

// ErrUnavailable wraps transport failures so handlers can answer 502.
var ErrUnavailable = errors.New("blob store unavailable")

type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("blob %s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

type Config struct {
	BaseURL      string
	UploadPath   string
	DownloadPath string
	HTTPClient   *http.Client
}

// Client speaks the RustFS HTTP API.
type Client struct {
	baseURL      string
	uploadPath   string
	downloadPath string
	http         *http.Client
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.UploadPath == "" {
		cfg.UploadPath = "/api/v1/upload"
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/download"
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		uploadPath:   cfg.UploadPath,
		downloadPath: cfg.DownloadPath,
		http:         hc,
	}
}

// Upload sends data as multipart field "file" and returns the URL the store answers with.
func (c *Client) Upload(ctx context.Context, data []byte, filename, bucket string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("blob upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("blob upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("blob upload: %w", err)
	}

	q := url.Values{}
	q.Set("bucket", bucket)
	q.Set("filename", filename)
	target := c.baseURL + c.uploadPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return "", fmt.Errorf("blob upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	out, err := c.do(req, "upload")
	if err != nil {
		return "", err
	}

	fileURL := strings.TrimSpace(string(out))
	if fileURL == "" {
		return "", &StatusError{Op: "upload", Status: http.StatusOK, Body: "empty file url"}
	}
	// some deployments answer with a bare file id instead of a location
	if !strings.Contains(fileURL, "/") {
		return c.FileURL(fileURL), nil
	}
	return fileURL, nil
}

func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(fileURL), nil)
	if err != nil {
		return nil, fmt.Errorf("blob download: %w", err)
	}
	return c.do(req, "download")
}

func (c *Client) Delete(ctx context.Context, fileURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.resolve(fileURL), nil)
	if err != nil {
		return fmt.Errorf("blob delete: %w", err)
	}
	_, err = c.do(req, "delete")
	return err
}

// FileURL builds the download URL for a stored file id.
func (c *Client) FileURL(fileID string) string {
	return c.baseURL + c.downloadPath + "/" + url.PathEscape(fileID)
}

// resolve keeps absolute URLs and roots relative ones at the base.
func (c *Client) resolve(fileURL string) string {
	if strings.HasPrefix(fileURL, "http://") || strings.HasPrefix(fileURL, "https://") {
		return fileURL
	}
	return c.baseURL + "/" + strings.TrimLeft(fileURL, "/")
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w: %w", op, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("blob %s: read body: %w: %w", op, ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("blob %s: %w", op, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return b, nil
}
