// Package disk is a thin client for the Yandex Disk REST API. The server
// proxies storage operations through it so browser clients never hold the
// OAuth token themselves.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/clearcut-studio/studio-server/pkg/logger"
)

const DefaultBaseURL = "https://cloud-api.yandex.net/v1/disk"

// Client talks to the Yandex Disk cloud API with a fixed OAuth token per
// call. The base URL is a field so tests can point it at a local server.
type Client struct {
	BaseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	return &Client{
		BaseURL: DefaultBaseURL,
		http:    httpClient,
		logger:  logger.GetLogger(),
	}
}

// Resource is a single Disk entry. Embedded holds children when the entry
// is a directory and the listing was requested with an embedded limit.
type Resource struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Type     string    `json:"type"`
	MimeType string    `json:"mime_type,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Preview  string    `json:"preview,omitempty"`
	Embedded *Embedded `json:"_embedded,omitempty"`
}

type Embedded struct {
	Items []Resource `json:"items"`
	Total int        `json:"total"`
}

func (r Resource) IsDir() bool { return r.Type == "dir" }

// Quota is the subset of account info the proxy exposes.
type Quota struct {
	TotalSpace int64 `json:"total_space"`
	UsedSpace  int64 `json:"used_space"`
	TrashSize  int64 `json:"trash_size"`
}

type apiError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
	ErrorCode   string `json:"error"`
}

// Error is a non-2xx reply from the Disk API.
type Error struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("disk api: %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("disk api: status %d", e.StatusCode)
}

// IsConflict reports whether the error is a 409, which on folder creation
// means the folder already exists.
func (e *Error) IsConflict() bool { return e.StatusCode == http.StatusConflict }

// Check verifies the token by requesting account info.
func (c *Client) Check(ctx context.Context, token string) error {
	_, err := c.AccountInfo(ctx, token)
	return err
}

// AccountInfo fetches quota for the token's account.
func (c *Client) AccountInfo(ctx context.Context, token string) (*Quota, error) {
	var quota Quota
	if err := c.getJSON(ctx, token, "", nil, &quota); err != nil {
		return nil, err
	}
	return &quota, nil
}

// List fetches a resource with up to limit embedded children.
func (c *Client) List(ctx context.Context, token, path string, limit int) (*Resource, error) {
	query := url.Values{"path": {path}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var res Resource
	if err := c.getJSON(ctx, token, "/resources", query, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DownloadLink resolves the short-lived href for downloading path.
func (c *Client) DownloadLink(ctx context.Context, token, path string) (string, error) {
	return c.link(ctx, token, "/resources/download", url.Values{"path": {path}})
}

// Download streams the file at path. The caller owns the returned reader.
func (c *Client) Download(ctx context.Context, token, path string) (io.ReadCloser, error) {
	href, err := c.DownloadLink(ctx, token, path)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, token, href)
}

// PublicList fetches a published resource by its public key or URL.
func (c *Client) PublicList(ctx context.Context, publicKey, path string, limit int) (*Resource, error) {
	query := url.Values{"public_key": {publicKey}}
	if path != "" {
		query.Set("path", path)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var res Resource
	if err := c.getJSON(ctx, "", "/public/resources", query, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PublicDownload streams a file inside a published folder. No token is
// required for public resources.
func (c *Client) PublicDownload(ctx context.Context, publicKey, path string) (io.ReadCloser, error) {
	query := url.Values{"public_key": {publicKey}}
	if path != "" {
		query.Set("path", path)
	}

	href, err := c.link(ctx, "", "/public/resources/download", query)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, "", href)
}

// Upload writes body to path, overwriting any existing file.
func (c *Client) Upload(ctx context.Context, token, path string, body io.Reader) error {
	href, err := c.link(ctx, token, "/resources/upload", url.Values{
		"path":      {path},
		"overwrite": {"true"},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, href, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	return nil
}

// CreateFolder creates path. The exists return is true when the folder was
// already there; that case is not an error.
func (c *Client) CreateFolder(ctx context.Context, token, path string) (exists bool, err error) {
	endpoint := c.BaseURL + "/resources?" + url.Values{"path": {path}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, nil)
	if err != nil {
		return false, err
	}
	c.authorize(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return true, nil
	case resp.StatusCode >= 300:
		return false, c.decodeError(resp)
	}
	return false, nil
}

func (c *Client) link(ctx context.Context, token, endpoint string, query url.Values) (string, error) {
	var payload struct {
		Href string `json:"href"`
	}
	if err := c.getJSON(ctx, token, endpoint, query, &payload); err != nil {
		return "", err
	}
	return payload.Href, nil
}

func (c *Client) fetch(ctx context.Context, token, href string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.decodeError(resp)
	}
	return resp.Body, nil
}

func (c *Client) getJSON(ctx context.Context, token, endpoint string, query url.Values, out any) error {
	u := c.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	c.authorize(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) authorize(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "OAuth "+token)
	}
}

func (c *Client) decodeError(resp *http.Response) error {
	var body apiError
	_ = json.NewDecoder(resp.Body).Decode(&body)

	c.logger.Debug("disk api error",
		zap.Int("status", resp.StatusCode),
		zap.String("code", body.ErrorCode))

	return &Error{
		StatusCode:  resp.StatusCode,
		Code:        body.ErrorCode,
		Description: body.Description,
	}
}
