package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TokenStore is the locally persisted storage credential. The client never
// assumes a token is present: with an empty token every call rides on the
// proxy's server-side default.
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type File struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url,omitempty"`
	MIME string `json:"mime_type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type AccountInfo struct {
	Login        string  `json:"login"`
	DisplayName  string  `json:"display_name"`
	UID          string  `json:"uid"`
	TotalSpaceGB float64 `json:"total_space_gb"`
	UsedSpaceGB  float64 `json:"used_space_gb"`
	FreeSpaceGB  float64 `json:"free_space_gb"`
}

type UploadResult struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
}

type FolderCreation struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
}

// StorageClient wraps the cloud-storage proxy endpoints. It never talks to
// the cloud provider directly; every call goes through the intermediary
// HTTP layer which hides credentials and cross-origin concerns.
type StorageClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
}

func NewStorageClient(baseURL string, httpClient *http.Client, tokens TokenStore) *StorageClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &StorageClient{baseURL: baseURL, http: httpClient, tokens: tokens}
}

func (c *StorageClient) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return ""
	}

	return token
}

// CheckAuth reports whether storage operations can proceed: either the
// locally held token validates, or the proxy has a server-side default. An
// invalid local token is cleared as a side effect.
func (c *StorageClient) CheckAuth(ctx context.Context) (bool, error) {
	local := c.token(ctx)

	var result struct {
		Authenticated bool   `json:"authenticated"`
		Token         string `json:"token"`
		FromEnv       bool   `json:"from_env"`
	}
	if err := c.getJSON(ctx, "/api/yandex/check", url.Values{"token": {local}}, &result); err != nil {
		return false, err
	}

	if result.Authenticated {
		return true, nil
	}

	if local != "" {
		if c.tokens != nil {
			// The local token no longer validates; drop it and fall
			// back to the server-side default, if any.
			_ = c.tokens.ClearToken(ctx)
		}

		if err := c.getJSON(ctx, "/api/yandex/check", url.Values{}, &result); err != nil {
			return false, err
		}
		return result.Authenticated, nil
	}

	return false, nil
}

func (c *StorageClient) ListTopFolders(ctx context.Context) ([]Folder, error) {
	var result struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.getJSON(ctx, "/api/yandex/folders", c.authValues(ctx), &result); err != nil {
		return nil, err
	}

	return result.Folders, nil
}

func (c *StorageClient) ListFolderFiles(ctx context.Context, path string) ([]File, error) {
	values := c.authValues(ctx)
	values.Set("path", path)

	var result struct {
		Files []File `json:"files"`
	}
	if err := c.getJSON(ctx, "/api/yandex/files", values, &result); err != nil {
		return nil, err
	}

	return result.Files, nil
}

// ListStructure fetches one level of the folder tree. With lazy set, child
// folders come back unloaded and are fetched per expand via LoadChildren.
func (c *StorageClient) ListStructure(ctx context.Context, path string, lazy bool) ([]*Node, error) {
	values := c.authValues(ctx)
	values.Set("path", path)
	values.Set("lazy", strconv.FormatBool(lazy))

	var result struct {
		Structure []structureEntry `json:"structure"`
	}
	if err := c.getJSON(ctx, "/api/yandex/structure", values, &result); err != nil {
		return nil, err
	}

	nodes := make([]*Node, 0, len(result.Structure))
	for _, entry := range result.Structure {
		nodes = append(nodes, entry.node())
	}

	return nodes, nil
}

func (c *StorageClient) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.getJSON(ctx, "/api/yandex/account-info", c.authValues(ctx), &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// DownloadFile fetches a file through the proxy. A 200 response with a
// zero-length body is a failure: some storage errors materialize as empty
// downloads rather than error statuses.
func (c *StorageClient) DownloadFile(ctx context.Context, path string) (Artifact, error) {
	values := c.authValues(ctx)
	values.Set("path", path)

	resp, err := c.get(ctx, "/api/yandex/download", values)
	if err != nil {
		return Artifact{}, &DownloadError{Path: path, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Artifact{}, &DownloadError{Path: path, Message: errorDetail(resp, fmt.Sprintf("unexpected status %d", resp.StatusCode))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Artifact{}, &DownloadError{Path: path, Message: err.Error()}
	}

	if len(data) == 0 {
		return Artifact{}, &DownloadError{Path: path, Message: "empty file body"}
	}

	return NewArtifact(data, resp.Header.Get("Content-Type")), nil
}

// DownloadPublicFile fetches a public share URL through the proxy, which
// exists to sidestep browser cross-origin restrictions.
func (c *StorageClient) DownloadPublicFile(ctx context.Context, fileURL string) (Artifact, error) {
	resp, err := c.get(ctx, "/api/yandex/download-public", url.Values{"url": {fileURL}})
	if err != nil {
		return Artifact{}, &DownloadError{Path: fileURL, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Artifact{}, &DownloadError{Path: fileURL, Message: errorDetail(resp, fmt.Sprintf("unexpected status %d", resp.StatusCode))}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Artifact{}, &DownloadError{Path: fileURL, Message: err.Error()}
	}

	if len(data) == 0 {
		return Artifact{}, &DownloadError{Path: fileURL, Message: "empty file body"}
	}

	return NewArtifact(data, resp.Header.Get("Content-Type")), nil
}

func (c *StorageClient) UploadFile(ctx context.Context, path string, art Artifact) (*UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "upload")
	if err != nil {
		return nil, &StorageError{Message: err.Error()}
	}
	if _, err := part.Write(art.Data); err != nil {
		return nil, &StorageError{Message: err.Error()}
	}

	if err := writer.WriteField("path", path); err != nil {
		return nil, &StorageError{Message: err.Error()}
	}
	if token := c.token(ctx); token != "" {
		if err := writer.WriteField("token", token); err != nil {
			return nil, &StorageError{Message: err.Error()}
		}
	}
	if err := writer.Close(); err != nil {
		return nil, &StorageError{Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/yandex/upload", &body)
	if err != nil {
		return nil, &StorageError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &StorageError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StorageError{StatusCode: resp.StatusCode, Message: errorDetail(resp, "upload failed")}
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &StorageError{Message: err.Error()}
	}

	return &result, nil
}

// CreateFolder is idempotent: a 409 from the proxy means the folder
// already exists and is reported as success, never as an error.
func (c *StorageClient) CreateFolder(ctx context.Context, path string) (*FolderCreation, error) {
	values := url.Values{"path": {path}}

	form := url.Values{}
	if token := c.token(ctx); token != "" {
		form.Set("token", token)
	}

	endpoint := c.baseURL + "/api/yandex/create-folder?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, &StorageError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &StorageError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StorageError{StatusCode: resp.StatusCode, Message: errorDetail(resp, "folder creation failed")}
	}

	var result FolderCreation
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &StorageError{Message: err.Error()}
	}

	return &result, nil
}

func (c *StorageClient) ListPublicFiles(ctx context.Context, publicURL string) ([]File, error) {
	var result struct {
		Files []File `json:"files"`
	}
	if err := c.getJSON(ctx, "/api/yandex/public-files", url.Values{"public_url": {publicURL}}, &result); err != nil {
		return nil, err
	}

	return result.Files, nil
}

func (c *StorageClient) authValues(ctx context.Context) url.Values {
	values := url.Values{}
	if token := c.token(ctx); token != "" {
		values.Set("token", token)
	}

	return values
}

func (c *StorageClient) get(ctx context.Context, path string, values url.Values) (*http.Response, error) {
	endpoint := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	return c.http.Do(req)
}

func (c *StorageClient) getJSON(ctx context.Context, path string, values url.Values, out interface{}) error {
	resp, err := c.get(ctx, path, values)
	if err != nil {
		return &StorageError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StorageError{StatusCode: resp.StatusCode, Message: errorDetail(resp, fmt.Sprintf("unexpected status %d", resp.StatusCode))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &StorageError{Message: err.Error()}
	}

	return nil
}
