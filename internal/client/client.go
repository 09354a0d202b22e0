package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"
)

// Client is a thin HTTP client for the Cumulus API, used by the command
// line tool.
type Client struct {
	BaseURL string
	Token   string

	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute, // uploads can be large
		},
	}
}

// Node mirrors the server's node view.
type Node struct {
	Kind           string   `json:"kind"`
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ParentIDPath   []string `json:"parent_id_path"`
	ParentNamePath []string `json:"parent_name_path"`
	Size           int64    `json:"size"`
	Shared         bool     `json:"shared"`
	Type           string   `json:"type,omitempty"`
	Parts          int      `json:"parts,omitempty"`
}

// ShareView mirrors the server's share resolution response.
type ShareView struct {
	Folder Node   `json:"folder"`
	Nodes  []Node `json:"nodes"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password, totpCode string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/sessions", map[string]string{
		"email":     email,
		"password":  password,
		"totp_code": totpCode,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Logout revokes the current session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/sessions", nil, nil)
}

// ListNodes returns the direct children of a folder, or of the root when
// parentID is empty.
func (c *Client) ListNodes(ctx context.Context, parentID string) ([]Node, error) {
	path := "/api/nodes"
	if parentID != "" {
		path += "?parent_id=" + parentID
	}
	var resp struct {
		Nodes []Node `json:"nodes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// ListSubtree returns every node below a folder.
func (c *Client) ListSubtree(ctx context.Context, folderID string) ([]Node, error) {
	var resp struct {
		Nodes []Node `json:"nodes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/folders/"+folderID+"/tree", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// CreateFolder creates a folder under the given parent ("" for the root).
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*Node, error) {
	body := map[string]any{"name": name}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	node := &Node{}
	if err := c.doJSON(ctx, http.MethodPost, "/api/folders", body, node); err != nil {
		return nil, err
	}
	return node, nil
}

// Upload streams a local file into the given folder ("" for the root).
func (c *Client) Upload(ctx context.Context, parentID, localPath string, r io.Reader) (*Node, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		var err error
		defer func() { pw.CloseWithError(err) }()

		if parentID != "" {
			if err = mw.WriteField("parent_id", parentID); err != nil {
				return
			}
		}
		var part io.Writer
		part, err = mw.CreateFormFile("file", filepath.Base(localPath))
		if err != nil {
			return
		}
		if _, err = io.Copy(part, r); err != nil {
			return
		}
		err = mw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/files", pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}
	node := &Node{}
	if err := json.NewDecoder(resp.Body).Decode(node); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return node, nil
}

// Download opens a file's content stream. The caller must close it.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return c.open(ctx, "/api/files/"+fileID)
}

// DownloadShared opens a file inside a shared folder via its capability key.
func (c *Client) DownloadShared(ctx context.Context, key, fileID string) (io.ReadCloser, error) {
	return c.open(ctx, "/s/"+key+"/files/"+fileID)
}

func (c *Client) open(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}

// Rename gives a file or folder a new name. kind is "file" or "folder".
func (c *Client) Rename(ctx context.Context, kind, id, name string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/"+kind+"s/"+id+"/rename", map[string]string{"name": name}, nil)
}

// Move reparents a file or folder ("" moves to the root).
func (c *Client) Move(ctx context.Context, kind, id, destID string) error {
	body := map[string]any{}
	if destID != "" {
		body["parent_id"] = destID
	}
	return c.doJSON(ctx, http.MethodPost, "/api/"+kind+"s/"+id+"/move", body, nil)
}

// Delete removes a file, or a folder with its whole subtree.
func (c *Client) Delete(ctx context.Context, kind, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/"+kind+"s/"+id, nil, nil)
}

// Share marks a folder shared and returns its capability key.
func (c *Client) Share(ctx context.Context, folderID string) (string, error) {
	var resp struct {
		Key string `json:"key"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/folders/"+folderID+"/share", nil, &resp); err != nil {
		return "", err
	}
	return resp.Key, nil
}

// Unshare revokes a folder's capability key.
func (c *Client) Unshare(ctx context.Context, folderID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/folders/"+folderID+"/share", nil, nil)
}

// ResolveShare fetches the subtree behind a capability key.
func (c *Client) ResolveShare(ctx context.Context, key string) (*ShareView, error) {
	view := &ShareView{}
	if err := c.doJSON(ctx, http.MethodGet, "/s/"+key, nil, view); err != nil {
		return nil, err
	}
	return view, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		body.Error = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}
