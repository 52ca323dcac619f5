// client/client.go
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"sbvc/internal/diff"
	apperrors "sbvc/internal/errors"
	"sbvc/internal/history"
	"sbvc/internal/store"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// Read operations
func (c *Client) Versions() ([]store.Version, error) {
	var versions []store.Version
	err := c.do(http.MethodGet, "/api/versions", nil, &versions)
	return versions, err
}

func (c *Client) Version(id uint32) (*store.Version, error) {
	var v store.Version
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/versions/%d", id), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) Content(id uint32) ([]byte, error) {
	resp, err := c.httpClient.Get(fmt.Sprintf("%s/api/versions/%d/content", c.baseURL, id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) Tree() (*store.Node, error) {
	var node store.Node
	if err := c.do(http.MethodGet, "/api/tree", nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) Current() (*store.Version, error) {
	var v store.Version
	if err := c.do(http.MethodGet, "/api/current", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) Status() (*history.Snapshot, error) {
	return c.snapshot(http.MethodGet, "/api/status", nil)
}

func (c *Client) Diff() (*diff.DiffResult, error) {
	var result diff.DiffResult
	if err := c.do(http.MethodGet, "/api/diff", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Mutations. Each returns the state after the operation.
func (c *Client) Commit() (*history.Snapshot, error) {
	return c.snapshot(http.MethodPost, "/api/commit", nil)
}

func (c *Client) Checkout(id uint32, discard bool) (*history.Snapshot, error) {
	path := fmt.Sprintf("/api/checkout/%d", id)
	if discard {
		path += "?" + url.Values{"discard": {"true"}}.Encode()
	}
	return c.snapshot(http.MethodPost, path, nil)
}

func (c *Client) Rename(name string) (*history.Snapshot, error) {
	return c.snapshot(http.MethodPost, "/api/rename", map[string]string{"name": name})
}

func (c *Client) Delete() (*history.Snapshot, error) {
	return c.snapshot(http.MethodPost, "/api/delete", nil)
}

func (c *Client) Rollback() (*history.Snapshot, error) {
	return c.snapshot(http.MethodPost, "/api/rollback", nil)
}

func (c *Client) SetTrackedFile(path string) (*history.Snapshot, error) {
	return c.snapshot(http.MethodPut, "/api/file", map[string]string{"path": path})
}

func (c *Client) snapshot(method, path string, body any) (*history.Snapshot, error) {
	var snap history.Snapshot
	if err := c.do(method, path, body, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError turns an error response back into a typed error, so callers can
// match it with errors.Is against the sentinels in internal/errors.
func decodeError(resp *http.Response) error {
	var body struct {
		Type    apperrors.ErrorType `json:"type"`
		Message string              `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Type == "" {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return &apperrors.Error{Type: body.Type, Message: body.Message}
}
