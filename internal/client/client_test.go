package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sessions", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "me@example.com", body["email"])
		assert.Equal(t, "secret", body["password"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"token": "session-token"})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	token, err := c.Login(context.Background(), "me@example.com", "secret", "")
	require.NoError(t, err)
	assert.Equal(t, "session-token", token)
}

func TestAuthorizationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer my-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"nodes": []any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "my-token")
	_, err := c.ListNodes(context.Background(), "")
	require.NoError(t, err)
}

func TestListNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "parent-1", r.URL.Query().Get("parent_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"nodes": []map[string]any{
				{"kind": "folder", "id": "d1", "name": "Docs", "size": 10},
				{"kind": "file", "id": "f1", "name": "a.txt", "size": 4, "type": "text/plain"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	nodes, err := c.ListNodes(context.Background(), "parent-1")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "folder", nodes[0].Kind)
	assert.Equal(t, "Docs", nodes[0].Name)
	assert.Equal(t, "text/plain", nodes[1].Type)
}

func TestUploadMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "parent-1", r.FormValue("parent_id"))

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "notes.txt", header.Filename)

		content, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "hello upload", string(content))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"kind": "file", "id": "f1", "name": "notes.txt", "size": int64(len(content)),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	node, err := c.Upload(context.Background(), "parent-1", "/tmp/notes.txt", strings.NewReader("hello upload"))
	require.NoError(t, err)
	assert.Equal(t, "f1", node.ID)
	assert.Equal(t, int64(12), node.Size)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/f1", r.URL.Path)
		io.WriteString(w, "file body")
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	rc, err := c.Download(context.Background(), "f1")
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "file body", string(body))
}

func TestShareAndResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/folders/d1/share":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"key": "cap-key"})
		case r.Method == http.MethodGet && r.URL.Path == "/s/cap-key":
			json.NewEncoder(w).Encode(map[string]any{
				"folder": map[string]any{"kind": "folder", "id": "d1", "name": "Docs"},
				"nodes":  []map[string]any{{"kind": "file", "id": "f1", "name": "a.txt"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	key, err := c.Share(context.Background(), "d1")
	require.NoError(t, err)
	require.Equal(t, "cap-key", key)

	view, err := c.ResolveShare(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "Docs", view.Folder.Name)
	require.Len(t, view.Nodes, 1)
	assert.Equal(t, "a.txt", view.Nodes[0].Name)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "a node with that name already exists"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.CreateFolder(context.Background(), "", "Docs")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Message, "already exists")
}
