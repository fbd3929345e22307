package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDrive is an in-memory stand-in for the remote store, serving the
// subset of the drive API the client uses.
type fakeDrive struct {
	mu sync.Mutex

	// folder id -> children
	children map[string][]driveItem

	// uploaded files keyed by "folderID/filename"
	uploads map[string][]byte

	// observed content types keyed the same way
	uploadMimes map[string]string

	createCount int
	failStatus  int // when non-zero, every request fails with this status
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{
		children:    map[string][]driveItem{"root-1": {}},
		uploads:     make(map[string][]byte),
		uploadMimes: make(map[string]string),
	}
}

func (f *fakeDrive) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		f.mu.Lock()
		defer f.mu.Unlock()

		if f.failStatus != 0 {
			w.WriteHeader(f.failStatus)
			fmt.Fprint(w, `{"error":{"message":"access denied"}}`)
			return
		}

		path := r.URL.Path

		switch {
		case path == "/users/files@test.example/drive/root":
			json.NewEncoder(w).Encode(driveItem{ID: "root-1"})

		case strings.HasSuffix(path, "/children") && r.Method == http.MethodGet:
			id := parentFromPath(path)
			json.NewEncoder(w).Encode(childrenPage{Value: f.children[id]})

		case strings.HasSuffix(path, "/children") && r.Method == http.MethodPost:
			id := parentFromPath(path)

			var req createFolderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "rename", req.ConflictBehavior)

			f.createCount++
			created := driveItem{ID: fmt.Sprintf("folder-%d", f.createCount), Name: req.Name, Folder: &struct{}{}}
			f.children[id] = append(f.children[id], created)
			f.children[created.ID] = []driveItem{}

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(created)

		case strings.HasSuffix(path, ":/content") && r.Method == http.MethodPut:
			// /users/.../drive/items/{folderID}:/{filename}:/content
			trimmed := strings.TrimSuffix(path[strings.Index(path, "/items/")+len("/items/"):], ":/content")
			parts := strings.SplitN(trimmed, ":/", 2)
			require.Len(t, parts, 2)

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)

			key := parts[0] + "/" + parts[1]
			f.uploads[key] = body
			f.uploadMimes[key] = r.Header.Get("Content-Type")

			folder := f.children[parts[0]]
			f.children[parts[0]] = append(folder, driveItem{ID: key, Name: parts[1]})

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(driveItem{ID: key, Name: parts[1]})

		default:
			t.Errorf("unexpected request %s %s", r.Method, path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

// parentFromPath extracts the folder id from .../items/{id}/children, or
// returns the root id for .../root/children.
func parentFromPath(path string) string {

	if i := strings.Index(path, "/items/"); i >= 0 {
		rest := path[i+len("/items/"):]
		return strings.TrimSuffix(rest, "/children")
	}

	return "root-1"
}

// newTestClient wires a client to the fake drive.
func newTestClient(t *testing.T, f *fakeDrive) (Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cfg := Config{
		User:    "files@test.example",
		BaseURL: srv.URL,
	}

	return NewWithHTTPClient(cfg, srv.Client()), srv
}

func TestEnsurePathIdempotent(t *testing.T) {

	f := newFakeDrive()
	c, _ := newTestClient(t, f)

	ctx := context.Background()

	first, err := c.EnsurePath(ctx, []string{"fotos_cotizaciones", "251215-0FF480"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.createCount)

	// same remote state, same handle, no duplicate folders
	second, err := c.EnsurePath(ctx, []string{"fotos_cotizaciones", "251215-0FF480"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, f.createCount)
}

func TestEnsurePathEmptySegments(t *testing.T) {

	f := newFakeDrive()
	c, _ := newTestClient(t, f)

	_, err := c.EnsurePath(context.Background(), nil)
	require.Error(t, err)

	var remote *ErrorRemote
	require.ErrorAs(t, err, &remote)
}

func TestUpload(t *testing.T) {

	f := newFakeDrive()
	c, _ := newTestClient(t, f)

	ctx := context.Background()

	folderID, err := c.EnsurePath(ctx, []string{"fotos_cotizaciones"})
	require.NoError(t, err)

	content := []byte("photo bytes")
	require.NoError(t, c.Upload(ctx, folderID, "251215-0FF480_upload_20250114_103000_123456__sha256_a1b2c3d4e5f6.png", content, "image/png"))

	key := folderID + "/251215-0FF480_upload_20250114_103000_123456__sha256_a1b2c3d4e5f6.png"
	assert.Equal(t, content, f.uploads[key])
	assert.Equal(t, "image/png", f.uploadMimes[key])
}

func TestListFingerprintTags(t *testing.T) {

	f := newFakeDrive()
	c, _ := newTestClient(t, f)

	ctx := context.Background()

	folderID, err := c.EnsurePath(ctx, []string{"fotos_cotizaciones", "251215-0FF480"})
	require.NoError(t, err)

	// stored photos carry tags, the pdf does not
	require.NoError(t, c.Upload(ctx, folderID, "251215-0FF480_upload_20250114_103000_000001__sha256_a1b2c3d4e5f6.png", []byte("a"), "image/png"))
	require.NoError(t, c.Upload(ctx, folderID, "251215-0FF480_camera_20250114_103000_000002__sha256_ffeeddccbbaa.png", []byte("b"), "image/png"))
	require.NoError(t, c.Upload(ctx, folderID, "251215-0FF480_fotos_20250114_103000_000003.pdf", []byte("c"), "application/pdf"))

	tags, err := c.ListFingerprintTags(ctx, folderID)
	require.NoError(t, err)

	assert.Len(t, tags, 2)
	assert.Contains(t, tags, "a1b2c3d4e5f6")
	assert.Contains(t, tags, "ffeeddccbbaa")
}

func TestListChildrenPagination(t *testing.T) {

	var srvURL string
	pagesServed := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		pagesServed++

		page := childrenPage{
			Value: []driveItem{{
				ID:   fmt.Sprintf("item-%d", pagesServed),
				Name: fmt.Sprintf("251215-0FF480_upload_20250114_103000_00000%d__sha256_%012d.png", pagesServed, pagesServed),
			}},
		}

		// two pages, then exhausted
		if pagesServed < 2 {
			page.NextLink = fmt.Sprintf("%s/users/files@test.example/drive/items/folder-1/children?page=%d", srvURL, pagesServed+1)
		}

		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := NewWithHTTPClient(Config{User: "files@test.example", BaseURL: srv.URL}, srv.Client())

	tags, err := c.ListFingerprintTags(context.Background(), "folder-1")
	require.NoError(t, err)

	assert.Equal(t, 2, pagesServed)
	assert.Len(t, tags, 2)
}

func TestListChildrenPageBound(t *testing.T) {

	var srvURL string
	pagesServed := 0

	// pathological folder: every page links to another
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		json.NewEncoder(w).Encode(childrenPage{
			NextLink: fmt.Sprintf("%s/users/files@test.example/drive/items/folder-1/children?page=%d", srvURL, pagesServed+1),
		})
	}))
	defer srv.Close()
	srvURL = srv.URL

	c := NewWithHTTPClient(Config{User: "files@test.example", BaseURL: srv.URL}, srv.Client())

	_, err := c.ListFingerprintTags(context.Background(), "folder-1")
	require.NoError(t, err)

	assert.Equal(t, maxListPages, pagesServed)
}

func TestRemoteErrorPropagation(t *testing.T) {

	f := newFakeDrive()
	f.failStatus = http.StatusForbidden

	c, _ := newTestClient(t, f)

	_, err := c.EnsurePath(context.Background(), []string{"fotos_cotizaciones"})
	require.Error(t, err)

	var remote *ErrorRemote
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusForbidden, remote.StatusCode)
	assert.Contains(t, remote.Message, "access denied")
}
