package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/jcervantes/foliofotos/internal/util"
	"github.com/jcervantes/foliofotos/pkg/fingerprint"
)

// Client is the interface for the remote store operations used by the upload
// pipeline. All operations may fail with a transport/authorization error.
type Client interface {

	// RootID resolves the handle of the drive root folder.
	RootID(ctx context.Context) (string, error)

	// EnsurePath walks the segments from the drive root, reusing each child
	// folder that already exists and creating the ones that do not, and
	// returns the handle of the final folder. Safe to call repeatedly for the
	// same path: existence is checked before creation.
	EnsurePath(ctx context.Context, segments []string) (string, error)

	// Upload performs a whole-body upload of the bytes to the named file in
	// the folder. No chunking; suitable for small and medium files only.
	Upload(ctx context.Context, folderID, filename string, b []byte, mime string) error

	// ListFingerprintTags lists all filenames in the folder and returns the
	// set of fingerprint tags embedded in them.
	ListFingerprintTags(ctx context.Context, folderID string) (map[string]struct{}, error)
}

// New creates a remote store client that authenticates with the OAuth2
// client-credentials grant. The returned client exchanges credentials for a
// bearer token on first use and re-fetches it whenever it expires.
func New(cfg Config) Client {

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.tokenURL(),
		Scopes:       []string{cfg.scope()},
	}

	httpClient := cc.Client(context.Background())
	httpClient.Timeout = cfg.timeout()

	return NewWithHTTPClient(cfg, httpClient)
}

// NewWithHTTPClient creates a remote store client over the provided http
// client. Exists so tests can point the client at a stub server without the
// token exchange.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) Client {
	return &client{
		config: cfg,
		http:   httpClient,

		logger: slog.Default().
			With(slog.String(util.ServiceKey, util.ServiceFolioFotos)).
			With(slog.String(util.PackageKey, util.PackageDrive)).
			With(slog.String(util.ComponentKey, util.ComponentDriveClient)),
	}
}

var _ Client = (*client)(nil)

// client is the concrete implementation of the Client interface.
type client struct {
	config Config
	http   *http.Client

	logger *slog.Logger
}

// driveURL is a helper which builds the base url of the target user's drive.
func (c *client) driveURL() string {
	return fmt.Sprintf("%s/users/%s/drive", c.config.baseURL(), c.config.User)
}

// RootID is the concrete implementation of the interface method.
func (c *client) RootID(ctx context.Context) (string, error) {

	var item driveItem
	if err := c.getJSON(ctx, "resolve root", fmt.Sprintf("%s/root?$select=id", c.driveURL()), &item); err != nil {
		return "", err
	}

	if item.ID == "" {
		return "", &ErrorRemote{Operation: "resolve root", Message: "response contained no folder id"}
	}

	return item.ID, nil
}

// EnsurePath is the concrete implementation of the interface method.
func (c *client) EnsurePath(ctx context.Context, segments []string) (string, error) {

	if len(segments) == 0 {
		return "", &ErrorRemote{Operation: "ensure path", Message: "no path segments provided"}
	}

	current, err := c.RootID(ctx)
	if err != nil {
		return "", err
	}

	for _, name := range segments {
		current, err = c.ensureFolder(ctx, current, name)
		if err != nil {
			return "", err
		}
	}

	return current, nil
}

// ensureFolder is a helper which returns the handle of the named child folder
// under the parent, creating it only if no child folder with that exact name
// already exists. Checking before creating is what makes repeated calls for
// the same path idempotent.
func (c *client) ensureFolder(ctx context.Context, parentID, name string) (string, error) {

	items, err := c.listChildren(ctx, parentID)
	if err != nil {
		return "", err
	}

	for _, item := range items {
		if item.Name == name && item.Folder != nil {
			return item.ID, nil
		}
	}

	c.logger.Info(fmt.Sprintf("creating remote folder %s", name))

	payload, err := json.Marshal(createFolderRequest{
		Name:             name,
		ConflictBehavior: "rename",
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal create-folder request for %s: %v", name, err)
	}

	createURL := fmt.Sprintf("%s/items/%s/children", c.driveURL(), parentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, createURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build create-folder request for %s: %v", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var created driveItem
	if err := c.doJSON(req, "create folder", &created); err != nil {
		return "", err
	}

	if created.ID == "" {
		return "", &ErrorRemote{Operation: "create folder", Message: fmt.Sprintf("no folder id returned for %s", name)}
	}

	return created.ID, nil
}

// Upload is the concrete implementation of the interface method.
func (c *client) Upload(ctx context.Context, folderID, filename string, b []byte, mime string) error {

	if filename == "" {
		return &ErrorRemote{Operation: "upload", Message: "filename is empty"}
	}

	if mime == "" {
		mime = "application/octet-stream"
	}

	uploadURL := fmt.Sprintf("%s/items/%s:/%s:/content", c.driveURL(), folderID, url.PathEscape(filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to build upload request for %s: %v", filename, err)
	}
	req.Header.Set("Content-Type", mime)

	res, err := c.http.Do(req)
	if err != nil {
		return &ErrorRemote{Operation: "upload", Message: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return remoteError("upload", res)
	}

	c.logger.Info(fmt.Sprintf("uploaded %s (%d bytes)", filename, len(b)))

	return nil
}

// ListFingerprintTags is the concrete implementation of the interface method.
func (c *client) ListFingerprintTags(ctx context.Context, folderID string) (map[string]struct{}, error) {

	items, err := c.listChildren(ctx, folderID)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]struct{}, len(items))
	for _, item := range items {
		if tag, ok := fingerprint.ParseTag(item.Name); ok {
			tags[tag] = struct{}{}
		}
	}

	return tags, nil
}

// listChildren is a helper which lists all children of a folder, following
// continuation links until exhausted or the page bound is reached.
func (c *client) listChildren(ctx context.Context, folderID string) ([]driveItem, error) {

	next := fmt.Sprintf("%s/items/%s/children?$select=id,name,folder", c.driveURL(), folderID)

	var items []driveItem
	for page := 0; next != "" && page < maxListPages; page++ {

		var listing childrenPage
		if err := c.getJSON(ctx, "list children", next, &listing); err != nil {
			return nil, err
		}

		items = append(items, listing.Value...)
		next = listing.NextLink
	}

	return items, nil
}

// getJSON is a helper which performs a GET and decodes the JSON response into
// out, converting any failure into an ErrorRemote.
func (c *client) getJSON(ctx context.Context, operation, rawURL string, out any) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %v", operation, err)
	}

	return c.doJSON(req, operation, out)
}

// doJSON is a helper which executes the request and decodes the JSON response
// into out, converting any failure into an ErrorRemote.
func (c *client) doJSON(req *http.Request, operation string, out any) error {

	res, err := c.http.Do(req)
	if err != nil {
		return &ErrorRemote{Operation: operation, Message: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return remoteError(operation, res)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &ErrorRemote{Operation: operation, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}

	return nil
}

// remoteError builds an ErrorRemote from a non-2xx response, carrying a
// snippet of the remote body as diagnostic detail.
func remoteError(operation string, res *http.Response) *ErrorRemote {

	snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))

	return &ErrorRemote{
		Operation:  operation,
		StatusCode: res.StatusCode,
		Message:    strings.TrimSpace(string(snippet)),
	}
}
