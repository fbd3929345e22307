// Package drive is the client for the remote file store: an OAuth2
// client-credentials drive API addressed by folder handles and file paths.
// It wraps the four operations the intake pipeline needs: resolve the drive
// root, provision folder paths, upload file bytes, and list stored filenames
// for fingerprint tags.
package drive

import (
	"fmt"
	"time"
)

const (
	// DefaultScope is the fixed resource scope requested in the token exchange.
	DefaultScope = "https://graph.microsoft.com/.default"

	// DefaultBaseURL is the drive API root.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultTimeout bounds each remote call. There are no automatic retries;
	// a timeout fails the current submission and the user re-submits.
	DefaultTimeout = 30 * time.Second

	// maxListPages bounds continuation-link pagination when listing a folder.
	// Submission folders hold at most a few hundred files; the bound only
	// guards pathological folders from unbounded scanning.
	maxListPages = 16
)

// Config holds the service credentials and addressing for the remote store.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// User is the principal whose drive receives the uploads.
	User string

	// TokenURL overrides the derived token endpoint. Empty means the
	// standard endpoint for TenantID.
	TokenURL string

	// Scope overrides DefaultScope when set.
	Scope string

	// BaseURL overrides DefaultBaseURL when set.
	BaseURL string

	// Timeout overrides DefaultTimeout when set.
	Timeout time.Duration
}

// tokenURL returns the configured or derived token endpoint.
func (c Config) tokenURL() string {

	if c.TokenURL != "" {
		return c.TokenURL
	}

	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.TenantID)
}

// scope returns the configured or default resource scope.
func (c Config) scope() string {

	if c.Scope != "" {
		return c.Scope
	}

	return DefaultScope
}

// baseURL returns the configured or default API root.
func (c Config) baseURL() string {

	if c.BaseURL != "" {
		return c.BaseURL
	}

	return DefaultBaseURL
}

// timeout returns the configured or default per-call timeout.
func (c Config) timeout() time.Duration {

	if c.Timeout > 0 {
		return c.Timeout
	}

	return DefaultTimeout
}

// ErrorRemote is a structured transport error surfaced when the remote store
// refuses or fails an operation.
type ErrorRemote struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *ErrorRemote) Error() string {

	if e.StatusCode != 0 {
		return fmt.Sprintf("remote store %s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("remote store %s failed: %s", e.Operation, e.Message)
}

// driveItem is the subset of remote item fields the client selects.
type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// non-nil marks the item as a folder
	Folder *struct{} `json:"folder,omitempty"`
}

// childrenPage is one page of a folder listing. NextLink, when present, is the
// continuation link to the next page.
type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink,omitempty"`
}

// createFolderRequest asks the remote to create a child folder. The conflict
// behavior asks the server to rename on name collision rather than fail,
// which is how concurrent sessions racing to create the same path are
// tolerated.
type createFolderRequest struct {
	Name             string   `json:"name"`
	Folder           struct{} `json:"folder"`
	ConflictBehavior string   `json:"@microsoft.graph.conflictBehavior"`
}
