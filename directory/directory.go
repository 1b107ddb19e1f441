// Package directory looks up group membership in the tenant's directory
// graph. It is a downstream consumer of the token acquirer: each call
// obtains a client-credentials token for the graph resource and uses it as
// a bearer credential. Role-based authorization examples build on it; the
// decision engine itself does not.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/authgate/authgate/token"
)

// GraphResourceID is the directory graph's protected-resource identifier.
const GraphResourceID = "https://graph.microsoft.com"

// DefaultBaseURL is the graph API endpoint queried for groups.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Group is a directory group.
type Group struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Client queries the directory graph.
type Client struct {
	acquirer token.Acquirer
	base     string
	http     *http.Client
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the graph API base URL (tests, sovereign clouds).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = base }
}

// WithHTTPClient overrides the transport used for graph calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger; logs are discarded when unset.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a Client that authenticates graph calls through acquirer.
func New(acquirer token.Acquirer, opts ...Option) *Client {
	c := &Client{
		acquirer: acquirer,
		base:     DefaultBaseURL,
		http:     http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Groups lists all groups in the directory, following pagination.
func (c *Client) Groups(ctx context.Context) ([]Group, error) {
	return c.list(ctx, c.base+"/groups")
}

// IsMember reports whether a principal with the given display name is a
// member of the group. The member list is paginated, so the answer is only
// settled after every page is scanned.
func (c *Client) IsMember(ctx context.Context, groupID, displayName string) (bool, error) {
	members, err := c.list(ctx, c.base+"/groups/"+groupID+"/members")
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if member.DisplayName == displayName {
			return true, nil
		}
	}
	return false, nil
}

// list walks a paginated graph collection via @odata.nextLink until
// exhausted.
func (c *Client) list(ctx context.Context, url string) ([]Group, error) {
	var all []Group
	for url != "" {
		var page struct {
			Value    []Group `json:"value"`
			NextLink string  `json:"@odata.nextLink"`
		}
		if err := c.get(ctx, url, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Value...)
		url = page.NextLink
	}
	return all, nil
}

// get performs one authenticated graph GET, acquiring a fresh
// client-credentials token for the graph resource.
func (c *Client) get(ctx context.Context, url string, out any) error {
	res, err := c.acquirer.AcquireSilently(ctx, GraphResourceID, "")
	if err != nil {
		return fmt.Errorf("directory: acquire graph token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("directory: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory: graph call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.DebugContext(ctx, "graph call rejected", "url", url, "status", resp.StatusCode)
		return fmt.Errorf("directory: graph returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("directory: decode graph response: %w", err)
	}
	return nil
}
