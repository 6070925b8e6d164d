package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"drudge/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://trippy.wtf/forum"

// ErrUnexpectedStatus is wrapped by SearchDiscussions on non-2xx responses
var ErrUnexpectedStatus = errors.New("unexpected status code")

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient returns a client for the forum rooted at baseURL, e.g. https://example.com/forum
func NewClient(baseURL string, userAgent string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      httpClient,
	}
}

// discussionsResponse mirrors the JSON:API document returned by /api/discussions
type discussionsResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Title string `json:"title"`
		} `json:"attributes"`
	} `json:"data"`
}

// SearchURL returns the discussion index URL filtered by q
func (c *Client) SearchURL(q string) string {
	return c.baseURL + "/api/discussions?filter[q]=" + EncodeURIComponent(q)
}

// DiscussionURL addresses an existing discussion
func (c *Client) DiscussionURL(id string) string {
	return c.baseURL + "/d/" + id
}

// ComposerURL addresses the creation form pre-filled with title
func (c *Client) ComposerURL(title string) string {
	return c.baseURL + "/composer?title=" + EncodeURIComponent(title)
}

// SearchDiscussions queries the discussion index by title substring.
// Candidates are returned in the index's own order.
func (c *Client) SearchDiscussions(ctx context.Context, q string) ([]models.Discussion, error) {
	searchURL := c.SearchURL(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.api+json, application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search discussions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body discussionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode discussions: %w", err)
	}

	discussions := make([]models.Discussion, 0, len(body.Data))
	for _, d := range body.Data {
		discussions = append(discussions, models.Discussion{ID: d.ID, Title: d.Attributes.Title})
	}

	log.WithFields(log.Fields{
		"q":     q,
		"count": len(discussions),
	}).Debug("Searched discussions")

	return discussions, nil
}

// ExactMatches keeps the discussions whose title equals title exactly (case-sensitive)
func ExactMatches(discussions []models.Discussion, title string) []models.Discussion {
	return lo.Filter(discussions, func(d models.Discussion, _ int) bool {
		return d.Title == title
	})
}
