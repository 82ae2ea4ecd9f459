// Package fetcher talks to the upstream social API (Twitter/X v2),
// reconstructs threads, and groups conversations into capture items.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lenswire/lenswire/internal/models"
	"github.com/lenswire/lenswire/internal/retry"
)

const defaultBaseURL = "https://api.twitter.com/2"

// tweetFields requested on every tweet lookup.
const tweetFields = "created_at,public_metrics,conversation_id,author_id,text"

// ErrRateLimited signals an upstream 429. The current handle's fetch is
// aborted; no in-process retry.
var ErrRateLimited = errors.New("upstream rate limit hit")

// Client is the Twitter API v2 client used by the capture pipeline.
type Client struct {
	bearerToken string
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a fetcher backed by the v2 endpoints. The limiter keeps
// bursts under the app-level request cap.
func NewClient(bearerToken string, logger *slog.Logger) *Client {
	return &Client{
		bearerToken: bearerToken,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(time.Second), 5),
		logger:      logger,
	}
}

// WithBaseURL overrides the API base URL (tests).
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = base
	return c
}

// apiTweet mirrors the v2 tweet payload.
type apiTweet struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	AuthorID       string     `json:"author_id"`
	ConversationID string     `json:"conversation_id"`
	CreatedAt      time.Time  `json:"created_at"`
	PublicMetrics  apiMetrics `json:"public_metrics"`
}

type apiMetrics struct {
	LikeCount       int `json:"like_count"`
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	QuoteCount      int `json:"quote_count"`
	BookmarkCount   int `json:"bookmark_count"`
	ImpressionCount int `json:"impression_count"`
}

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type tweetsResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
	Errors []struct {
		Message string `json:"message"`
		Title   string `json:"title"`
	} `json:"errors"`
}

type singleTweetResponse struct {
	Data     *apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
}

type userResponse struct {
	Data *apiUser `json:"data"`
}

// get performs an authenticated GET and decodes the JSON body into out.
// Network failures and 5xx responses are retried with backoff; a 429 aborts
// immediately so the caller can skip the handle.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	return retry.Do(ctx, retry.DefaultPolicy(), func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Transient(fmt.Errorf("api request failed: %w", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Transient(fmt.Errorf("read response: %w", err))
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
		case resp.StatusCode >= http.StatusInternalServerError:
			return retry.Transient(fmt.Errorf("api returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("api returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("malformed payload (%d bytes): %w", len(body), err)
		}
		return nil
	})
}

// lookupUser resolves a handle to its user record.
func (c *Client) lookupUser(ctx context.Context, handle string) (*apiUser, error) {
	handle = strings.TrimPrefix(handle, "@")

	var resp userResponse
	if err := c.get(ctx, "/users/by/username/"+url.PathEscape(handle), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("user not found: %s", handle)
	}
	return resp.Data, nil
}

// recentPosts fetches the handle's own posts within the trailing window,
// excluding replies, newest-first, up to maxItems.
func (c *Client) recentPosts(ctx context.Context, handle string, daysBack, maxItems int) ([]models.Post, error) {
	user, err := c.lookupUser(ctx, handle)
	if err != nil {
		return nil, err
	}

	start := time.Now().UTC().AddDate(0, 0, -daysBack)

	posts := make([]models.Post, 0, maxItems)
	nextToken := ""
	for len(posts) < maxItems {
		pageSize := maxItems - len(posts)
		if pageSize < 5 {
			pageSize = 5 // API minimum
		}
		if pageSize > 100 {
			pageSize = 100
		}

		query := url.Values{
			"max_results":  {strconv.Itoa(pageSize)},
			"exclude":      {"replies"},
			"start_time":   {start.Format(time.RFC3339)},
			"tweet.fields": {tweetFields},
		}
		if nextToken != "" {
			query.Set("pagination_token", nextToken)
		}

		var resp tweetsResponse
		if err := c.get(ctx, "/users/"+user.ID+"/tweets", query, &resp); err != nil {
			return nil, err
		}

		for _, t := range resp.Data {
			if len(posts) == maxItems {
				break
			}
			posts = append(posts, toPost(t, user))
		}

		nextToken = resp.Meta.NextToken
		if nextToken == "" || len(resp.Data) == 0 {
			break
		}
	}

	return posts, nil
}

// FetchRecent returns up to maxItems post URLs authored by handle within the
// trailing daysBack days, excluding replies, newest-first.
func (c *Client) FetchRecent(ctx context.Context, handle string, daysBack, maxItems int) ([]string, error) {
	posts, err := c.recentPosts(ctx, handle, daysBack, maxItems)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(posts))
	for i, p := range posts {
		urls[i] = p.URL()
	}
	return urls, nil
}

// FetchByID looks up a single post with author expansion. A missing post
// returns (nil, nil).
func (c *Client) FetchByID(ctx context.Context, postID string) (*models.Post, error) {
	query := url.Values{
		"tweet.fields": {tweetFields},
		"expansions":   {"author_id"},
		"user.fields":  {"username,name"},
	}

	var resp singleTweetResponse
	if err := c.get(ctx, "/tweets/"+url.PathEscape(postID), query, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, nil
	}

	var author *apiUser
	for i := range resp.Includes.Users {
		if resp.Includes.Users[i].ID == resp.Data.AuthorID {
			author = &resp.Includes.Users[i]
			break
		}
	}

	post := toPost(*resp.Data, author)
	return &post, nil
}

// FetchByURL resolves any accepted URL form (twitter.com/x.com status URLs,
// any .../status/<id> path, or a bare 19-digit id) to a post. Inputs that
// match no pattern return (nil, nil).
func (c *Client) FetchByURL(ctx context.Context, raw string) (*models.Post, error) {
	id, ok := ParsePostID(raw)
	if !ok {
		return nil, nil
	}
	return c.FetchByID(ctx, id)
}

// searchConversation pulls the handle's posts in one conversation via the
// recent-search endpoint, used to complete threads whose tails fall outside
// the user-timeline page.
func (c *Client) searchConversation(ctx context.Context, conversationID, handle string, maxItems int) ([]apiTweet, error) {
	pageSize := maxItems
	if pageSize < 10 {
		pageSize = 10 // search minimum
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := url.Values{
		"query":        {fmt.Sprintf("conversation_id:%s from:%s", conversationID, handle)},
		"max_results":  {strconv.Itoa(pageSize)},
		"tweet.fields": {tweetFields},
	}

	var resp tweetsResponse
	if err := c.get(ctx, "/tweets/search/recent", query, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func toPost(t apiTweet, author *apiUser) models.Post {
	p := models.Post{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		AuthorID:       t.AuthorID,
		Text:           t.Text,
		CreatedAt:      t.CreatedAt.UTC(),
		Metrics: models.PublicMetrics{
			Likes:       t.PublicMetrics.LikeCount,
			Reposts:     t.PublicMetrics.RetweetCount,
			Replies:     t.PublicMetrics.ReplyCount,
			Quotes:      t.PublicMetrics.QuoteCount,
			Bookmarks:   t.PublicMetrics.BookmarkCount,
			Impressions: t.PublicMetrics.ImpressionCount,
		},
	}
	if p.ConversationID == "" {
		p.ConversationID = p.ID
	}
	if author != nil {
		p.AuthorHandle = author.Username
		p.AuthorName = author.Name
	}
	return p
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
