package models

import (
	"fmt"
	"strings"
	"time"
)

// PublicMetrics holds the public engagement counters of a post. The upstream
// API omits impression counts for some posts; a missing counter is zero.
type PublicMetrics struct {
	Likes       int `json:"like_count"`
	Reposts     int `json:"retweet_count"`
	Replies     int `json:"reply_count"`
	Quotes      int `json:"quote_count"`
	Bookmarks   int `json:"bookmark_count"`
	Impressions int `json:"impression_count"`
}

// Add returns the element-wise sum of two metric sets.
func (m PublicMetrics) Add(o PublicMetrics) PublicMetrics {
	return PublicMetrics{
		Likes:       m.Likes + o.Likes,
		Reposts:     m.Reposts + o.Reposts,
		Replies:     m.Replies + o.Replies,
		Quotes:      m.Quotes + o.Quotes,
		Bookmarks:   m.Bookmarks + o.Bookmarks,
		Impressions: m.Impressions + o.Impressions,
	}
}

// Post is a single message on the upstream platform. ID is the stable
// platform-assigned identifier and is immutable. ConversationID equals the
// post's own ID for posts outside a thread.
type Post struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	AuthorID       string        `json:"author_id"`
	AuthorHandle   string        `json:"author_handle"`
	AuthorName     string        `json:"author_name"`
	Text           string        `json:"text"`
	CreatedAt      time.Time     `json:"created_at"`
	Metrics        PublicMetrics `json:"public_metrics"`
}

// URL returns the canonical status URL for the post.
func (p Post) URL() string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", p.AuthorHandle, p.ID)
}

// IsRetweet reports whether the post body carries the classic retweet prefix.
// TODO: quoted posts also need detection via referenced_tweets once the
// fetcher requests that expansion; the text prefix misses them.
func (p Post) IsRetweet() bool {
	return strings.HasPrefix(p.Text, "RT @")
}
