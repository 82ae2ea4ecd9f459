package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Thread is a non-empty sequence of posts by the same author sharing a
// conversation ID. Tweets is strictly ascending by creation timestamp; the
// earliest post is the thread's primary post.
type Thread struct {
	ConversationID string `json:"conversation_id"`
	AuthorHandle   string `json:"author_handle"`
	Tweets         []Post `json:"thread_tweets"`

	// Truncated marks a best-effort prefix: the fetch window or item cap cut
	// the thread short and Tweets holds only the posts actually retrieved.
	Truncated bool `json:"truncated,omitempty"`
}

// NewThread validates and orders a group of posts into a thread. All posts
// must share the same conversation ID and author handle.
func NewThread(posts []Post) (*Thread, error) {
	if len(posts) == 0 {
		return nil, fmt.Errorf("thread requires at least one post")
	}

	convoID := posts[0].ConversationID
	handle := posts[0].AuthorHandle
	for _, p := range posts {
		if p.ConversationID != convoID {
			return nil, fmt.Errorf("post %s has conversation %s, expected %s", p.ID, p.ConversationID, convoID)
		}
		if !strings.EqualFold(p.AuthorHandle, handle) {
			return nil, fmt.Errorf("post %s by @%s does not belong to @%s's thread", p.ID, p.AuthorHandle, handle)
		}
	}

	ordered := make([]Post, len(posts))
	copy(ordered, posts)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	return &Thread{
		ConversationID: convoID,
		AuthorHandle:   handle,
		Tweets:         ordered,
	}, nil
}

// PrimaryID is the ID of the earliest post in the thread.
func (t *Thread) PrimaryID() string {
	return t.Tweets[0].ID
}

// CreatedAt is the creation timestamp of the earliest post.
func (t *Thread) CreatedAt() time.Time {
	return t.Tweets[0].CreatedAt
}

// Count returns the number of posts actually retrieved for the thread.
func (t *Thread) Count() int {
	return len(t.Tweets)
}

// IsThread reports whether the group holds two or more posts.
func (t *Thread) IsThread() bool {
	return len(t.Tweets) >= 2
}

// CombinedText joins the thread bodies with explicit position prefixes:
// "[1/N] ..." through "[N/N] ...".
func (t *Thread) CombinedText() string {
	n := len(t.Tweets)
	parts := make([]string, n)
	for i, p := range t.Tweets {
		parts[i] = fmt.Sprintf("[%d/%d] %s", i+1, n, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// AggregateMetrics sums the public metrics across all posts in the thread.
func (t *Thread) AggregateMetrics() PublicMetrics {
	var sum PublicMetrics
	for _, p := range t.Tweets {
		sum = sum.Add(p.Metrics)
	}
	return sum
}
