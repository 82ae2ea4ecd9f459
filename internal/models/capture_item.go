package models

import "time"

// ContentType identifies the kind of capture an item represents. It also
// determines the blob folder prefix the item is stored under.
type ContentType string

const (
	ContentTypeTweet   ContentType = "tweet"
	ContentTypeConvo   ContentType = "convo"
	ContentTypeRetweet ContentType = "retweet"
)

// CaptureItem is the orchestrator's unit of work: either a single post
// (singleton or retweet) or a whole thread. Exactly one of Post and Thread
// is set. Items are immutable once emitted.
type CaptureItem struct {
	Type   ContentType
	Post   *Post
	Thread *Thread
}

// NewPostItem wraps a singleton post, classifying retweets by body prefix.
func NewPostItem(p *Post) CaptureItem {
	ct := ContentTypeTweet
	if p.IsRetweet() {
		ct = ContentTypeRetweet
	}
	return CaptureItem{Type: ct, Post: p}
}

// NewThreadItem wraps a multi-post thread.
func NewThreadItem(t *Thread) CaptureItem {
	return CaptureItem{Type: ContentTypeConvo, Thread: t}
}

// PrimaryID is the post ID for singletons and the earliest post's ID for
// threads. It is stable across retries.
func (ci CaptureItem) PrimaryID() string {
	if ci.Thread != nil {
		return ci.Thread.PrimaryID()
	}
	return ci.Post.ID
}

// CreatedAt is the creation time of the primary post.
func (ci CaptureItem) CreatedAt() time.Time {
	if ci.Thread != nil {
		return ci.Thread.CreatedAt()
	}
	return ci.Post.CreatedAt
}

// URL returns the status URL of the primary post.
func (ci CaptureItem) URL() string {
	if ci.Thread != nil {
		return ci.Thread.Tweets[0].URL()
	}
	return ci.Post.URL()
}

// Handle returns the author handle of the item.
func (ci CaptureItem) Handle() string {
	if ci.Thread != nil {
		return ci.Thread.AuthorHandle
	}
	return ci.Post.AuthorHandle
}
