package fetcher

import (
	"context"
	"sort"

	"github.com/lenswire/lenswire/internal/models"
)

// GroupThreads fetches the handle's recent posts, buckets them by
// conversation, and returns singletons and threads as capture items sorted
// by primary-post creation time, newest first.
//
// A thread that runs past the fetch window or the item cap is returned as a
// best-effort prefix: its count reflects only the posts retrieved, the
// truncation is logged, and the thread is marked truncated.
func (c *Client) GroupThreads(ctx context.Context, handle string, daysBack, maxItems int) ([]models.CaptureItem, error) {
	posts, err := c.recentPosts(ctx, handle, daysBack, maxItems)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string][]models.Post)
	order := make([]string, 0)
	for _, p := range posts {
		if _, seen := buckets[p.ConversationID]; !seen {
			order = append(order, p.ConversationID)
		}
		buckets[p.ConversationID] = append(buckets[p.ConversationID], p)
	}

	items := make([]models.CaptureItem, 0, len(order))
	for _, convoID := range order {
		group := buckets[convoID]

		if len(group) == 1 {
			p := group[0]
			items = append(items, models.NewPostItem(&p))
			continue
		}

		group = c.completeConversation(ctx, convoID, handle, group, maxItems)

		thread, err := models.NewThread(group)
		if err != nil {
			c.logger.Warn("skipping malformed thread group",
				"conversation_id", convoID,
				"handle", handle,
				"error", err)
			continue
		}

		if len(group) >= maxItems {
			// Best-effort prefix; the true thread may extend past the cap.
			thread.Truncated = true
			c.logger.Warn("thread truncated at item cap",
				"conversation_id", convoID,
				"handle", handle,
				"retrieved", len(group),
				"max_items", maxItems)
		}

		items = append(items, models.NewThreadItem(thread))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt().After(items[j].CreatedAt())
	})

	return items, nil
}

// completeConversation merges recent-search results for the conversation
// into the timeline bucket, picking up thread tails the timeline page
// missed. Search failures are non-fatal; the timeline bucket stands.
func (c *Client) completeConversation(ctx context.Context, convoID, handle string, group []models.Post, maxItems int) []models.Post {
	found, err := c.searchConversation(ctx, convoID, handle, maxItems)
	if err != nil {
		c.logger.Warn("conversation search failed, using timeline posts only",
			"conversation_id", convoID,
			"handle", handle,
			"error", err)
		return group
	}

	seen := make(map[string]bool, len(group))
	for _, p := range group {
		seen[p.ID] = true
	}

	author := &apiUser{ID: group[0].AuthorID, Username: group[0].AuthorHandle, Name: group[0].AuthorName}
	for _, t := range found {
		if seen[t.ID] || len(group) >= maxItems {
			continue
		}
		seen[t.ID] = true
		group = append(group, toPost(t, author))
	}

	return group
}
