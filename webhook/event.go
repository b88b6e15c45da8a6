package webhook

import (
	"encoding/json"
	"strings"

	apperrors "comment-moderator/pkg/errors"
)

// Envelope is the body of a page webhook delivery.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	Item      string  `json:"item"`
	Verb      string  `json:"verb"`
	CommentID string  `json:"comment_id"`
	PostID    string  `json:"post_id"`
	ParentID  string  `json:"parent_id"`
	Message   string  `json:"message"`
	From      *Author `json:"from"`
}

type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CommentEvent is the actionable part of a delivery: a new comment.
type CommentEvent struct {
	CommentID string
	PageID    string
	AuthorID  string
	Message   string
	Verb      string
	Item      string
	PostID    string
}

// ParseEvent decodes raw into a CommentEvent. Only the first change of the
// first entry is considered.
//
// Errors carry ErrMalformedPayload for bodies that cannot be a page event and
// ErrIgnoredEvent for valid events that are not new comments.
func ParseEvent(raw []byte) (*CommentEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedPayload, err, "decode envelope")
	}
	if len(env.Entry) == 0 {
		return nil, apperrors.New(apperrors.ErrMalformedPayload, "no entries")
	}
	entry := env.Entry[0]
	if len(entry.Changes) == 0 {
		return nil, apperrors.New(apperrors.ErrMalformedPayload, "entry %s has no changes", entry.ID)
	}
	v := entry.Changes[0].Value

	if v.Item != "comment" || v.Verb != "add" {
		return nil, apperrors.New(apperrors.ErrIgnoredEvent, "item=%q verb=%q", v.Item, v.Verb)
	}
	if v.CommentID == "" {
		return nil, apperrors.New(apperrors.ErrMalformedPayload, "comment event without comment_id")
	}

	pageID := resolvePageID(entry.ID, v.PostID)
	if pageID == "" {
		return nil, apperrors.New(apperrors.ErrMalformedPayload, "comment %s has no page id", v.CommentID)
	}

	ev := &CommentEvent{
		CommentID: v.CommentID,
		PageID:    pageID,
		Message:   v.Message,
		Verb:      v.Verb,
		Item:      v.Item,
		PostID:    v.PostID,
	}
	if v.From != nil {
		ev.AuthorID = v.From.ID
	}
	return ev, nil
}

// resolvePageID prefers the entry id; post ids look like "<page>_<post>".
func resolvePageID(entryID, postID string) string {
	if id := strings.TrimSpace(entryID); id != "" {
		return id
	}
	if prefix, _, found := strings.Cut(postID, "_"); found {
		return strings.TrimSpace(prefix)
	}
	return ""
}
