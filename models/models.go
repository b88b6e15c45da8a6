package models

import (
	"fmt"
	"strings"
)

// DispositionMode decides what happens to a comment that matched no reply rule.
type DispositionMode string

const (
	ModeHide   DispositionMode = "hide"
	ModeDelete DispositionMode = "delete"
)

// ParseMode accepts "hide"/"delete" in any case.
func ParseMode(s string) (DispositionMode, error) {
	switch DispositionMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeHide:
		return ModeHide, nil
	case ModeDelete:
		return ModeDelete, nil
	}
	return "", fmt.Errorf("unknown disposition mode %q (want hide or delete)", s)
}

// FanPage is a moderated page and the token used to act on its comments.
type FanPage struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	AvatarURL      string          `json:"avatar_url"`
	AccessToken    string          `json:"access_token"`
	Mode           DispositionMode `json:"mode"`
	CleanerEnabled bool            `json:"cleaner_enabled"`
}

// DeleteMode reports whether unmatched comments are deleted rather than hidden.
func (p *FanPage) DeleteMode() bool {
	return p.Mode == ModeDelete
}

// WildcardTrigger matches every comment.
const WildcardTrigger = "*"

// ReplyRule is stored with its trigger words comma separated.
type ReplyRule struct {
	ID           int64  `json:"id"`
	PageID       string `json:"page_id"`
	TriggerWords string `json:"trigger_words"`
	ReplyText    string `json:"reply_text"`
	ImagePath    string `json:"image_path,omitempty"`
}

// Triggers splits the stored trigger list. Entries are returned as stored,
// untrimmed; the matcher decides what an empty entry means.
func (r ReplyRule) Triggers() []string {
	if r.TriggerWords == "" {
		return nil
	}
	return strings.Split(r.TriggerWords, ",")
}

// HasImage reports whether the reply carries an attachment.
func (r ReplyRule) HasImage() bool {
	return strings.TrimSpace(r.ImagePath) != ""
}

// JoinTriggers is the inverse of Triggers for values coming from the CLI.
func JoinTriggers(words []string) string {
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			cleaned = append(cleaned, w)
		}
	}
	return strings.Join(cleaned, ",")
}

// App is a platform application whose webhook subscription we manage.
type App struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// MaskToken keeps a short prefix of a secret so it can be told apart in logs.
func MaskToken(token string) string {
	const keep = 6
	if len(token) <= keep {
		return strings.Repeat("*", len(token))
	}
	return token[:keep] + "***"
}
