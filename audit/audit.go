package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Level orders audit records; the file sink drops anything below its minimum.
type Level int

const (
	LevelTrace Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

var levelNames = [...]string{"Trace", "Info", "Warning", "Error"}

func (l Level) String() string {
	if l < LevelTrace || l > LevelError {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel accepts the level names in any case.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Level(i), nil
		}
	}
	return LevelTrace, fmt.Errorf("unknown audit level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Outcome kinds, one per terminal state of a webhook event.
const (
	KindReplied = "replied"
	KindHidden  = "hidden"
	KindDeleted = "deleted"
	KindSkipped = "skipped"
)

// Record is one terminal transition of one inbound event.
type Record struct {
	Time      time.Time `json:"time"`
	Level     Level     `json:"level"`
	RequestID string    `json:"request_id,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	PageID    string    `json:"page_id,omitempty"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason,omitempty"`
	RuleID    int64     `json:"rule_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Message renders the human readable part of an audit line.
func (r Record) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "comment %s on page %s: %s", orDash(r.CommentID), orDash(r.PageID), r.Kind)
	switch {
	case r.Reason != "":
		fmt.Fprintf(&b, " (%s)", r.Reason)
	case r.RuleID != 0:
		fmt.Fprintf(&b, " (rule %d)", r.RuleID)
	}
	if r.Kind != KindSkipped {
		if r.Success {
			b.WriteString(" ok")
		} else {
			b.WriteString(" failed")
		}
	}
	if r.Error != "" {
		fmt.Fprintf(&b, ": %s", r.Error)
	}
	if r.RequestID != "" {
		fmt.Fprintf(&b, " [req %s]", r.RequestID)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Sink receives audit records. Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, r Record) error
}

// MultiSink appends to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
type Discard struct{}

func (Discard) Append(context.Context, Record) error { return nil }
