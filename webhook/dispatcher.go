package webhook

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comment-moderator/audit"
	"comment-moderator/models"
	apperrors "comment-moderator/pkg/errors"
	"comment-moderator/rules"
)

// RuleStore is what the dispatcher reads per event.
type RuleStore interface {
	GetFanPage(ctx context.Context, pageID string) (*models.FanPage, error)
	GetReplyRules(ctx context.Context, pageID string) ([]models.ReplyRule, error)
}

// Platform acts on a comment with one page's token.
type Platform interface {
	HideComment(ctx context.Context, commentID string) error
	DeleteComment(ctx context.Context, commentID string) error
	ReplyToComment(ctx context.Context, commentID, message, image string) (string, error)
}

// PlatformFactory binds a Platform to a page access token.
type PlatformFactory func(accessToken string) Platform

// Deduper claims a comment id; false means it was already processed.
type Deduper interface {
	Claim(ctx context.Context, commentID string) (bool, error)
}

// Skip reasons.
const (
	ReasonMalformedPayload = "malformed_payload"
	ReasonIgnoredEvent     = "ignored_event"
	ReasonSelfComment      = "self_comment"
	ReasonDuplicate        = "duplicate"
	ReasonUnknownPage      = "unknown_page"
	ReasonStoreError       = "store_error"
	ReasonInternalError    = "internal_error"
)

// Outcome is the terminal state of one event. Kind is one of the audit.Kind*
// constants; Err is set when the chosen action failed.
type Outcome struct {
	Kind      string
	Reason    string
	RuleID    int64
	CommentID string
	PageID    string
	Err       error
}

func (o Outcome) String() string {
	switch {
	case o.Reason != "":
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	case o.RuleID != 0:
		return fmt.Sprintf("%s(%d)", o.Kind, o.RuleID)
	}
	return o.Kind
}

// Dispatcher turns one webhook body into exactly one of reply, hide or
// delete, or a skip. It holds no per-event state and is safe for concurrent
// use.
type Dispatcher struct {
	store     RuleStore
	platforms PlatformFactory
	dedup     Deduper
	sink      audit.Sink
	logger    *zap.Logger
	now       func() time.Time

	auditTimeout time.Duration
}

// DefaultAuditTimeout bounds one audit append. The append runs before the
// webhook is answered, so a stalled broker must not hold the response.
const DefaultAuditTimeout = 2 * time.Second

type Option func(*Dispatcher)

// WithAuditTimeout overrides DefaultAuditTimeout.
func WithAuditTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.auditTimeout = d
		}
	}
}

// WithDeduper skips comment ids the deduper has already seen.
func WithDeduper(d Deduper) Option {
	return func(disp *Dispatcher) { disp.dedup = d }
}

func NewDispatcher(store RuleStore, platforms PlatformFactory, sink audit.Sink, logger *zap.Logger, opts ...Option) *Dispatcher {
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		store:     store,
		platforms: platforms,
		sink:      sink,
		logger:    logger,
		now:       time.Now,

		auditTimeout: DefaultAuditTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type requestIDKey struct{}

// WithRequestID attaches the id used to correlate logs and audit records.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Handle processes one raw webhook body. It never panics and never returns
// an error: every failure ends in an Outcome that is logged and audited.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) (out Outcome) {
	requestID := requestIDFrom(ctx)
	log := d.logger.With(zap.String("request_id", requestID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling webhook",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			out = Outcome{
				Kind:      audit.KindSkipped,
				Reason:    ReasonInternalError,
				CommentID: out.CommentID,
				PageID:    out.PageID,
				Err:       fmt.Errorf("panic: %v", r),
			}
		}
		d.record(ctx, log, requestID, out)
	}()

	ev, err := ParseEvent(raw)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrIgnoredEvent) {
			return skipped(ReasonIgnoredEvent, nil, nil)
		}
		return skipped(ReasonMalformedPayload, nil, err)
	}
	out.CommentID, out.PageID = ev.CommentID, ev.PageID

	if ev.AuthorID == ev.PageID {
		return skipped(ReasonSelfComment, ev, nil)
	}

	if d.dedup != nil {
		first, err := d.dedup.Claim(ctx, ev.CommentID)
		if err != nil {
			log.Warn("dedup unavailable, processing anyway", zap.String("comment_id", ev.CommentID), zap.Error(err))
		}
		if !first {
			return skipped(ReasonDuplicate, ev, nil)
		}
	}

	page, err := d.store.GetFanPage(ctx, ev.PageID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return skipped(ReasonUnknownPage, ev, apperrors.New(apperrors.ErrUnknownPage, "page %s is not configured", ev.PageID))
		}
		return skipped(ReasonStoreError, ev, err)
	}

	replyRules, err := d.store.GetReplyRules(ctx, ev.PageID)
	if err != nil {
		return skipped(ReasonStoreError, ev, err)
	}

	platform := d.platforms(page.AccessToken)
	normalized := rules.Normalize(ev.Message)

	if rule, ok := rules.Match(normalized, replyRules); ok {
		log.Debug("reply rule matched",
			zap.String("comment_id", ev.CommentID),
			zap.Int64("rule_id", rule.ID),
			zap.String("trigger", rules.MatchingTrigger(normalized, *rule)),
		)
		_, err := platform.ReplyToComment(ctx, ev.CommentID, rule.ReplyText, rule.ImagePath)
		return Outcome{Kind: audit.KindReplied, RuleID: rule.ID, CommentID: ev.CommentID, PageID: ev.PageID, Err: err}
	}

	if page.DeleteMode() {
		err := platform.DeleteComment(ctx, ev.CommentID)
		return Outcome{Kind: audit.KindDeleted, CommentID: ev.CommentID, PageID: ev.PageID, Err: err}
	}
	err = platform.HideComment(ctx, ev.CommentID)
	return Outcome{Kind: audit.KindHidden, CommentID: ev.CommentID, PageID: ev.PageID, Err: err}
}

func skipped(reason string, ev *CommentEvent, err error) Outcome {
	out := Outcome{Kind: audit.KindSkipped, Reason: reason, Err: err}
	if ev != nil {
		out.CommentID, out.PageID = ev.CommentID, ev.PageID
	}
	return out
}

func (d *Dispatcher) level(out Outcome) audit.Level {
	switch out.Reason {
	case ReasonIgnoredEvent:
		return audit.LevelTrace
	case ReasonSelfComment, ReasonDuplicate:
		return audit.LevelInfo
	case ReasonMalformedPayload:
		return audit.LevelWarning
	case ReasonUnknownPage, ReasonStoreError, ReasonInternalError:
		return audit.LevelError
	}
	if out.Err != nil {
		return audit.LevelError
	}
	return audit.LevelInfo
}

func (d *Dispatcher) record(ctx context.Context, log *zap.Logger, requestID string, out Outcome) {
	level := d.level(out)
	rec := audit.Record{
		Time:      d.now(),
		Level:     level,
		RequestID: requestID,
		CommentID: out.CommentID,
		PageID:    out.PageID,
		Kind:      out.Kind,
		Reason:    out.Reason,
		RuleID:    out.RuleID,
		Success:   out.Kind != audit.KindSkipped && out.Err == nil,
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}

	fields := []zap.Field{
		zap.String("outcome", out.String()),
		zap.String("comment_id", out.CommentID),
		zap.String("page_id", out.PageID),
	}
	if out.Err != nil {
		fields = append(fields, zap.Error(out.Err))
	}
	switch level {
	case audit.LevelTrace:
		log.Debug("webhook event ignored", fields...)
	case audit.LevelInfo:
		log.Info("webhook event handled", fields...)
	case audit.LevelWarning:
		log.Warn("webhook event rejected", fields...)
	default:
		log.Error("webhook event failed", fields...)
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.auditTimeout)
	defer cancel()
	if err := d.sink.Append(auditCtx, rec); err != nil {
		log.Warn("audit append failed", zap.Error(err))
	}
}
