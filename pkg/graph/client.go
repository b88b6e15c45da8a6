package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"comment-moderator/config"
	apperrors "comment-moderator/pkg/errors"
)

const maxResponseBytes = 10 << 20

// Options are shared by every Client; only the access token differs.
type Options struct {
	BaseURL    string
	APIVersion int
	HTTPClient *http.Client
	// UploadsDir holds reply images. Rules store bare file names.
	UploadsDir string
	Logger     *zap.Logger
}

// Client talks to the Graph API on behalf of one page, user or app token.
type Client struct {
	token      string
	endpoint   string
	httpClient *http.Client
	uploadsDir string
	logger     *zap.Logger
}

func NewClient(token string, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.APIVersion <= 0 {
		opts.APIVersion = 22
	}
	return &Client{
		token:      token,
		endpoint:   fmt.Sprintf("%s/v%d.0/", strings.TrimRight(opts.BaseURL, "/"), opts.APIVersion),
		httpClient: opts.HTTPClient,
		uploadsDir: opts.UploadsDir,
		logger:     opts.Logger,
	}
}

// Endpoint is the versioned base every request is resolved against.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// call sends one request to path (relative to the versioned endpoint).
// GET and DELETE carry params in the query string, POST in a form body.
func (c *Client) call(ctx context.Context, op, method, path string, params url.Values) ([]byte, error) {
	return c.callURL(ctx, op, method, c.endpoint+path, params)
}

func (c *Client) callURL(ctx context.Context, op, method, rawURL string, params url.Values) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, err, "%s: bad url", op)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.token)

	var body io.Reader
	contentType := ""
	if method == http.MethodPost {
		body = strings.NewReader(params.Encode())
		contentType = "application/x-www-form-urlencoded"
	} else {
		q := u.Query()
		for k, vs := range params {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, err, "%s: build request", op)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.do(op, req)
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error carries the full URL, access token included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		c.logger.Error("graph request failed",
			zap.String("method", op),
			zap.Error(err),
		)
		return nil, apperrors.Wrap(apperrors.ErrTransport, err, "%s: request failed", op)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, err, "%s: read response", op)
	}

	c.logger.Debug("graph request completed",
		zap.String("method", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if perr := platformError(op, resp.StatusCode, data); perr != nil {
		c.logger.Error("graph api error",
			zap.String("method", perr.Method),
			zap.String("message", perr.Message),
			zap.String("type", perr.Type),
			zap.Int("code", perr.Code),
			zap.Int("subcode", perr.Subcode),
			zap.String("fbtrace_id", perr.TraceID),
		)
		return nil, perr
	}
	return data, nil
}

// platformError extracts the `error` object of a response, or synthesises
// one for non-2xx or non-JSON bodies. Nil means the call succeeded.
func platformError(op string, status int, body []byte) *apperrors.PlatformError {
	if e := gjson.GetBytes(body, "error"); e.Exists() && e.IsObject() {
		return &apperrors.PlatformError{
			Method:  op,
			Message: e.Get("message").String(),
			Type:    e.Get("type").String(),
			Code:    int(e.Get("code").Int()),
			Subcode: int(e.Get("error_subcode").Int()),
			TraceID: e.Get("fbtrace_id").String(),
			Status:  status,
		}
	}
	if status < 200 || status >= 300 {
		return &apperrors.PlatformError{Method: op, Message: http.StatusText(status), Status: status}
	}
	if !gjson.ValidBytes(body) {
		return &apperrors.PlatformError{Method: op, Message: "unparseable response", Status: status}
	}
	return nil
}

// acknowledged accepts both {"success":true} and a bare `true` body.
func acknowledged(op string, body []byte) error {
	res := gjson.ParseBytes(body)
	if res.Type == gjson.True || res.Get("success").Bool() {
		return nil
	}
	return &apperrors.PlatformError{Method: op, Message: "request not acknowledged: " + truncate(string(body), 200)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// PageInfo is the subset of a page object the admin tools store.
type PageInfo struct {
	ID        string
	Name      string
	AvatarURL string
}

func (c *Client) GetPageInfo(ctx context.Context, pageID string) (*PageInfo, error) {
	body, err := c.call(ctx, "GetPageInfo", http.MethodGet, url.PathEscape(pageID), url.Values{"fields": {"id,name,picture"}})
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if !res.Get("name").Exists() {
		return nil, &apperrors.PlatformError{Method: "GetPageInfo", Message: "page info has no name"}
	}
	return &PageInfo{
		ID:        firstNonEmpty(res.Get("id").String(), pageID),
		Name:      res.Get("name").String(),
		AvatarURL: res.Get("picture.data.url").String(),
	}, nil
}

// SubscribeToFeed subscribes the app to the page's feed webhook.
func (c *Client) SubscribeToFeed(ctx context.Context, pageID string) error {
	body, err := c.call(ctx, "SubscribeToFeed", http.MethodPost, url.PathEscape(pageID)+"/subscribed_apps",
		url.Values{"subscribed_fields": {"feed"}})
	if err != nil {
		return err
	}
	return acknowledged("SubscribeToFeed", body)
}

func (c *Client) UnsubscribeFromFeed(ctx context.Context, pageID string) error {
	body, err := c.call(ctx, "UnsubscribeFromFeed", http.MethodDelete, url.PathEscape(pageID)+"/subscribed_apps",
		url.Values{"subscribed_fields": {"feed"}})
	if err != nil {
		return err
	}
	return acknowledged("UnsubscribeFromFeed", body)
}

// TokenStatus is the outcome of ValidateToken. A token the platform rejects
// is reported as Valid=false, not as an error.
type TokenStatus struct {
	Valid bool
	ID    string
	Name  string
	Error string
}

func (c *Client) ValidateToken(ctx context.Context) (*TokenStatus, error) {
	body, err := c.call(ctx, "ValidateToken", http.MethodGet, "me", url.Values{"fields": {"id,name"}})
	if err != nil {
		var perr *apperrors.PlatformError
		if errors.As(err, &perr) {
			return &TokenStatus{Valid: false, Error: perr.Message}, nil
		}
		return nil, err
	}
	res := gjson.ParseBytes(body)
	return &TokenStatus{
		Valid: res.Get("id").Exists(),
		ID:    res.Get("id").String(),
		Name:  res.Get("name").String(),
	}, nil
}

func (c *Client) HideComment(ctx context.Context, commentID string) error {
	body, err := c.call(ctx, "HideComment", http.MethodPost, url.PathEscape(commentID), url.Values{"is_hidden": {"true"}})
	if err != nil {
		return err
	}
	return acknowledged("HideComment", body)
}

func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	body, err := c.call(ctx, "DeleteComment", http.MethodDelete, url.PathEscape(commentID), nil)
	if err != nil {
		return err
	}
	return acknowledged("DeleteComment", body)
}

// ImagePath resolves a stored image name inside the uploads directory.
// Only the base name is used so a rule cannot point outside it.
func (c *Client) ImagePath(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == ".." {
		return "", apperrors.New(apperrors.ErrImage, "invalid image name %q", name)
	}
	return filepath.Join(c.uploadsDir, base), nil
}

// UploadPhoto uploads an unpublished photo and returns its id, ready to be
// used as an attachment.
func (c *Client) UploadPhoto(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrImage, err, "open image %s", filepath.Base(path))
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("published", "false")
	_ = mw.WriteField("access_token", c.token)
	part, err := mw.CreateFormFile("source", filepath.Base(path))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrImage, err, "build upload")
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", apperrors.Wrap(apperrors.ErrImage, err, "read image %s", filepath.Base(path))
	}
	if err := mw.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.ErrImage, err, "build upload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"me/photos", &buf)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrTransport, err, "UploadPhoto: build request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do("UploadPhoto", req)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", &apperrors.PlatformError{Method: "UploadPhoto", Message: "upload returned no id"}
	}
	return id, nil
}

// ReplyToComment posts a reply and returns the new comment's id. With an
// image the photo is uploaded first; a missing file or failed upload aborts
// the reply so no text-only reply goes out in its place.
func (c *Client) ReplyToComment(ctx context.Context, commentID, message, image string) (string, error) {
	params := url.Values{"message": {message}}

	if strings.TrimSpace(image) != "" {
		path, err := c.ImagePath(image)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err != nil {
			c.logger.Error("reply image not found", zap.String("image", filepath.Base(path)), zap.Error(err))
			return "", apperrors.Wrap(apperrors.ErrImage, err, "image %s not found", filepath.Base(path))
		}
		attachmentID, err := c.UploadPhoto(ctx, path)
		if err != nil {
			return "", err
		}
		params.Set("attachment_id", attachmentID)
	}

	body, err := c.call(ctx, "ReplyToComment", http.MethodPost, url.PathEscape(commentID)+"/comments", params)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", &apperrors.PlatformError{Method: "ReplyToComment", Message: "reply returned no id"}
	}
	return id, nil
}

// UserPage is one page a user token can manage, with its own page token.
type UserPage struct {
	ID          string
	Name        string
	AvatarURL   string
	AccessToken string
}

// GetUserPages lists every page behind a user token, following pagination.
func (c *Client) GetUserPages(ctx context.Context) ([]UserPage, error) {
	var pages []UserPage
	err := c.paginate(ctx, "GetUserPages", "me/accounts",
		url.Values{"fields": {"id,name,access_token,picture"}, "limit": {"100"}},
		func(item gjson.Result) {
			pages = append(pages, UserPage{
				ID:          item.Get("id").String(),
				Name:        item.Get("name").String(),
				AvatarURL:   item.Get("picture.data.url").String(),
				AccessToken: item.Get("access_token").String(),
			})
		})
	return pages, err
}

// paginate walks `data` arrays, following `paging.next` while it stays on
// the configured endpoint.
func (c *Client) paginate(ctx context.Context, op, path string, params url.Values, each func(gjson.Result)) error {
	next := c.endpoint + path
	for next != "" {
		body, err := c.callURL(ctx, op, http.MethodGet, next, params)
		if err != nil {
			return err
		}
		res := gjson.ParseBytes(body)
		res.Get("data").ForEach(func(_, item gjson.Result) bool {
			each(item)
			return true
		})

		next = res.Get("paging.next").String()
		if next != "" && !strings.HasPrefix(next, c.endpoint) {
			c.logger.Warn("not following pagination outside the graph endpoint", zap.String("method", op))
			next = ""
		}
		// The next URL already carries the cursor and fields.
		params = nil
	}
	return nil
}

type AppInfo struct {
	ID   string
	Name string
}

// GetAppInfo resolves the app an app token belongs to.
func (c *Client) GetAppInfo(ctx context.Context) (*AppInfo, error) {
	body, err := c.call(ctx, "GetAppInfo", http.MethodGet, "app", url.Values{"fields": {"id,name"}})
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if res.Get("id").String() == "" {
		return nil, &apperrors.PlatformError{Method: "GetAppInfo", Message: "app info has no id"}
	}
	return &AppInfo{ID: res.Get("id").String(), Name: firstNonEmpty(res.Get("name").String(), "Unknown App")}, nil
}

// SubscribeApp points the app's page/feed webhook at callbackURL.
func (c *Client) SubscribeApp(ctx context.Context, appID, callbackURL, verifyToken string) error {
	body, err := c.call(ctx, "SubscribeApp", http.MethodPost, url.PathEscape(appID)+"/subscriptions", url.Values{
		"object":         {"page"},
		"callback_url":   {callbackURL},
		"fields":         {"feed"},
		"verify_token":   {verifyToken},
		"include_values": {"true"},
	})
	if err != nil {
		return err
	}
	return acknowledged("SubscribeApp", body)
}

func (c *Client) UnsubscribeApp(ctx context.Context, appID string) error {
	body, err := c.call(ctx, "UnsubscribeApp", http.MethodDelete, url.PathEscape(appID)+"/subscriptions",
		url.Values{"object": {"page"}})
	if err != nil {
		return err
	}
	return acknowledged("UnsubscribeApp", body)
}

type Subscription struct {
	Object      string
	CallbackURL string
	Active      bool
	Fields      []string
}

// HasPageFeed reports whether the subscription delivers page feed events.
func (s Subscription) HasPageFeed() bool {
	if s.Object != "page" || !s.Active {
		return false
	}
	for _, f := range s.Fields {
		if f == "feed" {
			return true
		}
	}
	return false
}

func (c *Client) ListAppSubscriptions(ctx context.Context, appID string) ([]Subscription, error) {
	body, err := c.call(ctx, "ListAppSubscriptions", http.MethodGet, url.PathEscape(appID)+"/subscriptions", nil)
	if err != nil {
		return nil, err
	}
	var subs []Subscription
	gjson.GetBytes(body, "data").ForEach(func(_, item gjson.Result) bool {
		sub := Subscription{
			Object:      item.Get("object").String(),
			CallbackURL: item.Get("callback_url").String(),
			Active:      item.Get("active").Bool(),
		}
		item.Get("fields").ForEach(func(_, f gjson.Result) bool {
			// Fields come back either as names or as {name, version}.
			if name := f.Get("name").String(); name != "" {
				sub.Fields = append(sub.Fields, name)
			} else if f.Type == gjson.String {
				sub.Fields = append(sub.Fields, f.String())
			}
			return true
		})
		subs = append(subs, sub)
		return true
	})
	return subs, nil
}

// CleanResult summarises a CleanPageContent run.
type CleanResult struct {
	Deleted int
	Failed  int
	Errors  []string
}

// CleanPageContent deletes every post on the page feed. Individual delete
// failures are collected, not fatal; a failure to list the feed is.
func (c *Client) CleanPageContent(ctx context.Context, pageID string) (*CleanResult, error) {
	var ids []string
	err := c.paginate(ctx, "CleanPageContent", url.PathEscape(pageID)+"/feed",
		url.Values{"fields": {"id"}, "limit": {"100"}},
		func(item gjson.Result) {
			if id := item.Get("id").String(); id != "" {
				ids = append(ids, id)
			}
		})
	if err != nil {
		return nil, err
	}

	result := &CleanResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		body, err := c.call(ctx, "CleanPageContent", http.MethodDelete, url.PathEscape(id), nil)
		if err == nil {
			err = acknowledged("CleanPageContent", body)
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		result.Deleted++
	}
	c.logger.Info("page content cleaned",
		zap.String("page_id", pageID),
		zap.Int("deleted", result.Deleted),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// OptionsFromConfig builds Options with an http.Client bounded by cfg.Timeout.
func OptionsFromConfig(cfg config.GraphConfig, logger *zap.Logger) Options {
	return Options{
		BaseURL:    cfg.BaseURL,
		APIVersion: cfg.APIVersion,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		UploadsDir: cfg.UploadsDir,
		Logger:     logger,
	}
}
