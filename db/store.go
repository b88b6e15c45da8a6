package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"comment-moderator/models"
	apperrors "comment-moderator/pkg/errors"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFanPage(row rowScanner) (*models.FanPage, error) {
	var (
		page       models.FanPage
		deleteMode bool
	)
	if err := row.Scan(&page.ID, &page.Name, &page.AvatarURL, &page.AccessToken, &deleteMode, &page.CleanerEnabled); err != nil {
		return nil, err
	}
	page.Mode = models.ModeHide
	if deleteMode {
		page.Mode = models.ModeDelete
	}
	return &page, nil
}

func scanReplyRule(row rowScanner) (models.ReplyRule, error) {
	var (
		rule  models.ReplyRule
		image sql.NullString
	)
	if err := row.Scan(&rule.ID, &rule.PageID, &rule.TriggerWords, &rule.ReplyText, &image); err != nil {
		return models.ReplyRule{}, err
	}
	rule.ImagePath = image.String
	return rule, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// expectOneRow turns a zero-row UPDATE/DELETE into a NotFound error.
func expectOneRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "%s %s not found", what, id)
	}
	return nil
}

// AddFanPage inserts a page or refreshes its name, avatar and token.
// Mode and cleaner flag of an existing page are left alone.
func (d *Database) AddFanPage(ctx context.Context, page models.FanPage) error {
	if page.ID == "" || page.AccessToken == "" {
		return apperrors.New(apperrors.ErrValidation, "page id and access token are required")
	}
	_, err := d.DB.ExecContext(ctx, d.rebind(upsertFanPageQuery), page.ID, page.Name, page.AvatarURL, page.AccessToken)
	if err != nil {
		return fmt.Errorf("add fan page %s: %w", page.ID, err)
	}
	return nil
}

// RemoveFanPage deletes a page; its reply rules go with it.
func (d *Database) RemoveFanPage(ctx context.Context, pageID string) error {
	res, err := d.DB.ExecContext(ctx, d.rebind(deleteFanPageQuery), pageID)
	if err != nil {
		return fmt.Errorf("remove fan page %s: %w", pageID, err)
	}
	return expectOneRow(res, "fan page", pageID)
}

// GetFanPage returns an ErrNotFound AppError when the page is not configured.
func (d *Database) GetFanPage(ctx context.Context, pageID string) (*models.FanPage, error) {
	page, err := scanFanPage(d.DB.QueryRowContext(ctx, d.rebind(getFanPageQuery), pageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "fan page %s not found", pageID)
	}
	if err != nil {
		return nil, fmt.Errorf("get fan page %s: %w", pageID, err)
	}
	return page, nil
}

// GetFanPageToken reads only the access token, for callers that cache the
// rest of the page.
func (d *Database) GetFanPageToken(ctx context.Context, pageID string) (string, error) {
	var token string
	err := d.DB.QueryRowContext(ctx, d.rebind(getFanPageTokenQuery), pageID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.New(apperrors.ErrNotFound, "fan page %s not found", pageID)
	}
	if err != nil {
		return "", fmt.Errorf("get fan page token %s: %w", pageID, err)
	}
	return token, nil
}

func (d *Database) GetFanPages(ctx context.Context) ([]models.FanPage, error) {
	rows, err := d.DB.QueryContext(ctx, listFanPagesQuery)
	if err != nil {
		return nil, fmt.Errorf("list fan pages: %w", err)
	}
	defer rows.Close()

	var pages []models.FanPage
	for rows.Next() {
		page, err := scanFanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fan page: %w", err)
		}
		pages = append(pages, *page)
	}
	return pages, rows.Err()
}

func (d *Database) UpdateFanPageMode(ctx context.Context, pageID string, mode models.DispositionMode) error {
	res, err := d.DB.ExecContext(ctx, d.rebind(updateFanPageModeQuery), mode == models.ModeDelete, pageID)
	if err != nil {
		return fmt.Errorf("update mode for %s: %w", pageID, err)
	}
	return expectOneRow(res, "fan page", pageID)
}

func (d *Database) UpdateCleanerStatus(ctx context.Context, pageID string, enabled bool) error {
	res, err := d.DB.ExecContext(ctx, d.rebind(updateCleanerQuery), enabled, pageID)
	if err != nil {
		return fmt.Errorf("update cleaner for %s: %w", pageID, err)
	}
	return expectOneRow(res, "fan page", pageID)
}

func (d *Database) UpdateFanPageToken(ctx context.Context, pageID, token string) error {
	if token == "" {
		return apperrors.New(apperrors.ErrValidation, "access token is required")
	}
	res, err := d.DB.ExecContext(ctx, d.rebind(updateFanPageTokenQuery), token, pageID)
	if err != nil {
		return fmt.Errorf("update token for %s: %w", pageID, err)
	}
	return expectOneRow(res, "fan page", pageID)
}

// AddReplyRule stores a rule and returns its id. Rules are evaluated in id
// order, so a new rule always has the lowest priority on its page.
func (d *Database) AddReplyRule(ctx context.Context, rule models.ReplyRule) (int64, error) {
	if err := validateRule(rule); err != nil {
		return 0, err
	}
	var id int64
	err := d.DB.QueryRowContext(ctx, d.rebind(insertReplyRuleQuery),
		rule.PageID, rule.TriggerWords, rule.ReplyText, nullableString(rule.ImagePath),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add reply rule for %s: %w", rule.PageID, err)
	}
	return id, nil
}

// UpdateReplyRule rewrites triggers, reply text and image of rule.ID.
func (d *Database) UpdateReplyRule(ctx context.Context, rule models.ReplyRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	res, err := d.DB.ExecContext(ctx, d.rebind(updateReplyRuleQuery),
		rule.TriggerWords, rule.ReplyText, nullableString(rule.ImagePath), rule.ID,
	)
	if err != nil {
		return fmt.Errorf("update reply rule %d: %w", rule.ID, err)
	}
	return expectOneRow(res, "reply rule", fmt.Sprint(rule.ID))
}

func (d *Database) RemoveReplyRule(ctx context.Context, ruleID int64) error {
	res, err := d.DB.ExecContext(ctx, d.rebind(deleteReplyRuleQuery), ruleID)
	if err != nil {
		return fmt.Errorf("remove reply rule %d: %w", ruleID, err)
	}
	return expectOneRow(res, "reply rule", fmt.Sprint(ruleID))
}

func (d *Database) GetReplyRule(ctx context.Context, ruleID int64) (*models.ReplyRule, error) {
	rule, err := scanReplyRule(d.DB.QueryRowContext(ctx, d.rebind(getReplyRuleQuery), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "reply rule %d not found", ruleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get reply rule %d: %w", ruleID, err)
	}
	return &rule, nil
}

// GetReplyRules returns the page's rules in evaluation order. A page with no
// rules yields an empty slice, not an error.
func (d *Database) GetReplyRules(ctx context.Context, pageID string) ([]models.ReplyRule, error) {
	rows, err := d.DB.QueryContext(ctx, d.rebind(listReplyRulesQuery), pageID)
	if err != nil {
		return nil, fmt.Errorf("list reply rules for %s: %w", pageID, err)
	}
	defer rows.Close()

	rules := []models.ReplyRule{}
	for rows.Next() {
		rule, err := scanReplyRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reply rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func validateRule(rule models.ReplyRule) error {
	switch {
	case rule.PageID == "":
		return apperrors.New(apperrors.ErrValidation, "reply rule needs a page id")
	case models.JoinTriggers(rule.Triggers()) == "":
		return apperrors.New(apperrors.ErrValidation, "reply rule needs at least one trigger word")
	case rule.ReplyText == "":
		return apperrors.New(apperrors.ErrValidation, "reply rule needs reply text")
	}
	return nil
}

func (d *Database) AddApp(ctx context.Context, app models.App) error {
	if app.ID == "" || app.AccessToken == "" {
		return apperrors.New(apperrors.ErrValidation, "app id and access token are required")
	}
	if _, err := d.DB.ExecContext(ctx, d.rebind(upsertAppQuery), app.ID, app.Name, app.AccessToken); err != nil {
		return fmt.Errorf("add app %s: %w", app.ID, err)
	}
	return nil
}

func (d *Database) RemoveApp(ctx context.Context, appID string) error {
	res, err := d.DB.ExecContext(ctx, d.rebind(deleteAppQuery), appID)
	if err != nil {
		return fmt.Errorf("remove app %s: %w", appID, err)
	}
	return expectOneRow(res, "app", appID)
}

func (d *Database) GetApp(ctx context.Context, appID string) (*models.App, error) {
	var app models.App
	err := d.DB.QueryRowContext(ctx, d.rebind(getAppQuery), appID).Scan(&app.ID, &app.Name, &app.AccessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "app %s not found", appID)
	}
	if err != nil {
		return nil, fmt.Errorf("get app %s: %w", appID, err)
	}
	return &app, nil
}

func (d *Database) GetApps(ctx context.Context) ([]models.App, error) {
	rows, err := d.DB.QueryContext(ctx, listAppsQuery)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var apps []models.App
	for rows.Next() {
		var app models.App
		if err := rows.Scan(&app.ID, &app.Name, &app.AccessToken); err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}
