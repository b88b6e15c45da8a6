package db

// Fan page queries. Placeholders are written as ? and rebound for Postgres.
const (
	upsertFanPageQuery = `
        INSERT INTO fan_pages (id, page_name, page_avatar, access_token)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            page_name = EXCLUDED.page_name,
            page_avatar = EXCLUDED.page_avatar,
            access_token = EXCLUDED.access_token`

	getFanPageQuery = `
        SELECT id, page_name, page_avatar, access_token, delete_mode, cleaner_enabled
        FROM fan_pages
        WHERE id = ?`

	getFanPageTokenQuery = `SELECT access_token FROM fan_pages WHERE id = ?`

	listFanPagesQuery = `
        SELECT id, page_name, page_avatar, access_token, delete_mode, cleaner_enabled
        FROM fan_pages
        ORDER BY page_name, id`

	deleteFanPageQuery = `DELETE FROM fan_pages WHERE id = ?`

	updateFanPageModeQuery = `UPDATE fan_pages SET delete_mode = ? WHERE id = ?`

	updateCleanerQuery = `UPDATE fan_pages SET cleaner_enabled = ? WHERE id = ?`

	updateFanPageTokenQuery = `UPDATE fan_pages SET access_token = ? WHERE id = ?`
)

// Reply rule queries
const (
	insertReplyRuleQuery = `
        INSERT INTO reply_rules (page_id, trigger_words, reply_text, image_path)
        VALUES (?, ?, ?, ?)
        RETURNING rule_id`

	updateReplyRuleQuery = `
        UPDATE reply_rules
        SET trigger_words = ?, reply_text = ?, image_path = ?
        WHERE rule_id = ?`

	deleteReplyRuleQuery = `DELETE FROM reply_rules WHERE rule_id = ?`

	getReplyRuleQuery = `
        SELECT rule_id, page_id, trigger_words, reply_text, image_path
        FROM reply_rules
        WHERE rule_id = ?`

	// Evaluation order is rule_id ascending; the matcher relies on it.
	listReplyRulesQuery = `
        SELECT rule_id, page_id, trigger_words, reply_text, image_path
        FROM reply_rules
        WHERE page_id = ?
        ORDER BY rule_id ASC`
)

// App queries
const (
	upsertAppQuery = `
        INSERT INTO apps (app_id, app_name, app_token)
        VALUES (?, ?, ?)
        ON CONFLICT (app_id) DO UPDATE SET
            app_name = EXCLUDED.app_name,
            app_token = EXCLUDED.app_token`

	getAppQuery = `SELECT app_id, app_name, app_token FROM apps WHERE app_id = ?`

	listAppsQuery = `SELECT app_id, app_name, app_token FROM apps ORDER BY app_name, app_id`

	deleteAppQuery = `DELETE FROM apps WHERE app_id = ?`
)
