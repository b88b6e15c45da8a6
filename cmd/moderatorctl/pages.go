package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"comment-moderator/models"
)

func createPagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Manage moderated fan pages",
	}
	cmd.AddCommand(
		createPagesImportCmd(a),
		createPagesListCmd(a),
		createPagesRemoveCmd(a),
		createPagesModeCmd(a),
		createPagesCleanerCmd(a),
		createPagesTokenCmd(a),
	)
	return cmd
}

func createPagesImportCmd(a *app) *cobra.Command {
	var userToken string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import every page a user token manages",
		Long: `Fetch the pages behind a user access token, subscribe the app to each
page's feed and store the page with its own page token. Existing pages keep
their disposition mode and cleaner flag.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pages, err := a.newGraph(userToken).GetUserPages(ctx)
			if err != nil {
				return err
			}
			if len(pages) == 0 {
				fmt.Fprintln(a.out, "no pages found for this token")
				return nil
			}

			imported := 0
			for _, p := range pages {
				if err := a.newGraph(p.AccessToken).SubscribeToFeed(ctx, p.ID); err != nil {
					a.logger.Error("feed subscription failed, page skipped",
						zap.String("page_id", p.ID), zap.Error(err))
					fmt.Fprintf(a.out, "❌ %s (%s): %v\n", p.Name, p.ID, err)
					continue
				}
				err := a.db.AddFanPage(ctx, models.FanPage{
					ID:          p.ID,
					Name:        p.Name,
					AvatarURL:   p.AvatarURL,
					AccessToken: p.AccessToken,
				})
				if err != nil {
					return err
				}
				a.invalidate(ctx, p.ID)
				imported++
				fmt.Fprintf(a.out, "✅ %s (%s)\n", p.Name, p.ID)
			}
			fmt.Fprintf(a.out, "imported %d of %d pages\n", imported, len(pages))
			return nil
		},
	}
	cmd.Flags().StringVar(&userToken, "user-token", "", "user access token with pages_manage_metadata")
	cmd.MarkFlagRequired("user-token")
	return cmd
}

func createPagesListCmd(a *app) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List moderated pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pages, err := a.db.GetFanPages(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			header := "ID\tNAME\tMODE\tCLEANER\tTOKEN"
			if validate {
				header += "\tSTATUS"
			}
			fmt.Fprintln(w, header)
			for _, p := range pages {
				line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s", p.ID, p.Name, p.Mode, onOff(p.CleanerEnabled), models.MaskToken(p.AccessToken))
				if validate {
					line += "\t" + a.tokenStatus(cmd, p.AccessToken)
				}
				fmt.Fprintln(w, line)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "check each page token against the platform")
	return cmd
}

func (a *app) tokenStatus(cmd *cobra.Command, token string) string {
	status, err := a.newGraph(token).ValidateToken(cmd.Context())
	switch {
	case err != nil:
		return "unknown: " + err.Error()
	case status.Valid:
		return "valid"
	default:
		return "invalid: " + status.Error
	}
}

func createPagesRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove PAGE_ID",
		Short: "Stop moderating a page and delete its rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			page, err := a.db.GetFanPage(ctx, args[0])
			if err != nil {
				return err
			}
			// The page is removed even when the platform refuses; a revoked
			// token is the usual reason to remove it.
			if err := a.newGraph(page.AccessToken).UnsubscribeFromFeed(ctx, page.ID); err != nil {
				a.logger.Warn("feed unsubscribe failed", zap.String("page_id", page.ID), zap.Error(err))
			}
			if err := a.db.RemoveFanPage(ctx, page.ID); err != nil {
				return err
			}
			a.invalidate(ctx, page.ID)
			fmt.Fprintf(a.out, "✅ removed %s (%s)\n", page.Name, page.ID)
			return nil
		},
	}
}

func createPagesModeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "mode PAGE_ID hide|delete",
		Short:     "Choose what happens to comments no rule answers",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(models.ModeHide), string(models.ModeDelete)},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := models.ParseMode(args[1])
			if err != nil {
				return err
			}
			if err := a.db.UpdateFanPageMode(cmd.Context(), args[0], mode); err != nil {
				return err
			}
			a.invalidate(cmd.Context(), args[0])
			fmt.Fprintf(a.out, "✅ page %s now uses %s mode\n", args[0], mode)
			return nil
		},
	}
}

func createPagesCleanerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleaner PAGE_ID on|off",
		Short: "Allow or forbid bulk cleaning of a page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[1]) {
			case "on", "true", "1":
				enabled = true
			case "off", "false", "0":
			default:
				return fmt.Errorf("cleaner state must be on or off, got %q", args[1])
			}
			if err := a.db.UpdateCleanerStatus(cmd.Context(), args[0], enabled); err != nil {
				return err
			}
			a.invalidate(cmd.Context(), args[0])
			fmt.Fprintf(a.out, "✅ cleaner %s for page %s\n", onOff(enabled), args[0])
			return nil
		},
	}
}

func createPagesTokenCmd(a *app) *cobra.Command {
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "token PAGE_ID TOKEN",
		Short: "Replace a page's access token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !skipCheck {
				status, err := a.newGraph(args[1]).ValidateToken(ctx)
				if err != nil {
					return err
				}
				if !status.Valid {
					return fmt.Errorf("token rejected by the platform: %s", status.Error)
				}
			}
			if err := a.db.UpdateFanPageToken(ctx, args[0], args[1]); err != nil {
				return err
			}
			a.invalidate(ctx, args[0])
			fmt.Fprintf(a.out, "✅ token updated for page %s (%s)\n", args[0], models.MaskToken(args[1]))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipCheck, "no-validate", false, "store the token without asking the platform")
	return cmd
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
