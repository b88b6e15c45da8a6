package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"comment-moderator/models"
)

func createAppsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Manage the apps whose page webhooks point at this server",
	}
	cmd.AddCommand(
		createAppsAddCmd(a),
		createAppsListCmd(a),
		createAppsRemoveCmd(a),
	)
	return cmd
}

func createAppsAddCmd(a *app) *cobra.Command {
	var (
		appToken    string
		callbackURL string
		verifyToken string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Subscribe an app's page feed webhook to this server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if verifyToken == "" {
				verifyToken = a.cfg.Webhook.VerifyToken
			}
			if verifyToken == "" {
				return fmt.Errorf("no verify token: pass --verify-token or set VERIFY_TOKEN")
			}

			client := a.newGraph(appToken)
			info, err := client.GetAppInfo(ctx)
			if err != nil {
				return err
			}
			if err := client.SubscribeApp(ctx, info.ID, callbackURL, verifyToken); err != nil {
				return err
			}
			if err := a.db.AddApp(ctx, models.App{ID: info.ID, Name: info.Name, AccessToken: appToken}); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✅ %s (%s) subscribed to %s\n", info.Name, info.ID, callbackURL)
			return nil
		},
	}
	cmd.Flags().StringVar(&appToken, "app-token", "", "app access token (APP_ID|APP_SECRET)")
	cmd.Flags().StringVar(&callbackURL, "callback-url", "", "public URL of this server's /webhook")
	cmd.Flags().StringVar(&verifyToken, "verify-token", "", "handshake token (defaults to VERIFY_TOKEN)")
	cmd.MarkFlagRequired("app-token")
	cmd.MarkFlagRequired("callback-url")
	return cmd
}

func createAppsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored apps and their live page subscription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			apps, err := a.db.GetApps(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFEED\tCALLBACK")
			for _, app := range apps {
				feed, callback := "no", "-"
				subs, err := a.newGraph(app.AccessToken).ListAppSubscriptions(ctx, app.ID)
				if err != nil {
					a.logger.Warn("listing subscriptions failed", zap.String("app_id", app.ID), zap.Error(err))
					feed = "unknown"
				}
				for _, s := range subs {
					if s.HasPageFeed() {
						feed, callback = "yes", s.CallbackURL
						break
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app.ID, app.Name, feed, callback)
			}
			return w.Flush()
		},
	}
}

func createAppsRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove APP_ID",
		Short: "Unsubscribe an app's page webhook and forget the app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := a.db.GetApp(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.newGraph(app.AccessToken).UnsubscribeApp(ctx, app.ID); err != nil {
				a.logger.Warn("app unsubscribe failed", zap.String("app_id", app.ID), zap.Error(err))
			}
			if err := a.db.RemoveApp(ctx, app.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "✅ removed app %s (%s)\n", app.Name, app.ID)
			return nil
		},
	}
}
