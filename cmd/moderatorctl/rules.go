package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"comment-moderator/models"
)

func createRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage keyword reply rules",
		Long: `Reply rules are checked in creation order; the first rule with a
trigger word found in a comment answers it. A trigger of * answers every
comment.`,
	}
	cmd.AddCommand(
		createRulesListCmd(a),
		createRulesAddCmd(a),
		createRulesUpdateCmd(a),
		createRulesRemoveCmd(a),
	)
	return cmd
}

func createRulesListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list PAGE_ID",
		Short: "List a page's rules in match order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := a.db.GetReplyRules(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTRIGGERS\tREPLY\tIMAGE")
			for _, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.TriggerWords, r.ReplyText, r.ImagePath)
			}
			return w.Flush()
		},
	}
}

func createRulesAddCmd(a *app) *cobra.Command {
	var (
		triggers []string
		reply    string
		image    string
	)

	cmd := &cobra.Command{
		Use:   "add PAGE_ID",
		Short: "Append a reply rule to a page",
		Long: `Append a reply rule to a page.

Examples:
  moderatorctl rules add 1234 --triggers price,cost --reply "See our pricing page"
  moderatorctl rules add 1234 --triggers "*" --reply "Thanks!" --image thanks.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			imageName, err := a.checkImage(image)
			if err != nil {
				return err
			}
			rule := models.ReplyRule{
				PageID:       args[0],
				TriggerWords: models.JoinTriggers(triggers),
				ReplyText:    reply,
				ImagePath:    imageName,
			}
			id, err := a.db.AddReplyRule(ctx, rule)
			if err != nil {
				return err
			}
			a.invalidate(ctx, rule.PageID)
			fmt.Fprintf(a.out, "✅ rule %d added to page %s\n", id, rule.PageID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&triggers, "triggers", nil, "comma separated trigger words")
	cmd.Flags().StringVar(&reply, "reply", "", "reply text")
	cmd.Flags().StringVar(&image, "image", "", "image file name in the uploads directory")
	cmd.MarkFlagRequired("triggers")
	cmd.MarkFlagRequired("reply")
	return cmd
}

func createRulesUpdateCmd(a *app) *cobra.Command {
	var (
		triggers   []string
		reply      string
		image      string
		clearImage bool
	)

	cmd := &cobra.Command{
		Use:   "update RULE_ID",
		Short: "Change a rule's triggers, reply or image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}
			rule, err := a.db.GetReplyRule(ctx, id)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("triggers") {
				rule.TriggerWords = models.JoinTriggers(triggers)
			}
			if flags.Changed("reply") {
				rule.ReplyText = reply
			}
			switch {
			case clearImage:
				rule.ImagePath = ""
			case flags.Changed("image"):
				if rule.ImagePath, err = a.checkImage(image); err != nil {
					return err
				}
			}

			if err := a.db.UpdateReplyRule(ctx, *rule); err != nil {
				return err
			}
			a.invalidate(ctx, rule.PageID)
			fmt.Fprintf(a.out, "✅ rule %d updated\n", rule.ID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&triggers, "triggers", nil, "comma separated trigger words")
	cmd.Flags().StringVar(&reply, "reply", "", "reply text")
	cmd.Flags().StringVar(&image, "image", "", "image file name in the uploads directory")
	cmd.Flags().BoolVar(&clearImage, "clear-image", false, "drop the rule's image")
	cmd.MarkFlagsMutuallyExclusive("image", "clear-image")
	return cmd
}

func createRulesRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove RULE_ID",
		Short: "Delete a reply rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule id %q", args[0])
			}
			rule, err := a.db.GetReplyRule(ctx, id)
			if err != nil {
				return err
			}
			if err := a.db.RemoveReplyRule(ctx, id); err != nil {
				return err
			}
			a.invalidate(ctx, rule.PageID)
			fmt.Fprintf(a.out, "✅ rule %d removed from page %s\n", id, rule.PageID)
			return nil
		},
	}
}

// checkImage reduces name to the base name the server will resolve and
// warns when the file is not in the uploads directory yet. The image may
// be uploaded later, but until then the rule's replies fail.
func (a *app) checkImage(name string) (string, error) {
	if name == "" {
		return "", nil
	}
	path, err := a.newGraph("").ImagePath(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(a.out, "⚠️  %s not found; upload it before the rule fires\n", path)
	}
	return filepath.Base(path), nil
}
