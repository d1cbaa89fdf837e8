package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"wacrm/internal/api"
	"wacrm/internal/collection"
	"wacrm/internal/models"
)

func newCampaignsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "campaigns",
		Aliases: []string{"campaign"},
		Short:   "Send drafts to contacts and follow the progress",
	}
	cmd.AddCommand(
		newCampaignsListCommand(a),
		newCampaignsShowCommand(a),
		newCampaignsSendCommand(a),
		newCampaignsCancelCommand(a),
		newCampaignsMessagesCommand(a),
	)
	return cmd
}

func newCampaignsListCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List campaigns, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			campaigns, err := a.client.Campaigns(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return a.out.JSON(campaigns)
			}
			if len(campaigns) == 0 {
				a.out.Print("No campaigns yet. Send a draft with: wacrm campaigns send --draft ID --to CATEGORY")
				return nil
			}

			rows := make([][]string, 0, len(campaigns))
			for _, c := range campaigns {
				rows = append(rows, []string{
					strconv.FormatInt(c.ID, 10),
					a.out.Bold(c.DraftTitle),
					c.Target,
					string(c.Status),
					fmt.Sprintf("%d/%d", c.SentCount, c.TotalCount),
					strconv.Itoa(c.FailedCount),
					c.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			a.out.Table([]string{"ID", "DRAFT", "TARGET", "STATUS", "SENT", "FAILED", "CREATED"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newCampaignsShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show the progress of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			resp, err := a.client.Campaign(cmd.Context(), id)
			if err != nil {
				return err
			}
			c := resp.Campaign
			if c == nil {
				return fmt.Errorf("campaign %d not found", id)
			}

			a.out.Print("%s %s", a.out.Bold(c.DraftTitle), a.out.Dim("("+c.Target+")"))
			a.out.Print("Status:  %s", c.Status)
			a.out.Print("Sent:    %d of %d", c.SentCount, c.TotalCount)
			a.out.Print("Failed:  %d", c.FailedCount)
			if pending := c.TotalCount - c.SentCount - c.FailedCount; pending > 0 && !c.Finished() {
				a.out.Print("Pending: %d", pending)
			}
			switch {
			case resp.Paused:
				a.out.Warning("paused until WhatsApp is connected again")
			case resp.NextSendInSeconds != nil:
				a.out.Print("Next message in %s", time.Duration(*resp.NextSendInSeconds)*time.Second)
			}
			return nil
		},
	}
}

func newCampaignsSendCommand(a *app) *cobra.Command {
	var (
		filters filterFlags
		draft   int64
		to      string
		all     bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "send --draft ID (--to CATEGORY | --all | ID...)",
		Short: "Send a draft to a category or to selected contacts",
		Long: `Queue a campaign sending a draft to every contact of a category (--to),
to every contact matching the filters (--all) or to the given contacts.
Messages go out one by one with a pause in between. Contacts known not to
be on WhatsApp are skipped.

Examples:
  wacrm campaigns send --draft 2 --to Leads
  wacrm campaigns send --draft 2 12 15 19
  wacrm campaigns send --draft 2 --all --search "@example.com" --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if draft <= 0 {
				return fmt.Errorf("--draft must be a draft ID")
			}
			if to != "" {
				if all || len(args) > 0 || len(filters.filter()) > 0 {
					return fmt.Errorf("--to sends to a whole category and takes no contact IDs or filters")
				}
				return a.sendToCategory(ctx, draft, to, yes)
			}

			var confirmer collection.Confirmer
			if !yes {
				confirmer = collection.ConfirmFunc(func(ctx context.Context, _ collection.Action, count int) (bool, error) {
					return a.confirm(fmt.Sprintf("Send draft %d to %d contacts?", draft, count))
				})
			}

			ctrl := a.newController(confirmer)
			if err := a.selectContacts(ctx, ctrl, filters.filter(), args, all); err != nil {
				return err
			}

			outcome, err := ctrl.BulkApply(ctx, collection.Send(map[string]string{
				models.FieldDraftID: strconv.FormatInt(draft, 10),
			}))
			if errors.Is(err, collection.ErrNotConfirmed) {
				a.out.Print("Aborted.")
				return nil
			}
			return a.report(outcome, err)
		},
	}

	filters.register(cmd)
	cmd.Flags().Int64Var(&draft, "draft", 0, "ID of the draft to send")
	cmd.Flags().StringVar(&to, "to", "", "send to every contact of this category (ID or name)")
	cmd.Flags().BoolVar(&all, "all", false, "send to every contact matching the filters")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	_ = cmd.MarkFlagRequired("draft")
	return cmd
}

func (a *app) sendToCategory(ctx context.Context, draft int64, ref string, yes bool) error {
	target, err := a.resolveCategory(ctx, ref)
	if err != nil {
		return err
	}
	if target == models.CategoryNone {
		return fmt.Errorf("campaigns need a category, not %q", ref)
	}
	categoryID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid category %q", target)
	}

	if !yes {
		ok, err := a.confirm(fmt.Sprintf("Send draft %d to every contact in category %s?", draft, ref))
		if err != nil {
			return err
		}
		if !ok {
			a.out.Print("Aborted.")
			return nil
		}
	}

	resp, err := a.client.CreateCampaign(ctx, api.CampaignRequest{DraftID: draft, CategoryID: categoryID})
	if err != nil {
		return err
	}
	a.out.Success("%s (campaign %d)", resp.Message, resp.Campaign.ID)
	return nil
}

func newCampaignsCancelCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Stop a campaign; messages already sent stay sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.client.CancelCampaign(cmd.Context(), id); err != nil {
				return err
			}
			a.out.Success("Cancelled campaign %d", id)
			return nil
		},
	}
}

func newCampaignsMessagesCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "messages ID",
		Short: "List the messages of a campaign with their delivery status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			messages, err := a.client.CampaignMessages(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return a.out.JSON(messages)
			}

			rows := make([][]string, 0, len(messages))
			for _, m := range messages {
				note := ""
				if m.ErrorMessage != nil {
					note = *m.ErrorMessage
				}
				rows = append(rows, []string{
					strconv.FormatInt(m.ContactID, 10),
					a.out.Bold(m.ContactName),
					"+" + m.Phone,
					string(m.Status),
					note,
				})
			}
			a.out.Table([]string{"CONTACT", "NAME", "PHONE", "STATUS", "ERROR"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
