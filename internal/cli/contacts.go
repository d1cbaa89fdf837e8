package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wacrm/internal/collection"
	"wacrm/internal/models"
	"wacrm/internal/remote"
)

// filterFlags are the list filters shared by list, move and delete.
type filterFlags struct {
	search     string
	category   string
	onWhatsApp string
	source     string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "match name, phone or email")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", `category ID or "none"`)
	cmd.Flags().StringVar(&f.onWhatsApp, "on-whatsapp", "", "true or false")
	cmd.Flags().StringVar(&f.source, "source", "", "manual, csv or whatsapp")
}

func (f *filterFlags) filter() collection.Filter {
	return collection.Filter{}.
		With(models.FilterSearch, f.search).
		With(models.FilterCategory, f.category).
		With(models.FilterOnWhatsApp, f.onWhatsApp).
		With(models.FilterSource, f.source)
}

func newContactsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contacts",
		Aliases: []string{"contact", "c"},
		Short:   "List, move, delete and import contacts",
	}
	cmd.AddCommand(
		newContactsListCommand(a),
		newContactsGetCommand(a),
		newContactsMoveCommand(a),
		newContactsDeleteCommand(a),
		newContactsImportCommand(a),
		newContactsSyncCommand(a),
	)
	return cmd
}

func newContactsListCommand(a *app) *cobra.Command {
	var (
		filters  filterFlags
		page     int
		pageSize int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List one page of contacts",
		Long: `List one page of contacts matching the filters.

Examples:
  wacrm contacts list                       # First page
  wacrm contacts list --page 3              # Third page
  wacrm contacts list --category none       # Contacts without a category
  wacrm contacts list --on-whatsapp=false   # Numbers not on WhatsApp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pageSize == 0 {
				pageSize = a.cfg.List.PageSize
			}
			if page < 1 || pageSize < 1 {
				return fmt.Errorf("--page and --page-size must be positive")
			}

			resp, err := a.client.ListContacts(cmd.Context(), filters.filter(), page, pageSize)
			if err != nil {
				return err
			}
			if asJSON {
				return a.out.JSON(resp)
			}
			if resp.Total == 0 {
				a.out.Print("No contacts found.")
				return nil
			}
			if len(resp.Items) == 0 {
				return fmt.Errorf("page %d is past the last page (%d)", page, resp.TotalPages)
			}

			a.printContacts(resp.Items)
			a.out.Print("")
			a.out.Print(a.out.Dim(fmt.Sprintf("Page %d/%d · %d contacts", resp.Page, resp.TotalPages, resp.Total)))
			return nil
		},
	}

	filters.register(cmd)
	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "contacts per page (default from list.page_size)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newContactsGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			contact, err := a.client.GetContact(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.out.JSON(contact)
		},
	}
}

func newContactsMoveCommand(a *app) *cobra.Command {
	var (
		filters filterFlags
		to      string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "move --to CATEGORY [ID...]",
		Short: "Move contacts into a category",
		Long: `Move the given contacts, or every contact matching the filters with --all,
into a category. CATEGORY is a category ID, a category name or "none".

Examples:
  wacrm contacts move --to Leads 12 15 19
  wacrm contacts move --to none --all --category 4
  wacrm contacts move --to 3 --all --search "@example.com"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target, err := a.resolveCategory(ctx, to)
			if err != nil {
				return err
			}

			ctrl := a.newController(nil)
			if err := a.selectContacts(ctx, ctrl, filters.filter(), args, all); err != nil {
				return err
			}

			outcome, err := ctrl.BulkApply(ctx, collection.Update(map[string]string{models.FieldCategoryID: target}))
			return a.report(outcome, err)
		},
	}

	filters.register(cmd)
	cmd.Flags().StringVar(&to, "to", "", `target category ID, name or "none"`)
	cmd.Flags().BoolVar(&all, "all", false, "move every contact matching the filters")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newContactsDeleteCommand(a *app) *cobra.Command {
	var (
		filters filterFlags
		all     bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:     "delete [ID...]",
		Aliases: []string{"rm"},
		Short:   "Delete contacts",
		Long: `Delete the given contacts, or every contact matching the filters with --all.
Asks for confirmation unless --yes is given.

Examples:
  wacrm contacts delete 12 15
  wacrm contacts delete --all --source csv --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var confirmer collection.Confirmer
			if !yes {
				confirmer = collection.ConfirmFunc(func(ctx context.Context, _ collection.Action, count int) (bool, error) {
					return a.confirm(fmt.Sprintf("Delete %d contacts? This cannot be undone.", count))
				})
			}

			ctrl := a.newController(confirmer)
			if err := a.selectContacts(ctx, ctrl, filters.filter(), args, all); err != nil {
				return err
			}

			outcome, err := ctrl.BulkApply(ctx, collection.Delete())
			if errors.Is(err, collection.ErrNotConfirmed) {
				a.out.Print("Aborted.")
				return nil
			}
			return a.report(outcome, err)
		},
	}

	filters.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "delete every contact matching the filters")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newContactsImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import contacts from a CSV file",
		Long: `Import contacts from a CSV file with a header row. The phone column is
required; name, email and category are optional. Use - to read stdin.

Existing contacts with the same phone number are updated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			resp, err := a.client.ImportCSV(cmd.Context(), r)
			if err != nil {
				return err
			}
			a.printImport(resp.Imported, resp.Updated, resp.Skipped, resp.Errors)
			return nil
		},
	}
}

func newContactsSyncCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-whatsapp",
		Short: "Import the address book of the linked WhatsApp account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.SyncWhatsApp(cmd.Context())
			if err != nil {
				return err
			}
			a.printImport(resp.Imported, resp.Updated, resp.Skipped, resp.Errors)
			return nil
		},
	}
}

func (a *app) newController(confirmer collection.Confirmer) *collection.Controller[models.Contact] {
	return collection.New[models.Contact](remote.NewContactSource(a.client), collection.Options{
		PageSize:       a.cfg.List.PageSize,
		RequiredFields: []string{models.FieldCategoryID},
		Confirmer:      confirmer,
		Logger:         a.log.Named("contacts"),
	})
}

// selectContacts selects either the explicit ids or, with all set, every
// contact matching filter.
func (a *app) selectContacts(ctx context.Context, ctrl *collection.Controller[models.Contact], filter collection.Filter, ids []string, all bool) error {
	switch {
	case all && len(ids) > 0:
		return fmt.Errorf("give contact IDs or --all, not both")
	case !all && len(ids) == 0:
		return fmt.Errorf("give contact IDs or --all")
	case !all && len(filter) > 0:
		return fmt.Errorf("filters only apply together with --all")
	}

	if !all {
		for _, raw := range ids {
			id, err := parseID(raw)
			if err != nil {
				return err
			}
			ctrl.Select(strconv.FormatInt(id, 10))
		}
		return nil
	}

	if err := loadFiltered(ctx, ctrl, filter); err != nil {
		return err
	}
	for {
		// Pages can shift under concurrent edits, so a page may repeat
		// records that are already selected. Select never drops them.
		for _, c := range ctrl.View().Items {
			ctrl.Select(c.RecordID())
		}
		err := ctrl.NextPage(ctx)
		if errors.Is(err, collection.ErrPageOutOfRange) {
			break
		}
		if err != nil {
			return err
		}
	}

	if n := len(ctrl.Selection()); n == 0 {
		return fmt.Errorf("no contacts match the filters")
	}
	return nil
}

func loadFiltered(ctx context.Context, ctrl *collection.Controller[models.Contact], filter collection.Filter) error {
	if len(filter) == 0 {
		return ctrl.Load(ctx)
	}
	for key, value := range filter {
		if err := ctrl.SetFilter(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// resolveCategory turns an ID, a name or "none" into a category_id value.
func (a *app) resolveCategory(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("a target category is required")
	}
	if strings.EqualFold(ref, models.CategoryNone) {
		return models.CategoryNone, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		return ref, nil
	}

	categories, err := a.client.Categories(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range categories {
		if strings.EqualFold(c.Name, ref) {
			return strconv.FormatInt(c.ID, 10), nil
		}
	}
	return "", fmt.Errorf("category %q not found", ref)
}

func (a *app) report(outcome collection.Outcome, err error) error {
	if err != nil {
		return err
	}
	if outcome.Affected == 0 && outcome.FailedCount() > 0 {
		return fmt.Errorf("no contacts changed: %s", outcome)
	}
	if outcome.FailedCount() > 0 {
		a.out.Warning("%s", outcome)
		if len(outcome.Failed) > 0 {
			a.out.Warning("failed contact IDs: %s", strings.Join(outcome.Failed, ", "))
		}
		return nil
	}
	a.out.Success("%s", outcome)
	return nil
}

func (a *app) printContacts(contacts []models.Contact) {
	rows := make([][]string, 0, len(contacts))
	for _, c := range contacts {
		category := c.CategoryName
		if c.CategoryID == nil {
			category = a.out.Dim("-")
		}
		wa := "?"
		if c.OnWhatsApp != nil {
			wa = strconv.FormatBool(*c.OnWhatsApp)
		}
		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10),
			a.out.Bold(c.Name),
			"+" + c.Phone,
			category,
			wa,
			c.Source,
		})
	}
	a.out.Table([]string{"ID", "NAME", "PHONE", "CATEGORY", "WHATSAPP", "SOURCE"}, rows)
}

func (a *app) printImport(imported, updated, skipped int, problems []string) {
	a.out.Success("%d imported, %d updated, %d skipped", imported, updated, skipped)
	for _, p := range problems {
		a.out.Warning("%s", p)
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID %q", raw)
	}
	return id, nil
}
