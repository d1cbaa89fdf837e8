package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wacrm/internal/template"
)

func newDraftsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drafts",
		Aliases: []string{"draft"},
		Short:   "Manage message drafts",
		Long: `Drafts are message texts sent by campaigns. They may use the placeholders
` + placeholderList() + `, which are filled per contact.`,
	}

	var asJSON bool
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List drafts, most recently edited first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := a.client.Drafts(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return a.out.JSON(drafts)
			}
			if len(drafts) == 0 {
				a.out.Print(`No drafts yet. Create one with: wacrm drafts create TITLE --content "Hi {{first_name}}"`)
				return nil
			}

			rows := make([][]string, 0, len(drafts))
			for _, d := range drafts {
				rows = append(rows, []string{
					strconv.FormatInt(d.ID, 10),
					a.out.Bold(d.Title),
					excerpt(d.Content, 50),
					d.UpdatedAt.Format("2006-01-02 15:04"),
				})
			}
			a.out.Table([]string{"ID", "TITLE", "CONTENT", "UPDATED"}, rows)
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	var content, file string
	create := &cobra.Command{
		Use:   "create TITLE",
		Short: "Create a draft",
		Long: `Create a draft from --content or from a file with --file (- reads stdin).

Examples:
  wacrm drafts create Welcome --content "Hi {{first_name}}, welcome!"
  wacrm drafts create Offer --file offer.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readContent(cmd, content, file)
			if err != nil {
				return err
			}
			if text == "" {
				return fmt.Errorf("give the message with --content or --file")
			}
			draft, err := a.client.CreateDraft(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			a.out.Success("Created draft %q (ID %d)", draft.Title, draft.ID)
			return nil
		},
	}
	create.Flags().StringVar(&content, "content", "", "message text")
	create.Flags().StringVarP(&file, "file", "f", "", "read the message text from a file")
	create.MarkFlagsMutuallyExclusive("content", "file")

	var title, editContent, editFile string
	edit := &cobra.Command{
		Use:   "edit ID",
		Short: "Change the title or text of a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			text, err := readContent(cmd, editContent, editFile)
			if err != nil {
				return err
			}
			if title == "" && text == "" {
				return fmt.Errorf("nothing to change: give --title, --content or --file")
			}

			current, err := a.client.Draft(cmd.Context(), id)
			if err != nil {
				return err
			}
			if title == "" {
				title = current.Draft.Title
			}
			if text == "" {
				text = current.Draft.Content
			}
			draft, err := a.client.UpdateDraft(cmd.Context(), id, title, text)
			if err != nil {
				return err
			}
			a.out.Success("Updated draft %d", draft.ID)
			return nil
		},
	}
	edit.Flags().StringVar(&title, "title", "", "new title")
	edit.Flags().StringVar(&editContent, "content", "", "new message text")
	edit.Flags().StringVarP(&editFile, "file", "f", "", "read the new message text from a file")
	edit.MarkFlagsMutuallyExclusive("content", "file")

	var yes bool
	remove := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a draft; campaigns already sent keep their text",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := a.confirm(fmt.Sprintf("Delete draft %d?", id))
				if err != nil {
					return err
				}
				if !ok {
					a.out.Print("Aborted.")
					return nil
				}
			}
			if err := a.client.DeleteDraft(cmd.Context(), id); err != nil {
				return err
			}
			a.out.Success("Deleted draft %d", id)
			return nil
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	var contactID int64
	preview := &cobra.Command{
		Use:   "preview ID",
		Short: "Show a draft filled for one contact, or with sample values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if contactID < 0 {
				return fmt.Errorf("invalid contact ID %d", contactID)
			}
			resp, err := a.client.PreviewDraft(cmd.Context(), id, contactID)
			if err != nil {
				return err
			}
			a.out.Print("%s", resp.Preview)
			if len(resp.PlaceholdersMissing) > 0 {
				a.out.Warning("no value for: %s", strings.Join(resp.PlaceholdersMissing, ", "))
			}
			return nil
		},
	}
	preview.Flags().Int64Var(&contactID, "contact", 0, "fill with this contact's details")

	cmd.AddCommand(list, create, edit, remove, preview)
	return cmd
}

// readContent returns the inline text, or the contents of file when set.
func readContent(cmd *cobra.Command, inline, file string) (string, error) {
	if file == "" {
		return strings.TrimSpace(inline), nil
	}
	var r io.Reader = cmd.InOrStdin()
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", file, err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read message text: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func placeholderList() string {
	names := make([]string, len(template.BuiltIn))
	for i, name := range template.BuiltIn {
		names[i] = "{{" + name + "}}"
	}
	return strings.Join(names, ", ")
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
