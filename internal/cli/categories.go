package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCategoriesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category", "cat"},
		Short:   "Manage contact categories",
	}

	var asJSON bool
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List categories with their contact counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := a.client.Categories(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return a.out.JSON(categories)
			}
			if len(categories) == 0 {
				a.out.Print("No categories yet. Create one with: wacrm categories create NAME")
				return nil
			}

			rows := make([][]string, 0, len(categories))
			for _, c := range categories {
				rows = append(rows, []string{
					strconv.FormatInt(c.ID, 10),
					a.out.Bold(c.Name),
					strconv.Itoa(c.ContactCount),
				})
			}
			a.out.Table([]string{"ID", "NAME", "CONTACTS"}, rows)
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := a.client.CreateCategory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.out.Success("Created category %q (ID %d)", category.Name, category.ID)
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			category, err := a.client.RenameCategory(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			a.out.Success("Renamed category %d to %q", category.ID, category.Name)
			return nil
		},
	}

	var yes bool
	remove := &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a category; its contacts become uncategorized",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := a.confirm(fmt.Sprintf("Delete category %d?", id))
				if err != nil {
					return err
				}
				if !ok {
					a.out.Print("Aborted.")
					return nil
				}
			}
			if err := a.client.DeleteCategory(cmd.Context(), id); err != nil {
				return err
			}
			a.out.Success("Deleted category %d", id)
			return nil
		},
	}
	remove.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(list, create, rename, remove)
	return cmd
}
