package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/broadcaster/internal/list"
)

var (
	listsExportOutput string
	listsImportFile   string
	listsImportMode   string
)

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Broadcast list commands",
}

var listsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all broadcast lists",
	RunE:  runListsList,
}

var listsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show list members",
	Args:  cobra.ExactArgs(1),
	RunE:  runListsShow,
}

var listsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a list",
	Args:  cobra.ExactArgs(1),
	RunE:  runListsDelete,
}

var listsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all lists as YAML",
	RunE:  runListsExport,
}

var listsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import lists from a YAML export",
	RunE:  runListsImport,
}

func init() {
	listsExportCmd.Flags().StringVarP(&listsExportOutput, "output", "o", "", "Output file (default: stdout)")

	listsImportCmd.Flags().StringVarP(&listsImportFile, "file", "f", "", "YAML file (required)")
	listsImportCmd.Flags().StringVar(&listsImportMode, "mode", "append", "append (new ids) or replace (whole collection)")
	listsImportCmd.MarkFlagRequired("file")

	listsCmd.AddCommand(listsListCmd, listsShowCmd, listsDeleteCmd, listsExportCmd, listsImportCmd)
	rootCmd.AddCommand(listsCmd)
}

func openLists(ctx context.Context) (*list.Collection, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	store, err := list.NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create list store: %w", err)
	}

	cleanup := func() {
		db.Close()
	}
	return list.Open(ctx, store, cliLogger()), cleanup, nil
}

func runListsList(cmd *cobra.Command, args []string) error {
	lists, cleanup, err := openLists(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	all := lists.All()
	if len(all) == 0 {
		fmt.Println("No lists found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCONTACTS")
	for _, l := range all {
		fmt.Fprintf(w, "%s\t%s\t%d\n", l.ID, l.Name, len(l.Contacts))
	}
	w.Flush()

	fmt.Printf("\nTotal: %d lists\n", len(all))
	return nil
}

func runListsShow(cmd *cobra.Command, args []string) error {
	lists, cleanup, err := openLists(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	l, ok := lists.Get(args[0])
	if !ok {
		return fmt.Errorf("list not found: %s", args[0])
	}

	fmt.Printf("ID:       %s\n", l.ID)
	fmt.Printf("Name:     %s\n", l.Name)
	fmt.Printf("Contacts: %d\n\n", len(l.Contacts))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHONE\tNAME")
	for _, r := range l.Contacts {
		fmt.Fprintf(w, "%s\t%s\n", r.PhoneNumber, r.Name)
	}
	w.Flush()
	return nil
}

func runListsDelete(cmd *cobra.Command, args []string) error {
	lists, cleanup, err := openLists(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	if err := lists.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete list: %w", err)
	}

	fmt.Printf("List %s deleted\n", args[0])
	return nil
}

func runListsExport(cmd *cobra.Command, args []string) error {
	lists, cleanup, err := openLists(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := yaml.Marshal(lists.All())
	if err != nil {
		return fmt.Errorf("failed to encode lists: %w", err)
	}

	if listsExportOutput == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(listsExportOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Printf("Exported %d lists to %s\n", lists.Len(), listsExportOutput)
	return nil
}

func runListsImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(listsImportFile)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	imported, err := parseListsYAML(data)
	if err != nil {
		return err
	}

	lists, cleanup, err := openLists(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := importLists(cmd.Context(), lists, imported, listsImportMode)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d lists (%s)\n", n, listsImportMode)
	return nil
}

// parseListsYAML decodes an export and rejects lists without a name
func parseListsYAML(data []byte) ([]list.List, error) {
	var lists []list.List
	if err := yaml.Unmarshal(data, &lists); err != nil {
		return nil, fmt.Errorf("failed to parse lists: %w", err)
	}
	for i, l := range lists {
		if l.Name == "" {
			return nil, fmt.Errorf("list %d has no name", i+1)
		}
	}
	return lists, nil
}

// importLists adds imported to the collection. In append mode every list gets
// a fresh id; in replace mode the collection becomes imported as-is.
func importLists(ctx context.Context, c *list.Collection, imported []list.List, mode string) (int, error) {
	for _, l := range imported {
		if err := l.Validate(); err != nil {
			return 0, fmt.Errorf("list %q: %w", l.Name, err)
		}
	}

	switch mode {
	case "replace":
		seen := make(map[string]bool, len(imported))
		for _, l := range imported {
			if l.ID == "" {
				return 0, fmt.Errorf("list %q has no id, replace mode keeps ids", l.Name)
			}
			if seen[l.ID] {
				return 0, fmt.Errorf("%w: %q", list.ErrDuplicateID, l.ID)
			}
			seen[l.ID] = true
		}
		if err := c.Replace(ctx, imported); err != nil {
			return 0, fmt.Errorf("failed to replace lists: %w", err)
		}
		return len(imported), nil
	case "append":
		for i, l := range imported {
			if _, err := c.Create(ctx, l.Name, l.Contacts); err != nil {
				return i, fmt.Errorf("failed to import list %q: %w", l.Name, err)
			}
		}
		return len(imported), nil
	default:
		return 0, fmt.Errorf("invalid import mode: %s (must be append or replace)", mode)
	}
}
