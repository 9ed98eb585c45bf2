package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/broadcaster/internal/contact"
	"github.com/foxzi/broadcaster/internal/template"
)

var (
	templateName         string
	templateDescription  string
	templateText         string
	templateTextFile     string
	templateVars         []string
	templatePreviewName  string
	templatePreviewPhone string
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Template management commands",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all templates",
	RunE:  runTemplateList,
}

var templateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new template",
	RunE:  runTemplateCreate,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show template details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templatePreviewCmd = &cobra.Command{
	Use:   "preview <id|name>",
	Short: "Render a template for a sample recipient",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatePreview,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

func init() {
	templateCreateCmd.Flags().StringVar(&templateName, "name", "", "Template name (required)")
	templateCreateCmd.Flags().StringVar(&templateDescription, "description", "", "Template description")
	templateCreateCmd.Flags().StringVar(&templateText, "text", "", "Message text")
	templateCreateCmd.Flags().StringVar(&templateTextFile, "text-file", "", "File containing the message text")
	templateCreateCmd.Flags().StringArrayVar(&templateVars, "var", nil, "Custom variable as key=value (repeatable)")
	templateCreateCmd.MarkFlagRequired("name")

	templatePreviewCmd.Flags().StringVar(&templatePreviewName, "name", "Sample", "Recipient name")
	templatePreviewCmd.Flags().StringVar(&templatePreviewPhone, "phone", "000000", "Recipient phone number")
	templatePreviewCmd.Flags().StringArrayVar(&templateVars, "var", nil, "Variable override as key=value (repeatable)")

	templateCmd.AddCommand(
		templateListCmd,
		templateCreateCmd,
		templateShowCmd,
		templatePreviewCmd,
		templateDeleteCmd,
	)
	rootCmd.AddCommand(templateCmd)
}

func getTemplateStorage() (*template.Storage, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	templateStorage, err := template.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create template storage: %w", err)
	}

	cleanup := func() {
		db.Close()
	}

	return templateStorage, cleanup, nil
}

// parseVars turns key=value flags into ordered variables. The braces of
// {key} are optional.
func parseVars(raw []string) ([]template.Variable, error) {
	vars := make([]template.Variable, 0, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(key), "{"), "}")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q (want key=value)", kv)
		}
		vars = append(vars, template.Variable{Key: key, Value: value})
	}
	return vars, nil
}

// overrideVars replaces the values of matching keys and appends new ones
func overrideVars(base, overrides []template.Variable) []template.Variable {
	out := append([]template.Variable(nil), base...)
	for _, o := range overrides {
		found := false
		for i := range out {
			if out[i].Key == o.Key {
				out[i].Value = o.Value
				found = true
			}
		}
		if !found {
			out = append(out, o)
		}
	}
	return out
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	templates, err := storage.List(cmd.Context(), template.ListFilter{})
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if len(templates) == 0 {
		fmt.Println("No templates found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTEXT\tVERSION\tUPDATED")
	for _, tmpl := range templates {
		text := strings.ReplaceAll(tmpl.Text, "\n", " ")
		if len(text) > 40 {
			text = text[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			tmpl.ID[:8],
			tmpl.Name,
			text,
			tmpl.Version,
			tmpl.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d templates\n", len(templates))
	return nil
}

func runTemplateCreate(cmd *cobra.Command, args []string) error {
	text := templateText
	if templateTextFile != "" {
		data, err := os.ReadFile(templateTextFile)
		if err != nil {
			return fmt.Errorf("failed to read text file: %w", err)
		}
		text = string(data)
	}
	if text == "" {
		return fmt.Errorf("one of --text or --text-file is required")
	}

	vars, err := parseVars(templateVars)
	if err != nil {
		return err
	}

	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl := &template.Template{
		Name:        templateName,
		Description: templateDescription,
		Text:        text,
		Variables:   vars,
	}
	if err := storage.Create(cmd.Context(), tmpl); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	fmt.Printf("Template created successfully\n")
	fmt.Printf("  ID:   %s\n", tmpl.ID)
	fmt.Printf("  Name: %s\n", tmpl.Name)
	if unknown := template.Unknown(tmpl.Text, tmpl.Variables); len(unknown) > 0 {
		fmt.Printf("  Warning: no value for %s\n", strings.Join(unknown, ", "))
	}
	return nil
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl, err := storage.Resolve(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	fmt.Printf("ID:          %s\n", tmpl.ID)
	fmt.Printf("Name:        %s\n", tmpl.Name)
	fmt.Printf("Description: %s\n", tmpl.Description)
	fmt.Printf("Version:     %d\n", tmpl.Version)
	fmt.Printf("Created:     %s\n", tmpl.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:     %s\n", tmpl.UpdatedAt.Format("2006-01-02 15:04:05"))

	fmt.Printf("\nText:\n")
	for _, line := range strings.Split(tmpl.Text, "\n") {
		fmt.Printf("  %s\n", line)
	}

	if len(tmpl.Variables) > 0 {
		fmt.Printf("\nVariables:\n")
		for _, v := range tmpl.Variables {
			fmt.Printf("  - {%s} = %s\n", v.Key, v.Value)
		}
	}

	fmt.Printf("\nPlaceholders:\n")
	for _, p := range template.Analyze(tmpl.Text, tmpl.Variables) {
		state := "ok"
		if !p.Known {
			state = "no value"
		}
		fmt.Printf("  - {%s} %s\n", p.Name, state)
	}

	return nil
}

func runTemplatePreview(cmd *cobra.Command, args []string) error {
	overrides, err := parseVars(templateVars)
	if err != nil {
		return err
	}

	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	tmpl, err := storage.Resolve(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	msg := tmpl.Message()
	msg.Variables = overrideVars(msg.Variables, overrides)

	r := contact.Recipient{Name: templatePreviewName, PhoneNumber: templatePreviewPhone}
	fmt.Println(template.RenderMessage(msg, r))
	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := getTemplateStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	tmpl, err := storage.Resolve(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}

	if err := storage.Delete(ctx, tmpl.ID); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	fmt.Printf("Template %s deleted\n", tmpl.Name)
	return nil
}
