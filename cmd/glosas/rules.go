package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/bootgestor/glosas/internal/common"
	"github.com/bootgestor/glosas/internal/model"

	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage response rules",
		Long: `Manage the configurable response rules.

Each rule pairs a SQL LIKE pattern (using % and _ wildcards) with the
standard response text to apply when a dispute's justification matches.
Rules are scoped to a dispute category; (category, pattern) is unique.`,
	}

	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesUpdateCmd())
	cmd.AddCommand(rulesDeactivateCmd())
	cmd.AddCommand(rulesSeedCmd())

	return cmd
}

func rulesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new response rule",
		RunE:  runRulesAdd,
	}

	cmd.Flags().String("category", "", "dispute category the rule applies to (required)")
	cmd.Flags().String("pattern", "", "LIKE pattern to match against justifications (required)")
	cmd.Flags().String("response", "", "response text to apply on match (required)")
	cmd.Flags().String("document", "", "supporting document reference")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("pattern")
	_ = cmd.MarkFlagRequired("response")

	return cmd
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	category, _ := cmd.Flags().GetString("category")
	pattern, _ := cmd.Flags().GetString("pattern")
	response, _ := cmd.Flags().GetString("response")
	document, _ := cmd.Flags().GetString("document")

	rule := &model.Rule{
		Category:     category,
		Pattern:      pattern,
		ResponseText: response,
		DocumentRef:  document,
		Active:       true,
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		if errors.Is(err, common.ErrDuplicateRuleKey) {
			return common.NewUserError(
				fmt.Sprintf("a rule for category %s with this pattern already exists", category), err)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	fmt.Printf("Created rule %d for category %s\n", rule.ID, rule.Category)
	return nil
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List response rules",
		RunE:  runRulesList,
	}

	cmd.Flags().Bool("all", false, "include deactivated rules")
	cmd.Flags().String("category", "", "only show rules for this category")

	return cmd
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	all, _ := cmd.Flags().GetBool("all")
	category, _ := cmd.Flags().GetString("category")

	var rules []model.Rule
	if all {
		rules, err = store.ListRules(ctx)
	} else {
		rules, err = store.ListActiveRules(ctx, category)
	}
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	if all && category != "" {
		filtered := rules[:0]
		for _, r := range rules {
			if r.Category == category {
				filtered = append(filtered, r)
			}
		}
		rules = filtered
	}

	if len(rules) == 0 {
		fmt.Println("No rules found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID\tCATEGORY\tPATTERN\tACTIVE\tDOCUMENT\n")
	for _, r := range rules {
		active := "yes"
		if !r.Active {
			active = "no"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Category, r.Pattern, active, r.DocumentRef)
	}
	return w.Flush()
}

func rulesUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <rule-id>",
		Short: "Update an existing response rule",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesUpdate,
	}

	cmd.Flags().String("pattern", "", "new LIKE pattern")
	cmd.Flags().String("response", "", "new response text")
	cmd.Flags().String("document", "", "new document reference")

	return cmd
}

func runRulesUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid rule ID %q: %w", args[0], err)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rule, err := store.GetRule(ctx, id)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("pattern"); v != "" {
		rule.Pattern = v
	}
	if v, _ := cmd.Flags().GetString("response"); v != "" {
		rule.ResponseText = v
	}
	if cmd.Flags().Changed("document") {
		rule.DocumentRef, _ = cmd.Flags().GetString("document")
	}

	if err := store.UpdateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	fmt.Printf("Updated rule %d\n", rule.ID)
	return nil
}

func rulesDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <rule-id>",
		Short: "Deactivate a response rule",
		Long: `Deactivate a rule so the matcher no longer considers it.

Rules are never deleted: processed disputes keep referencing the rule
that answered them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid rule ID %q: %w", args[0], err)
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeactivateRule(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deactivated rule %d\n", id)
			return nil
		},
	}
}

func rulesSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed the stock response rules",
		Long:  `Insert the stock response configuration. Rules already present are left alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			inserted, err := store.SeedDefaultRules(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d rules\n", inserted)
			return nil
		},
	}
}
