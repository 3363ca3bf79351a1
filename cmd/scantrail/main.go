// Command scantrail is a thin CLI over the scan event store: create and
// inspect scan instances, summarize and search results, and manage the
// registered event taxonomy.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/osintlabs/scantrail/pkg/scantrail"
	"github.com/osintlabs/scantrail/pkg/scantrail/store"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:           "scantrail",
		Short:         "Provenance-tracking event store for reconnaissance scans",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "scantrail.db", "path to the scan database")

	cmd.AddCommand(newNewCommand(&dbPath))
	cmd.AddCommand(newListCommand(&dbPath))
	cmd.AddCommand(newSummaryCommand(&dbPath))
	cmd.AddCommand(newSearchCommand(&dbPath))
	cmd.AddCommand(newDeleteCommand(&dbPath))
	cmd.AddCommand(newTypesCommand(&dbPath))

	return cmd
}

func openStore(path string) (*store.Store, error) {
	s, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", path, err)
	}
	return s, nil
}

func newNewCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "new NAME TARGET",
		Short: "Create a scan instance and store its root event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			id := uuid.New().String()
			if err := s.CreateInstance(id, args[0], args[1]); err != nil {
				return err
			}
			if err := s.StoreEvent(id, scantrail.NewRoot(args[1]), 0); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newListCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scan instances with their result counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			listings, err := s.ListInstances()
			if err != nil {
				return err
			}
			for _, l := range listings {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %-30s %-14s %6d\n",
					l.ID, l.Name, l.SeedTarget, l.Status, l.Results)
			}
			return nil
		},
	}
}

func newSummaryCommand(dbPath *string) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "summary ID",
		Short: "Summarize a scan's results by type, module or entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.ResultSummary(args[0], store.SummaryGroup(by))
			if err != nil {
				return err
			}
			for _, r := range rows {
				last := time.UnixMilli(r.LastSeen).Format(time.RFC3339)
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s %6d total %6d unique  last %s\n",
					r.Group, r.Total, r.Unique, last)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", string(store.GroupByType), "grouping (type|module|entity)")
	return cmd
}

func newSearchCommand(dbPath *string) *cobra.Command {
	var criteria store.Criteria
	var filterFP bool

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search stored events (at least two criteria required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.Search(criteria, filterFP)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %-20s %s\n", r.Type, r.Module, r.Data)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&criteria.ScanID, "scan", "", "scan instance ID")
	cmd.Flags().StringVar(&criteria.Type, "type", "", "event type")
	cmd.Flags().StringVar(&criteria.Value, "value", "", "payload pattern (SQL LIKE syntax)")
	cmd.Flags().StringVar(&criteria.Regex, "regex", "", "payload regular expression")
	cmd.Flags().BoolVar(&filterFP, "no-fp", false, "exclude confirmed false positives")
	return cmd
}

func newDeleteCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a scan instance and all of its events, config and logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			return s.DeleteInstance(args[0])
		},
	}
}

func newTypesCommand(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered event taxonomy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			types, err := s.EventTypes()
			if err != nil {
				return err
			}
			for _, t := range types {
				raw := ""
				if t.Raw {
					raw = " (raw)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %-10s %s%s\n",
					t.Name, t.Category, t.Description, raw)
			}
			return nil
		},
	}
}
