package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	strata "github.com/goliatone/go-strata"
	"github.com/goliatone/go-strata/pkg/state"
)

func newDispatchCmd(opts *rootOptions) *cobra.Command {
	var trialLoad bool
	cmd := &cobra.Command{
		Use:   "dispatch <url>",
		Short: "Pick the catalog member type for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			m, err := s.catalog.Dispatch(cmd.Context(), args[0], trialLoad)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), describeModel(m))
		},
	}
	cmd.Flags().BoolVar(&trialLoad, "trial-load", false, "Allow rules that need a trial load")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var (
		resolve     bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "show <definition-file>",
		Short: "Apply a member definition and print resolved traits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := applyDefinitionFile(cmd, s.catalog, args[0]); err != nil {
				return err
			}
			if resolve {
				var refs []*strata.Model
				for _, m := range s.catalog.Models() {
					if m.IsReference() {
						refs = append(refs, m)
					}
				}
				if _, err := s.catalog.ResolveAll(cmd.Context(), refs, concurrency); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
				}
			}
			models := s.catalog.Models()
			out := make([]map[string]any, 0, len(models))
			for _, m := range models {
				out = append(out, describeModel(m))
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "Resolve references after applying the definition")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum references resolved at once")
	return cmd
}

// applyDefinitionFile writes the definition file into the definition stratum.
// Partial failures are reported as warnings; the applied models stay.
func applyDefinitionFile(cmd *cobra.Command, c *strata.Catalog, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read definition: %w", err)
	}
	def, err := strata.ParseDefinition(raw)
	if err != nil {
		return err
	}
	root, err := c.ApplyDefinition(cmd.Context(), strata.StratumDefinition, def)
	if root == nil {
		if err == nil {
			err = errors.New("definition produced no model")
		}
		return err
	}
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err)
	}
	return nil
}

func newSchemaCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <type>",
		Short: "Print the OpenAPI schema of a member type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()

			doc, err := s.catalog.Schema(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc.Document)
		},
	}
}

type snapshotOptions struct {
	dbPath  string
	catalog string
	stratum string
	owner   string
}

func (o snapshotOptions) ref() state.Ref {
	return state.Ref{Catalog: o.catalog, Stratum: o.stratum, Owner: o.owner}
}

func (o snapshotOptions) open() (*state.SQLiteStore[strata.Snapshot], error) {
	if o.dbPath == "" {
		return nil, fmt.Errorf("snapshot: --db or %s is required", envDB)
	}
	return state.OpenSQLiteStore[strata.Snapshot](o.dbPath)
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	snapOpts := &snapshotOptions{}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save and restore catalog snapshots",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&snapOpts.dbPath, "db", os.Getenv(envDB), "SQLite database path")
	flags.StringVar(&snapOpts.catalog, "catalog", "default", "Catalog name")
	flags.StringVar(&snapOpts.stratum, "stratum", "", "Only persist this stratum")
	flags.StringVar(&snapOpts.owner, "owner", "", "Owner of the snapshot")

	var etag string
	saveCmd := &cobra.Command{
		Use:   "save <definition-file>",
		Short: "Apply a definition and store the resulting catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			store, err := snapOpts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := applyDefinitionFile(cmd, s.catalog, args[0]); err != nil {
				return err
			}
			manager := state.Manager{Store: store}
			meta, err := manager.Save(cmd.Context(), s.catalog, snapOpts.ref(), state.Meta{ETag: etag})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), meta)
		},
	}
	saveCmd.Flags().StringVar(&etag, "if-match", "", "Only save when the stored ETag matches")

	restoreCmd := &cobra.Command{
		Use:   "restore",
		Short: "Load a stored snapshot and print the restored catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.Close()
			store, err := snapOpts.open()
			if err != nil {
				return err
			}
			defer store.Close()

			manager := state.Manager{Store: store}
			ref := snapOpts.ref()
			if _, ok, err := manager.Restore(cmd.Context(), s.catalog, ref); err != nil {
				return err
			} else if !ok {
				key, _ := ref.Identifier()
				return fmt.Errorf("snapshot: nothing stored under %s", key)
			}
			return writeJSON(cmd.OutOrStdout(), s.catalog.Snapshot())
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the snapshots stored for the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapOpts.open()
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := state.Manager{Store: store}.List(cmd.Context(), snapOpts.catalog)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []state.Entry{}
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		},
	}

	var deleteETag string
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a stored snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapOpts.open()
			if err != nil {
				return err
			}
			defer store.Close()
			ref := snapOpts.ref()
			removed, err := state.Manager{Store: store}.Delete(cmd.Context(), ref, state.Meta{ETag: deleteETag})
			if err != nil {
				return err
			}
			if !removed {
				key, _ := ref.Identifier()
				return fmt.Errorf("snapshot: nothing stored under %s", key)
			}
			return nil
		},
	}
	deleteCmd.Flags().StringVar(&deleteETag, "if-match", "", "Only delete when the stored ETag matches")

	cmd.AddCommand(saveCmd)
	cmd.AddCommand(restoreCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(deleteCmd)
	return cmd
}
