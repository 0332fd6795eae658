package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"slmcontrol/internal/infra/persistence/memory"
	"slmcontrol/internal/validation"
	"slmcontrol/pkg/domain"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a JSON or YAML scene document against the store schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, _, err := readDocument(args[0])
			if err != nil {
				return err
			}
			if err := validation.CheckStore(doc); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

func newInspectCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the stored screens, their views and patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			printTree(cmd.OutOrStdout(), svc.Store())
			return nil
		},
	}
}

func newImportCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the stored state with a scene document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, data, err := readDocument(args[0])
			if err != nil {
				return err
			}
			svc, cfg, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			if svc.Backend() == nil {
				return fmt.Errorf("import needs a persistent storage driver, got %q", cfg.Storage.Driver)
			}
			if cfg.Store.StrictValidation {
				if err := validation.CheckStore(doc); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
			}
			var snapshot domain.Snapshot
			if err := json.Unmarshal(data, &snapshot); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			if err := svc.Import(cmd.Context(), snapshot); err != nil {
				return err
			}
			if !cfg.Storage.Autosave {
				if err := svc.Save(cmd.Context()); err != nil {
					return err
				}
			}
			screens, views, patterns := svc.Store().Counts()
			fmt.Fprintf(cmd.OutOrStdout(), "imported screens=%d views=%d patterns=%d\n", screens, views, patterns)
			return nil
		},
	}
}

func newExportCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE",
		Short: "Write the stored state as a JSON scene document (- for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, err := opts.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()
			data, err := json.MarshalIndent(svc.Export(), "", "  ")
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			data = append(data, '\n')
			if args[0] == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			return nil
		},
	}
}

// readDocument returns the untyped document for schema checks and its JSON
// encoding for typed decoding. YAML is chosen by file extension.
func readDocument(path string) (any, []byte, error) {
	// #nosec G304 -- the path is an operator-supplied CLI argument.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, nil, fmt.Errorf("convert %s to JSON: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return doc, data, nil
}

func printTree(w io.Writer, store *memory.Store) {
	screens, views, patterns := store.Counts()
	fmt.Fprintf(w, "screens=%d views=%d patterns=%d\n", screens, views, patterns)
	for _, screen := range store.ListScreens() {
		fmt.Fprintf(w, "screen %q %s %dx%d%+d%+d\n", screen.Name, screen.ID, screen.Size.W, screen.Size.H, screen.Offset.X, screen.Offset.Y)
		for _, viewID := range sortedIDs(screen.Views) {
			ref := screen.Views[viewID]
			view, err := store.GetViewByID(viewID)
			if err != nil {
				fmt.Fprintf(w, "  view %s (dangling)\n", viewID)
				continue
			}
			fmt.Fprintf(w, "  view %q %s at (%g, %g) size (%g, %g)\n", view.Name, view.ID, ref.Position.X, ref.Position.Y, ref.Size.X, ref.Size.Y)
			for _, patternID := range sortedIDs(view.Patterns) {
				pattern, err := store.GetPatternByID(patternID)
				if err != nil {
					fmt.Fprintf(w, "    pattern %s (dangling)\n", patternID)
					continue
				}
				fmt.Fprintf(w, "    pattern %q [%s] %s x %s\n", pattern.Name, pattern.Type, pattern.ID, formatCoefficient(view.Patterns[patternID].Coefficient))
			}
		}
	}
	if dangling := store.DanglingReferences(); len(dangling) > 0 {
		fmt.Fprintf(w, "dangling references: %d\n", len(dangling))
	}
}

func formatCoefficient(c domain.Coefficient) string {
	z := complex128(c)
	if imag(z) == 0 {
		return fmt.Sprintf("%g", real(z))
	}
	return fmt.Sprintf("%g", z)
}

func sortedIDs[V any](m map[domain.EntityID]V) []domain.EntityID {
	ids := make([]domain.EntityID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b domain.EntityID) int { return strings.Compare(a.String(), b.String()) })
	return ids
}
