// Command slmstate validates, inspects and moves SLM scene documents between
// files and the configured snapshot backend.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"slmcontrol/internal/config"
	"slmcontrol/internal/core"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

type cliOptions struct {
	configPath string
	logLevel   string
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{stderr: stderr}
	root := &cobra.Command{
		Use:           "slmstate",
		Short:         "Manage the SLM screen/view/pattern state store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to slmcontrol.yml (defaults plus SLMCONTROL_* env when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newValidateCmd(),
		newInspectCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
	)
	return root
}

func (o *cliOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (o *cliOptions) openService(ctx context.Context) (*core.Service, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	svc, err := core.Open(ctx, cfg, o.stderr)
	if err != nil {
		return nil, nil, err
	}
	return svc, cfg, nil
}
