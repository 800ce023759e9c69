package cli

import (
	"fmt"
	"path/filepath"

	"github.com/medic/medic-conf/internal/core"
	"github.com/medic/medic-conf/pkg/models"
	"github.com/spf13/cobra"
)

var (
	initName         string
	initWindowPolicy string
	initTimezone     string
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize a rule project layout",
	Long: `Initialize a new or existing directory as a rule project: tasks.yaml,
targets.yaml, a .medicrc with project settings, form directories and an
example contact to evaluate.

Safe to run on existing projects -- files and directories that already
exist are skipped and not overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ProjectInit == nil {
			return fmt.Errorf("project initializer not initialized")
		}

		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		absPath, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		name := initName
		if name == "" {
			name = filepath.Base(absPath)
		}

		result, err := ProjectInit.Init(core.InitConfig{
			ProjectDir:   absPath,
			Name:         name,
			WindowPolicy: models.WindowPolicy(initWindowPolicy),
			Timezone:     initTimezone,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(result.Created) > 0 {
			fmt.Fprintln(out, "Created:")
			for _, p := range result.Created {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Fprintf(out, "  %s\n", rel)
			}
		}
		if len(result.Skipped) > 0 {
			fmt.Fprintln(out, "Skipped (already exist):")
			for _, p := range result.Skipped {
				rel, _ := filepath.Rel(absPath, p)
				fmt.Fprintf(out, "  %s\n", rel)
			}
		}

		fmt.Fprintf(out, "\nProject %q initialized at %s\n", name, absPath)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initName, "name", "", "Project name (defaults to directory basename)")
	initCmd.Flags().StringVar(&initWindowPolicy, "window-policy", string(models.PolicyWithinWindow), "Window policy written to .medicrc: within_window or always")
	initCmd.Flags().StringVar(&initTimezone, "timezone", "UTC", "IANA timezone written to .medicrc")
	registerFlagCompletion(initCmd, "window-policy", completeWindowPolicies)
	rootCmd.AddCommand(initCmd)
}
