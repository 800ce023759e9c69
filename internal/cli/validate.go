package cli

import (
	"fmt"
	"strings"

	"github.com/medic/medic-conf/internal/core"
	"github.com/spf13/cobra"
)

var (
	validateProject string
	validateStrict  bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile a rule project and report problems",
	Long: `Compile the project's tasks.yaml and targets.yaml (or the legacy rules.yaml)
and report any error.

When .medicrc lists the project's forms, actions opening a form missing from
that list are reported as warnings. With --strict they fail validation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(validateProject)
		if err != nil {
			return err
		}
		program, err := p.compile(nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d task definition(s), %d target definition(s)\n",
			p.dir, len(program.Tasks), len(program.Targets))

		if p.config.Project == nil || len(p.config.Project.Forms) == 0 {
			return nil
		}
		undeclared := core.UndeclaredForms(program, p.config.Project.Forms)
		if len(undeclared) == 0 {
			return nil
		}
		fmt.Fprintf(out, "warning: actions open forms not declared in .medicrc: %s\n", strings.Join(undeclared, ", "))
		if validateStrict {
			return fmt.Errorf("%d undeclared form(s)", len(undeclared))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateProject, "project", "", "Rule project directory (default from .medicconf)")
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "Fail when actions open undeclared forms")
	registerFlagCompletion(validateCmd, "project", completeProjectDirs)
	rootCmd.AddCommand(validateCmd)
}
