package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// defaultShell is used when no shell is named.
const defaultShell = "bash"

// completionShell generates one shell's completion script. Scripts call
// back into medic-conf for dynamic values (project directories, contact
// files, output formats), so they stay valid as the project changes.
type completionShell struct {
	generate func(root *cobra.Command, w io.Writer) error
	// installPath is relative to the home directory. Empty means the
	// shell has no per-user completion directory.
	installPath string
	load        string
}

var completionShells = map[string]completionShell{
	"bash": {
		generate:    func(root *cobra.Command, w io.Writer) error { return root.GenBashCompletionV2(w, true) },
		installPath: ".local/share/bash-completion/completions/medic-conf",
		load:        `eval "$(medic-conf --shell-completion=bash)"`,
	},
	"zsh": {
		generate:    func(root *cobra.Command, w io.Writer) error { return root.GenZshCompletion(w) },
		installPath: ".local/share/zsh/site-functions/_medic-conf",
		load:        "source <(medic-conf --shell-completion=zsh)",
	},
	"fish": {
		generate:    func(root *cobra.Command, w io.Writer) error { return root.GenFishCompletion(w, true) },
		installPath: ".config/fish/completions/medic-conf.fish",
		load:        "medic-conf --shell-completion=fish | source",
	},
	"powershell": {
		generate: func(root *cobra.Command, w io.Writer) error { return root.GenPowerShellCompletionWithDesc(w) },
		load:     "medic-conf --shell-completion=powershell | Out-String | Invoke-Expression",
	},
}

func shellNames() []string {
	names := make([]string, 0, len(completionShells))
	for name := range completionShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupShell(name string) (completionShell, error) {
	if name == "" {
		name = defaultShell
	}
	sh, ok := completionShells[name]
	if !ok {
		return completionShell{}, fmt.Errorf("shell completion not yet supported for %q (supported: %s)",
			name, strings.Join(shellNames(), ", "))
	}
	return sh, nil
}

// writeShellCompletion prints the named shell's script to the command's
// output and the line that loads it to its error stream.
func writeShellCompletion(cmd *cobra.Command, shell string) error {
	sh, err := lookupShell(shell)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "# load in the current session with: %s\n", sh.load)
	return sh.generate(cmd.Root(), cmd.OutOrStdout())
}

// installShellCompletion writes the named shell's script below home and
// returns its path.
func installShellCompletion(root *cobra.Command, shell, home string) (string, error) {
	sh, err := lookupShell(shell)
	if err != nil {
		return "", err
	}
	if sh.installPath == "" {
		return "", fmt.Errorf("no completion directory for %s; add `%s` to your profile", shell, sh.load)
	}

	var buf bytes.Buffer
	if err := sh.generate(root, &buf); err != nil {
		return "", fmt.Errorf("generating %s completion: %w", shell, err)
	}
	target := filepath.Join(home, filepath.FromSlash(sh.installPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("creating completion directory: %w", err)
	}
	if err := os.WriteFile(target, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", target, err)
	}
	return target, nil
}

// supportedActions lists the commands a user can run.
func supportedActions(root *cobra.Command) []string {
	var names []string
	for _, c := range root.Commands() {
		if c.IsAvailableCommand() && c.Name() != "help" {
			names = append(names, c.Name())
		}
	}
	return names
}

var (
	shellCompletion   string
	listActions       bool
	completionInstall bool
)

// runRoot serves the root command's own flags. Without them it shows help.
func runRoot(cmd *cobra.Command, args []string) error {
	switch {
	case cmd.Flags().Changed("shell-completion"):
		return writeShellCompletion(cmd, shellCompletion)
	case listActions:
		fmt.Fprintf(cmd.OutOrStdout(), "Supported actions:\n  %s\n", strings.Join(supportedActions(cmd.Root()), "\n  "))
		return nil
	default:
		return cmd.Help()
	}
}

var completionCmd = &cobra.Command{
	Use:   "completion [shell]",
	Short: "Print or install the shell completion script",
	Long: `Print the completion script for bash (default), zsh, fish or powershell.
The same script is printed by medic-conf --shell-completion=<shell>.

Completions cover every command and flag, plus rule project directories for
--project, output formats for --format, and the project's contact documents
as arguments to evaluate and browse.

With --install the script is written to the shell's per-user completion
directory instead.`,
	ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return shellNames(), cobra.ShellCompDirectiveNoFileComp
	},
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shell := defaultShell
		if len(args) == 1 {
			shell = args[0]
		}
		if !completionInstall {
			return writeShellCompletion(cmd, shell)
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("detecting home directory: %w", err)
		}
		target, err := installShellCompletion(cmd.Root(), shell, home)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s completions to %s\n", shell, target)
		return nil
	},
}

func init() {
	rootCmd.RunE = runRoot
	rootCmd.Flags().StringVar(&shellCompletion, "shell-completion", "", "Print the completion script for a shell (default bash)")
	rootCmd.Flags().Lookup("shell-completion").NoOptDefVal = defaultShell
	rootCmd.Flags().BoolVar(&listActions, "supported-actions", false, "List the supported actions")
	registerFlagCompletion(rootCmd, "shell-completion", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return shellNames(), cobra.ShellCompDirectiveNoFileComp
	})

	completionCmd.Flags().BoolVar(&completionInstall, "install", false, "Install the script into the shell's completion directory")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}
