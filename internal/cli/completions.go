package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/medic/medic-conf/pkg/models"
	"github.com/spf13/cobra"
)

// completeFormats completes the evaluate --format flag.
func completeFormats(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		formatJSON + "\tone JSON document",
		formatJSONL + "\tone emission per line",
		formatTable + "\ttask table",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeWindowPolicies completes the init --window-policy flag.
func completeWindowPolicies(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		string(models.PolicyWithinWindow) + "\tdrop events outside their window",
		string(models.PolicyAlways) + "\temit every event, resolving out-of-window ones",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeProjectDirs restricts --project completion to directories.
func completeProjectDirs(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return nil, cobra.ShellCompDirectiveFilterDirs
}

// completeContactFiles lists the contact documents of the default project
// matching the configured glob, relative to the working directory.
func completeContactFiles(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	p, err := loadProject("")
	if err != nil {
		return nil, cobra.ShellCompDirectiveDefault
	}
	files, err := p.contacts.Match(p.config.EffectiveContactsGlob())
	if err != nil {
		return nil, cobra.ShellCompDirectiveDefault
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, cobra.ShellCompDirectiveDefault
	}

	var out []string
	for _, f := range files {
		rel, err := filepath.Rel(wd, f)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = f
		}
		if toComplete == "" || strings.HasPrefix(rel, toComplete) {
			out = append(out, rel)
		}
	}
	if len(out) == 0 {
		return nil, cobra.ShellCompDirectiveDefault
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// registerFlagCompletion attaches fn to a flag the command already
// defines. A missing flag is a programming error.
func registerFlagCompletion(cmd *cobra.Command, flag string, fn cobra.CompletionFunc) {
	if err := cmd.RegisterFlagCompletionFunc(flag, fn); err != nil {
		panic(fmt.Sprintf("registering completion for %s --%s: %v", cmd.Name(), flag, err))
	}
}
