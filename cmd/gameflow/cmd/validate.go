package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/playforge/gameflow/pkg/ruledef"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Parse and validate definition files",
	Long: `Validate parses each definition file, checks its structure, and runs
the workflow state machine invariants (exactly one initial state, at least
one terminal state, referential integrity of transitions).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := false
		for _, path := range args {
			if err := validateFile(path); err != nil {
				fmt.Fprintf(os.Stderr, "%s: INVALID: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s: OK\n", path)
		}
		if failed {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

// validateFile checks one definition file end to end: structure via the
// codec, then domain invariants on every workflow.
func validateFile(path string) error {
	f, err := ruledef.DecodeFile(path)
	if err != nil {
		return err
	}
	for _, w := range f.Workflows {
		def, err := ruledef.ToDefinition(w)
		if err != nil {
			return err
		}
		if err := def.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
