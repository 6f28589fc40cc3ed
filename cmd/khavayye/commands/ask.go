package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taniishka21/KhavayyePeth/internal/logging"
)

// NewAskCmd constructs the `khavayye ask` command, which answers a single
// question from the indexed dataset and prints the reply to stdout.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask Khavayye AI a one-shot restaurant question",
		Long: `Ask a single natural language question about Pune restaurants.

The question is matched against the indexed dataset and the reply is grounded
in the retrieved entries only. Run 'khavayye index' first to build the
embedding matrix.

Examples:
  khavayye ask "best misal pav near Deccan under 200?"
  khavayye ask "family friendly Maharashtrian thali places in Kothrud"
  khavayye ask "late night biryani with good delivery ratings"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipe, err := buildPipeline(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer pipe.Close()

			// Reply never fails: pipeline errors come back as an apology string.
			fmt.Fprintln(cmd.OutOrStdout(), pipe.Answerer.Reply(ctx, args[0], nil))
			return nil
		},
	}

	return cmd
}
