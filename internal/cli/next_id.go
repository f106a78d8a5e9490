package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eid-tools/dds-hashcode/internal/signing"
)

var nextIDCmd = &cobra.Command{
	Use:   "next-id <container>",
	Short: "Print the identifier the next added data file gets",
	Long: `Print the lowest free D<n> identifier of a container. The signing service assigns the same
identifier when a data file is added to a session holding this container.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readContainer(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), signing.NextDataFileID(c.DataFileIDs()))
		return err
	},
}
