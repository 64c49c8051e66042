package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm PATH",
	Short: "Remove a file or empty directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		if err := sess.FS.Unlink(args[0], sess.Root.Cwd()); err != nil {
			return fmt.Errorf("rm: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
