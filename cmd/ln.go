package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lnCmd = &cobra.Command{
	Use:   "ln OLDPATH NEWPATH",
	Short: "Create a hard link",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		if err := sess.FS.Link(args[0], args[1], sess.Root.Cwd()); err != nil {
			return fmt.Errorf("ln: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lnCmd)
}
