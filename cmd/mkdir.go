package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir PATH",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		ip, err := sess.FS.Create(args[0], types.TypeDir, 0, 0, sess.Root.Cwd())
		if err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		return sess.Cache.Iunlockput(ip)
	},
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
}
