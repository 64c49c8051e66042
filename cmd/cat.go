package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

var catCmd = &cobra.Command{
	Use:   "cat PATH",
	Short: "Print a file's contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		fd, err := sess.FS.Open(args[0], types.ORdOnly, sess.Root)
		if err != nil {
			return fmt.Errorf("cat: %w", err)
		}
		defer sess.FS.Close(fd, sess.Root)

		buf := make([]byte, types.BlockSize)
		for {
			n, err := sess.FS.Read(fd, buf, sess.Root)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil {
				return fmt.Errorf("cat: %w", err)
			}
			if n == 0 {
				break
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
