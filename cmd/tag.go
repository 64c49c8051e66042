package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Get, set, or remove a file's key/value tags",
}

var tagSetCmd = &cobra.Command{
	Use:   "set PATH KEY VALUE",
	Short: "Set KEY=VALUE on PATH, overwriting any existing value",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		fd, err := sess.FS.Open(args[0], types.ORdWr, sess.Root)
		if err != nil {
			return fmt.Errorf("tag set: %w", err)
		}
		defer sess.FS.Close(fd, sess.Root)

		if _, err := sess.Tags.TagFile(sess.Root, fd, args[1], []byte(args[2])); err != nil {
			return fmt.Errorf("tag set: %w", err)
		}
		return nil
	},
}

var tagGetCmd = &cobra.Command{
	Use:   "get PATH KEY",
	Short: "Print the value stored under KEY on PATH",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		fd, err := sess.FS.Open(args[0], types.ORdOnly, sess.Root)
		if err != nil {
			return fmt.Errorf("tag get: %w", err)
		}
		defer sess.FS.Close(fd, sess.Root)

		buf := make([]byte, types.TagValueFieldSize)
		n, err := sess.Tags.GetFileTag(sess.Root, fd, args[1], buf)
		if err != nil {
			return fmt.Errorf("tag get: %w", err)
		}
		fmt.Println(string(buf[:n]))
		return nil
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm PATH KEY",
	Short: "Remove KEY from PATH",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		fd, err := sess.FS.Open(args[0], types.ORdWr, sess.Root)
		if err != nil {
			return fmt.Errorf("tag rm: %w", err)
		}
		defer sess.FS.Close(fd, sess.Root)

		if _, err := sess.Tags.RemoveFileTag(sess.Root, fd, args[1]); err != nil {
			return fmt.Errorf("tag rm: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagCmd)
	tagCmd.AddCommand(tagSetCmd, tagGetCmd, tagRmCmd)
}
