package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// lsEntry is the --output json rendering of one directory entry.
type lsEntry struct {
	Name string `json:"name"`
	Inum uint32 `json:"inum"`
	Type string `json:"type"`
	Size uint32 `json:"size"`
}

var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a directory's entries",
	Long: `List the entries of PATH (default "/"): name, inode number, and type.

Examples:
  tinyfs --image disk.img ls /
  tinyfs --image disk.img ls /docs`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}

		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		dp, err := sess.Res.Namei(path, sess.Root.Cwd())
		if err != nil {
			return fmt.Errorf("ls: %w", err)
		}
		if err := sess.Cache.Ilock(dp); err != nil {
			sess.Cache.Iput(dp)
			return fmt.Errorf("ls: %w", err)
		}
		if dp.Type != types.TypeDir {
			sess.Cache.Iunlockput(dp)
			return fmt.Errorf("ls: %q is not a directory", path)
		}

		entries, err := sess.Dir.List(dp)
		sess.Cache.Iunlockput(dp)
		if err != nil {
			return fmt.Errorf("ls: %w", err)
		}

		var listed []lsEntry
		for _, e := range entries {
			child, err := sess.Cache.Iget(types.RootDev, e.Inum)
			if err != nil {
				return fmt.Errorf("ls: %w", err)
			}
			if err := sess.Cache.Ilock(child); err != nil {
				sess.Cache.Iput(child)
				return fmt.Errorf("ls: %w", err)
			}

			kind := "-"
			if child.Type == types.TypeDir {
				kind = "d"
			}
			listed = append(listed, lsEntry{Name: e.Name, Inum: child.Inum, Type: kind, Size: child.Size})

			if err := sess.Cache.Iunlockput(child); err != nil {
				return fmt.Errorf("ls: %w", err)
			}
		}

		if GetOutputFormat() == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(listed)
		}

		for _, e := range listed {
			fmt.Printf("%s %6d %8d %s\n", e.Type, e.Inum, e.Size, e.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
