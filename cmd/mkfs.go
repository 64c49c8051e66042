package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-tinyfs/internal/mkfs"
)

var (
	mkfsBlocks uint32
	mkfsInodes uint32
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs PATH",
	Short: "Format a new filesystem image",
	Long: `Create a fresh tinyfs image at PATH: boot block, superblock, inode
region, free-block bitmap, and a root directory containing only "." and "..".

Examples:
  # Format with the default size (1024 blocks, 200 inodes)
  tinyfs mkfs disk.img

  # Format a larger image
  tinyfs mkfs disk.img --blocks 8192 --inodes 512`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := mkfs.DefaultOptions()
		if mkfsBlocks != 0 {
			opts.NBlocks = mkfsBlocks
		}
		if mkfsInodes != 0 {
			opts.NInodes = mkfsInodes
		}
		if err := mkfs.Format(args[0], opts); err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("formatted %s: %d blocks, %d inodes\n", args[0], opts.NBlocks, opts.NInodes)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mkfsCmd)

	mkfsCmd.Flags().Uint32Var(&mkfsBlocks, "blocks", 0, "total device size in blocks (default 1024)")
	mkfsCmd.Flags().Uint32Var(&mkfsInodes, "inodes", 0, "number of inode slots (default 200)")
}
