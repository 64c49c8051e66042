package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	quiet        bool
	outputFormat string

	// imagePath names the tinyfs image file every subcommand but mkfs
	// operates on; bound to TINYFS_IMAGE_PATH and the tinyfs-config.yaml
	// image_path key via internal/config.
	imagePath string
)

var rootCmd = &cobra.Command{
	Use:   "tinyfs",
	Short: "A teaching-sized, xv6-style block filesystem",
	Long: `tinyfs is a command-line tool for creating, inspecting, and mounting a
small block-based filesystem image: single-device, fixed-size inodes,
direct/indirect block mapping, and a flat per-file key/value tag store.

Commands:
  mkfs     Format a new filesystem image
  ls       List a directory's entries
  stat     Print an inode's metadata
  cat      Print a file's contents
  write    Write stdin into a file
  mkdir    Create a directory
  ln       Create a hard link
  rm       Remove a file or empty directory
  tag      Get, set, or remove a file's key/value tags
  check    Walk the filesystem and report structural inconsistencies
  mount    Mount the image as a FUSE filesystem`,
	Version: "0.1.0-dev",
}

// Execute runs the selected subcommand, printing and exiting nonzero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&imagePath, "image", "i", "", "path to the tinyfs image file (env TINYFS_IMAGE_PATH)")

	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("output_format", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("image_path", rootCmd.PersistentFlags().Lookup("image"))
}

// GetOutputFormat returns the output format requested via --output/-o,
// consulted by commands (e.g. ls) that can render more than one way.
func GetOutputFormat() string { return outputFormat }
