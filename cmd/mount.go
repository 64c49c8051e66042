package cmd

import (
	"context"
	"fmt"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-tinyfs/internal/fuseadapter"
)

var mountReadOnly bool

var mountCmd = &cobra.Command{
	Use:   "mount MOUNTPOINT",
	Short: "Mount the image as a FUSE filesystem",
	Long: `Mount the image named by --image/TINYFS_IMAGE_PATH at MOUNTPOINT, serving
ops through internal/fuseadapter until the mount is unmounted (fusermount -u,
umount, or Ctrl-C).

Example:
  tinyfs --image disk.img mount /mnt/tinyfs`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		fs := fuseadapter.New(sess)
		server := fuseutil.NewFileSystemServer(fs)

		cfg := &fuse.MountConfig{}
		mfs, err := fuse.Mount(args[0], server, cfg)
		if err != nil {
			return fmt.Errorf("mount: %w", err)
		}

		if !quiet {
			fmt.Printf("mounted %s\n", args[0])
		}
		return mfs.Join(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().BoolVar(&mountReadOnly, "read-only", false, "mount read-only (not yet enforced by internal/fuseadapter)")
}
