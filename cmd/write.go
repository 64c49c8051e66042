package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

var writeCmd = &cobra.Command{
	Use:   "write PATH",
	Short: "Write stdin into a file, creating or truncating it",
	Long: `Read all of stdin and store it as PATH's contents, creating PATH if it
doesn't exist and replacing its contents if it does.

Example:
  echo hello | tinyfs --image disk.img write /greeting.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("write: read stdin: %w", err)
		}

		sess, err := openSession("")
		if err != nil {
			return err
		}
		defer sess.Close()

		ip, err := sess.FS.Create(args[0], types.TypeFile, 0, 0, sess.Root.Cwd())
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if ip.Size > 0 {
			if err := sess.Cache.Itrunc(ip); err != nil {
				sess.Cache.Iunlockput(ip)
				return fmt.Errorf("write: %w", err)
			}
		}
		if _, err := sess.Cache.Writei(ip, data, 0, uint32(len(data))); err != nil {
			sess.Cache.Iunlockput(ip)
			return fmt.Errorf("write: %w", err)
		}

		if err := sess.Cache.Iunlockput(ip); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if !quiet {
			fmt.Printf("wrote %d bytes to %s\n", len(data), args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
