package cmd

import (
	"fmt"

	"github.com/deploymenttheory/go-tinyfs/internal/config"
	"github.com/deploymenttheory/go-tinyfs/internal/mount"
)

// resolveImagePath applies the same precedence internal/config.Load documents:
// an explicit --image flag beats TINYFS_IMAGE_PATH beats the config file's
// image_path key. positional, if non-empty, is the positional image path some
// subcommands also accept (e.g. mkfs PATH); it wins over all of the above.
func resolveImagePath(positional string) (string, error) {
	if positional != "" {
		return positional, nil
	}
	if imagePath != "" {
		return imagePath, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.ImagePath == "" {
		return "", fmt.Errorf("no image path given: pass --image, set TINYFS_IMAGE_PATH, or set image_path in tinyfs-config.yaml")
	}
	return cfg.ImagePath, nil
}

// openSession resolves the image path and opens a mounted session against it.
// Callers must sess.Close() when done.
func openSession(positionalImage string) (*mount.Session, error) {
	path, err := resolveImagePath(positionalImage)
	if err != nil {
		return nil, err
	}
	sess, err := mount.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	return sess, nil
}
