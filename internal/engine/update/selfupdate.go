package update

import (
	"fmt"
	"io"
	"os"
)

// Replace installs the downloaded binary at updatePath over the live
// executable at livePath. The live file is backed up first and restored
// if the swap fails, so a broken download never leaves the user without
// a working binary. On success the backup is deleted.
func Replace(livePath, updatePath string) error {
	backup := livePath + ".backup"

	// A backup left over from an earlier failed update is stale.
	_ = os.Remove(backup)
	if err := copyFile(livePath, backup); err != nil {
		return fmt.Errorf("create backup: %w", err)
	}

	if err := os.Remove(livePath); err != nil {
		_ = os.Remove(backup)
		return fmt.Errorf("remove current executable: %w", err)
	}
	if err := moveFile(updatePath, livePath); err != nil {
		if rerr := copyFile(backup, livePath); rerr != nil {
			return fmt.Errorf("install update: %w (restore backup also failed: %v)", err, rerr)
		}
		return fmt.Errorf("install update (previous version restored): %w", err)
	}

	_ = os.Remove(backup)
	return nil
}

// moveFile renames, falling back to copy+remove when the update sits on
// a different filesystem than the executable.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0o100)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
