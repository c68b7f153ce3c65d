package install

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// downloadFile streams url to dst. The JDBC tarball is small, one
// bounded attempt is enough.
func downloadFile(url, dst string) error {
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: %s", url, resp.Status)
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Sync()
}

// extractTarGz unpacks archive under dest. Every entry path is resolved
// against dest before anything is written; an entry that would land
// outside dest aborts the whole extraction with nothing written.
func extractTarGz(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open %s: %w", archive, err)
	}
	defer gz.Close()

	base, err := filepath.Abs(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	var entries []*tar.Header
	var bodies [][]byte
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", archive, err)
		}
		target := filepath.Join(base, hdr.Name)
		if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return fmt.Errorf("blocked path traversal in archive entry %q", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir, tar.TypeReg:
		default:
			continue
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("read %s: %w", archive, err)
		}
		entries = append(entries, hdr)
		bodies = append(bodies, body)
	}

	// All entries validated, now write.
	for i, hdr := range entries {
		target := filepath.Join(base, hdr.Name)
		if hdr.Typeflag == tar.TypeDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, bodies[i], fs.FileMode(hdr.Mode)&0o777); err != nil {
			return err
		}
	}
	return nil
}

// findJar returns the first .jar file under dir.
func findJar(dir string) (string, error) {
	var jar string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if jar == "" && !d.IsDir() && strings.HasSuffix(d.Name(), ".jar") {
			jar = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if jar == "" {
		return "", fmt.Errorf("no .jar file under %s", dir)
	}
	return jar, nil
}
