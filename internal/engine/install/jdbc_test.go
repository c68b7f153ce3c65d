package install

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, body := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractTarGz(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "connector.tar.gz")
	writeTarGz(t, archive, map[string]string{
		"mysql-connector-j-9.4.0/README":                       "readme",
		"mysql-connector-j-9.4.0/mysql-connector-j-9.4.0.jar": "jar-bytes",
	})

	dest := filepath.Join(dir, "out")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := extractTarGz(archive, dest); err != nil {
		t.Fatal(err)
	}

	jar, err := findJar(filepath.Join(dest, "mysql-connector-j-9.4.0"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(jar)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jar-bytes" {
		t.Fatalf("jar content = %q", data)
	}
}

func TestExtractTarGzBlocksPathTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, map[string]string{
		"ok.txt":       "fine",
		"../../evil.sh": "#!/bin/sh",
	})

	dest := filepath.Join(dir, "out")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		t.Fatal(err)
	}
	err := extractTarGz(archive, dest)
	if err == nil || !strings.Contains(err.Error(), "path traversal") {
		t.Fatalf("err = %v, want traversal rejection", err)
	}

	// Nothing may have been written, not even the benign entry.
	files, err := os.ReadDir(dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Fatalf("destination not empty after rejected archive: %v", files)
	}
	if _, err := os.Stat(filepath.Join(dir, "evil.sh")); !os.IsNotExist(err) {
		t.Fatal("traversal entry escaped the destination")
	}
}

func TestFindJarMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := findJar(dir); err == nil {
		t.Fatal("expected error for folder without a jar")
	}
}
