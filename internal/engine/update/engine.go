// Package update checks GitHub for a newer installer release and
// replaces the running executable in place.
package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/domain"
	"github.com/tugasky/jira-installer/internal/services/github"
	"github.com/tugasky/jira-installer/internal/version"
)

const (
	releaseOwner = "tugasky"
	releaseRepo  = "jira-installer"
)

type Engine struct {
	q              *dispatch.Queue
	CurrentVersion string

	// Seams for tests; the zero-value engine talks to GitHub and
	// replaces its own binary.
	Fetch      func(ctx context.Context) (github.Release, error)
	Download   func(ctx context.Context, asset github.Asset, dst string, onProgress func(int)) error
	Executable func() (string, error)
	TempDir    string
}

func New(q *dispatch.Queue, currentVersion string) *Engine {
	return &Engine{
		q:              q,
		CurrentVersion: currentVersion,
		Fetch: func(ctx context.Context) (github.Release, error) {
			return github.FetchLatest(ctx, releaseOwner, releaseRepo)
		},
		Download:   github.DownloadAsset,
		Executable: os.Executable,
		TempDir:    os.TempDir(),
	}
}

// Run performs the whole update protocol: check, confirm, download,
// install. Blocks until finished; call from a worker goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.q.Log(fmt.Sprintf("Checking for updates... (current version: %s)", e.CurrentVersion))

	release, err := e.Fetch(ctx)
	if err != nil {
		e.q.Error(fmt.Sprintf("Update check failed: %v", err))
		e.q.Log("Unable to retrieve latest version information.")
		return
	}
	latest := release.Version()
	e.q.Log(fmt.Sprintf("Latest version available: %s", latest))

	if version.Compare(e.CurrentVersion, latest) >= 0 {
		e.q.Log("No updates available. You have the latest version.")
		e.q.Notify("No Updates", "You have the latest version installed.", domain.SeverityInfo)
		return
	}
	e.q.Log(fmt.Sprintf("Update available: %s -> %s", e.CurrentVersion, latest))

	ok := e.q.Confirm("Update Available", fmt.Sprintf(
		"A new version (%s) is available.\n\nCurrent version: %s\nLatest version: %s\n\nDownload and install it now?",
		latest, e.CurrentVersion, latest))
	if !ok {
		e.q.Log("Update cancelled.")
		return
	}

	asset, found := selectAsset(release.Assets)
	if !found {
		e.q.Error("No suitable update asset found in the latest release.")
		return
	}

	dst := filepath.Join(e.TempDir, fmt.Sprintf("jira-installer_update_%d.tmp", time.Now().Unix()))
	e.q.Log(fmt.Sprintf("Downloading %s...", asset.Name))
	if err := e.Download(ctx, asset, dst, func(pct int) {
		e.q.Progress("Downloading update", pct)
	}); err != nil {
		e.q.Error(fmt.Sprintf("Download failed: %v", err))
		_ = os.Remove(dst)
		return
	}

	live, err := e.Executable()
	if err != nil {
		e.q.Error(fmt.Sprintf("Cannot locate current executable: %v", err))
		_ = os.Remove(dst)
		return
	}
	if err := Replace(live, dst); err != nil {
		e.q.Error(fmt.Sprintf("Update failed: %v", err))
		e.q.Notify("Update Failed", err.Error(), domain.SeverityError)
		_ = os.Remove(dst)
		return
	}

	e.q.Log(fmt.Sprintf("Updated to version %s.", latest))
	e.q.Notify("Update Complete", fmt.Sprintf(
		"Application has been updated to version %s.\n\nPlease restart the application to use the new version.",
		latest), domain.SeverityInfo)
}

// selectAsset picks the platform binary: the .exe on windows, the
// product slug elsewhere.
func selectAsset(assets []github.Asset) (github.Asset, bool) {
	for _, a := range assets {
		if runtime.GOOS == "windows" {
			if strings.HasSuffix(a.Name, ".exe") {
				return a, true
			}
			continue
		}
		if strings.Contains(a.Name, "jira-installer") && !strings.HasSuffix(a.Name, ".exe") {
			return a, true
		}
	}
	return github.Asset{}, false
}
