// Package install runs the guided installation of a Jira container
// stack: the application container for every supported version, plus a
// MySQL container and JDBC driver for the majors that need an external
// database. The engine runs on a worker goroutine and talks to the
// presentation loop only through the dispatcher and the step pipeline.
package install

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tugasky/jira-installer/internal/config"
	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/dockerx"
	"github.com/tugasky/jira-installer/internal/domain"
	"github.com/tugasky/jira-installer/internal/pipeline"
	"github.com/tugasky/jira-installer/internal/poll"
)

// Runtime is the container-engine surface the workflow needs.
// *dockerx.Client implements it; tests use a fake.
type Runtime interface {
	Ping(ctx context.Context) error
	NetworkExists(ctx context.Context, name string) (bool, error)
	NetworkCreate(ctx context.Context, name string) error
	ContainerExists(ctx context.Context, name string) (bool, error)
	ContainerRemove(ctx context.Context, name string) error
	ContainerStop(ctx context.Context, name string) error
	ContainerRestart(ctx context.Context, name string) error
	VolumeExists(ctx context.Context, name string) (bool, error)
	VolumeRemove(ctx context.Context, name string) error
	ImageExists(ctx context.Context, ref string) (bool, error)
	ImagePull(ctx context.Context, ref string, onProgress func(pct int)) error
	ContainerRun(ctx context.Context, spec dockerx.RunSpec) error
	Exec(ctx context.Context, name string, cmd ...string) (string, error)
	ListPortUsers(ctx context.Context, hostPort int) ([]dockerx.PortUser, error)
}

type Engine struct {
	cfg  config.Install
	q    *dispatch.Queue
	pipe *pipeline.Pipeline
	rt   Runtime

	// WorkDir is where the JDBC tarball is downloaded and unpacked.
	WorkDir string
	// Readiness gate for the database container.
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
}

func New(cfg config.Install, q *dispatch.Queue, pipe *pipeline.Pipeline, rt Runtime) *Engine {
	return &Engine{
		cfg:           cfg,
		q:             q,
		pipe:          pipe,
		rt:            rt,
		WorkDir:       ".",
		ReadyTimeout:  2 * time.Minute,
		ReadyInterval: 2 * time.Second,
	}
}

func stepTitles(withDatabase bool) []string {
	titles := []string{"Create/check network", "Pull Jira image"}
	if withDatabase {
		titles = append(titles, "Pull MySQL image", "Start MySQL", "Download/extract JDBC")
	}
	return append(titles, "Start Jira", "Patch JVM args", "Restart Jira", "Finalize")
}

// Run executes the installation. It blocks until the run finishes one
// way or the other; call it from a worker goroutine.
func (e *Engine) Run(ctx context.Context) {
	cfg := e.cfg

	if err := e.rt.Ping(ctx); err != nil {
		e.q.Notify("Docker unavailable", err.Error(), domain.SeverityError)
		e.q.Error(err.Error())
		return
	}

	// Free the host port before the run starts. Declining cancels the
	// whole installation with the first step marked failed.
	if !e.resolvePortConflict(ctx, cfg.Port, cfg.WithDatabase) {
		return
	}

	e.q.Log(fmt.Sprintf("Starting installation of Jira %s on port %d...", cfg.Version, cfg.Port))
	e.pipe.Begin(stepTitles(cfg.WithDatabase))
	step := 0

	// Create/check network
	e.pipe.StartStep(step)
	exists, err := e.rt.NetworkExists(ctx, cfg.NetworkName)
	if err != nil {
		e.fail(step, err)
		return
	}
	if exists {
		e.q.Log(fmt.Sprintf("'%s' already exists.", cfg.NetworkName))
	} else {
		e.q.Log(fmt.Sprintf("Creating docker network '%s'...", cfg.NetworkName))
		if err := e.rt.NetworkCreate(ctx, cfg.NetworkName); err != nil {
			e.fail(step, err)
			return
		}
	}
	e.pipe.CompleteStep(step)

	// Pull Jira image
	step++
	e.pipe.StartStep(step)
	if ok, err := e.removeExistingContainer(ctx, cfg.ContainerName); err != nil {
		e.fail(step, err)
		return
	} else if !ok {
		e.cancel(step)
		return
	}
	if err := e.ensureImage(ctx, cfg.Image()); err != nil {
		e.fail(step, err)
		return
	}
	e.pipe.CompleteStep(step)

	var jarPath string
	if cfg.WithDatabase {
		// Pull MySQL image
		step++
		e.pipe.StartStep(step)
		if err := e.ensureImage(ctx, cfg.MySQL.Image); err != nil {
			e.fail(step, err)
			return
		}
		e.pipe.CompleteStep(step)

		// Start MySQL
		step++
		e.pipe.StartStep(step)
		if err := e.startMySQL(ctx); err != nil {
			e.fail(step, err)
			return
		}
		e.pipe.CompleteStep(step)

		// Download/extract JDBC
		step++
		e.pipe.StartStep(step)
		jarPath, err = e.obtainJDBC()
		if err != nil {
			e.q.Notify("Download/Extract Error", fmt.Sprintf("Failed to obtain JDBC driver: %v", err), domain.SeverityError)
			e.fail(step, err)
			return
		}
		e.pipe.CompleteStep(step)
	}

	// Start Jira
	step++
	e.pipe.StartStep(step)
	if cfg.WithDatabase {
		e.q.Log("Waiting for MySQL to become ready...")
		if !poll.WaitReady(ctx, e.mysqlProbe(), e.ReadyTimeout, e.ReadyInterval) {
			e.fail(step, fmt.Errorf("MySQL did not become ready in time"))
			return
		}
		e.q.Log("MySQL is ready. Proceeding to start Jira...")
	}
	e.q.Log(fmt.Sprintf("Installing Jira %s...", cfg.Version))
	if err := e.startJira(ctx, jarPath); err != nil {
		e.fail(step, err)
		return
	}
	e.pipe.CompleteStep(step)

	// Patch JVM args
	step++
	e.pipe.StartStep(step)
	if err := e.patchJVMArgs(ctx); err != nil {
		e.fail(step, err)
		return
	}
	e.pipe.CompleteStep(step)

	// Restart Jira
	step++
	e.pipe.StartStep(step)
	if err := e.rt.ContainerRestart(ctx, cfg.ContainerName); err != nil {
		e.fail(step, err)
		return
	}
	e.pipe.CompleteStep(step)

	// Finalize
	step++
	e.pipe.StartStep(step)
	e.q.Log(fmt.Sprintf("[OK] Jira %s installation complete!", cfg.Version))
	if cfg.WithDatabase {
		e.q.Log("[INFO] MySQL Host: " + cfg.MySQL.ContainerName)
		e.q.Log("[INFO] DB: " + cfg.MySQL.Database)
		e.q.Log("[INFO] MySQL User: " + cfg.MySQL.User)
		e.q.Log("[INFO] MySQL Password: " + cfg.MySQL.Password)
	}
	e.q.Log(fmt.Sprintf("[INFO] Jira URL: http://localhost:%d", cfg.Port))
	e.q.Log("[INFO] Jira Login: admin/admin")
	e.pipe.CompleteStep(step)
	e.pipe.EndRun()
}

// resolvePortConflict stops any running container that publishes the
// target port, with the user's consent. A decline shows the cancelled
// run in the step panel: the steps appear with the first one failed.
func (e *Engine) resolvePortConflict(ctx context.Context, port int, withDatabase bool) bool {
	users, err := e.rt.ListPortUsers(ctx, port)
	if err != nil {
		// Conflict detection is best effort; the container start will
		// surface a hard bind failure on its own.
		e.q.Warn(fmt.Sprintf("Could not inspect port %d usage: %v", port, err))
		return true
	}
	if len(users) == 0 {
		return true
	}
	name := users[0].Name
	ok := e.q.Confirm("Port in use",
		fmt.Sprintf("Port %d is already used by container '%s'. Stop it and continue?", port, name))
	if !ok {
		e.pipe.Begin(stepTitles(withDatabase))
		e.pipe.FailStep(0)
		e.q.Log("Installation cancelled by user.")
		e.pipe.EndRun()
		return false
	}
	if err := e.rt.ContainerStop(ctx, name); err != nil {
		e.q.Error(err.Error())
		e.pipe.Begin(stepTitles(withDatabase))
		e.pipe.FailStep(0)
		e.pipe.EndRun()
		return false
	}
	e.q.Log(fmt.Sprintf("Port %d was freed by stopping '%s'.", port, name))
	return true
}

// removeExistingContainer asks before removing a same-named container.
// Returns false when the user declines.
func (e *Engine) removeExistingContainer(ctx context.Context, name string) (bool, error) {
	exists, err := e.rt.ContainerExists(ctx, name)
	if err != nil || !exists {
		return err == nil, err
	}
	e.q.Log(fmt.Sprintf("Container '%s' already exists.", name))
	ok := e.q.Confirm("Container exists",
		fmt.Sprintf("Container %s exists. Remove it and continue?", name))
	if !ok {
		return false, nil
	}
	if err := e.rt.ContainerRemove(ctx, name); err != nil {
		return false, err
	}
	e.q.Log(fmt.Sprintf("Removed existing container %s.", name))
	return true, nil
}

func (e *Engine) ensureImage(ctx context.Context, ref string) error {
	exists, err := e.rt.ImageExists(ctx, ref)
	if err != nil {
		return err
	}
	if exists {
		e.q.Log(fmt.Sprintf("Image '%s' already exists.", ref))
		return nil
	}
	e.q.Log(fmt.Sprintf("Pulling image '%s'...", ref))
	if err := e.rt.ImagePull(ctx, ref, func(pct int) {
		e.q.Progress("Pulling "+ref, pct)
	}); err != nil {
		return err
	}
	e.q.Log(fmt.Sprintf("Image '%s' pulled.", ref))
	return nil
}

// startMySQL provisions the database container. The data volume is
// recreated from scratch: a stale volume carries credentials from a
// previous run that would not match this one.
func (e *Engine) startMySQL(ctx context.Context) error {
	my := e.cfg.MySQL

	exists, err := e.rt.VolumeExists(ctx, my.Volume)
	if err != nil {
		return err
	}
	if exists {
		e.q.Log(fmt.Sprintf("Volume '%s' already exists. Deleting it...", my.Volume))
		if err := e.rt.VolumeRemove(ctx, my.Volume); err != nil {
			return fmt.Errorf("delete existing volume %q: %w", my.Volume, err)
		}
		e.q.Log(fmt.Sprintf("[OK] Existing volume '%s' deleted successfully.", my.Volume))
	}

	running, err := e.rt.ContainerExists(ctx, my.ContainerName)
	if err != nil {
		return err
	}
	if running {
		e.q.Log("MySQL container already running.")
		return nil
	}

	e.q.Log(fmt.Sprintf("Installing MySQL container '%s' with custom credentials...", my.ContainerName))
	err = e.rt.ContainerRun(ctx, dockerx.RunSpec{
		Name:    my.ContainerName,
		Image:   my.Image,
		Network: e.cfg.NetworkName,
		Env: []string{
			"MYSQL_ROOT_PASSWORD=" + my.RootPassword,
			"MYSQL_DATABASE=" + my.Database,
			"MYSQL_USER=" + my.User,
			"MYSQL_PASSWORD=" + my.Password,
		},
		Volumes: map[string]string{my.Volume: "/var/lib/mysql"},
	})
	if err != nil {
		return err
	}
	e.q.Log("MySQL container started.")
	return nil
}

// obtainJDBC downloads and unpacks the Connector/J archive, skipping
// whatever already exists on disk, and locates the driver jar.
func (e *Engine) obtainJDBC() (string, error) {
	tarPath := filepath.Join(e.WorkDir, e.cfg.JDBCTar())
	folder := filepath.Join(e.WorkDir, e.cfg.JDBCFolder())

	if _, err := os.Stat(tarPath); os.IsNotExist(err) {
		e.q.Log(fmt.Sprintf("Downloading MySQL JDBC Connector %s...", e.cfg.JDBCVersion))
		if err := downloadFile(e.cfg.JDBCURL(), tarPath); err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(folder); os.IsNotExist(err) {
		if err := extractTarGz(tarPath, e.WorkDir); err != nil {
			return "", err
		}
	}
	return findJar(folder)
}

func (e *Engine) mysqlProbe() poll.Probe {
	my := e.cfg.MySQL
	ping := fmt.Sprintf("mysqladmin ping -h 127.0.0.1 -uroot -p%s --silent", my.RootPassword)
	return func(ctx context.Context) error {
		_, err := e.rt.Exec(ctx, my.ContainerName, "bash", "-c", ping)
		return err
	}
}

func (e *Engine) startJira(ctx context.Context, jarPath string) error {
	cfg := e.cfg
	spec := dockerx.RunSpec{
		Name:    cfg.ContainerName,
		Image:   cfg.Image(),
		Network: cfg.NetworkName,
		Ports:   map[int]int{cfg.Port: 8080},
	}
	if cfg.WithDatabase {
		my := cfg.MySQL
		spec.Env = []string{
			fmt.Sprintf("ATL_JDBC_URL=jdbc:mysql://%s:%s/%s?useSSL=false&serverTimezone=UTC",
				my.Hostname, my.Port, my.Database),
			"ATL_JDBC_USER=" + my.User,
			"ATL_JDBC_PASSWORD=" + my.Password,
		}
		abs, err := filepath.Abs(jarPath)
		if err != nil {
			return err
		}
		spec.Mounts = []dockerx.Mount{{
			Source: abs,
			Target: "/opt/atlassian/jira/lib/" + filepath.Base(jarPath),
		}}
	}
	return e.rt.ContainerRun(ctx, spec)
}

// patchJVMArgs rewrites JVM_SUPPORT_RECOMMENDED_ARGS in setenv.sh
// inside the container. Jira 11 additionally needs the UPM signature
// check disabled for plugin upload to work.
func (e *Engine) patchJVMArgs(ctx context.Context) error {
	jvmArgs := "-Dupm.plugin.upload.enabled=true"
	if strings.HasPrefix(e.cfg.Version, "11.") {
		jvmArgs += " -Datlassian.upm.signature.check.disabled=true"
	}
	sed := `sed -i ` +
		`"s#^\(:\s*\${JVM_SUPPORT_RECOMMENDED_ARGS[^}]*}\|JVM_SUPPORT_RECOMMENDED_ARGS=.*\)#JVM_SUPPORT_RECOMMENDED_ARGS=\"` +
		jvmArgs + `\"#"` +
		` /opt/atlassian/jira/bin/setenv.sh`
	_, err := e.rt.Exec(ctx, e.cfg.ContainerName, "bash", "-c", sed)
	return err
}

func (e *Engine) fail(step int, err error) {
	e.q.Error(err.Error())
	e.pipe.FailStep(step)
	e.pipe.EndRun()
}

func (e *Engine) cancel(step int) {
	e.q.Log("Installation cancelled by user.")
	e.pipe.FailStep(step)
	e.pipe.EndRun()
}
