package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tugasky/jira-installer/internal/config"
	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/dockerx"
	"github.com/tugasky/jira-installer/internal/domain"
	"github.com/tugasky/jira-installer/internal/pipeline"
)

// fakeRuntime is an in-memory Runtime. Method calls mutate the maps so
// idempotency checks behave like a real daemon.
type fakeRuntime struct {
	mu         sync.Mutex
	networks   map[string]bool
	containers map[string]bool
	volumes    map[string]bool
	images     map[string]bool
	portUsers  []dockerx.PortUser
	execErr    error

	runSpecs  []dockerx.RunSpec
	execCmds  [][]string
	stopped   []string
	removed   []string
	restarted []string
	volumesRm []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		networks:   map[string]bool{},
		containers: map[string]bool{},
		volumes:    map[string]bool{},
		images:     map[string]bool{},
	}
}

func (f *fakeRuntime) Ping(context.Context) error { return nil }

func (f *fakeRuntime) NetworkExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networks[name], nil
}

func (f *fakeRuntime) NetworkCreate(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[name] = true
	return nil
}

func (f *fakeRuntime) ContainerExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[name], nil
}

func (f *fakeRuntime) ContainerRemove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeRuntime) ContainerStop(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeRuntime) ContainerRestart(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = append(f.restarted, name)
	return nil
}

func (f *fakeRuntime) VolumeExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[name], nil
}

func (f *fakeRuntime) VolumeRemove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.volumes, name)
	f.volumesRm = append(f.volumesRm, name)
	return nil
}

func (f *fakeRuntime) ImageExists(_ context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[ref], nil
}

func (f *fakeRuntime) ImagePull(_ context.Context, ref string, onProgress func(int)) error {
	f.mu.Lock()
	f.images[ref] = true
	f.mu.Unlock()
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

func (f *fakeRuntime) ContainerRun(_ context.Context, spec dockerx.RunSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[spec.Name] = true
	f.runSpecs = append(f.runSpecs, spec)
	return nil
}

func (f *fakeRuntime) Exec(_ context.Context, name string, cmd ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execCmds = append(f.execCmds, append([]string{name}, cmd...))
	return "", f.execErr
}

func (f *fakeRuntime) ListPortUsers(context.Context, int) ([]dockerx.PortUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.portUsers, nil
}

// scriptedHandler answers confirmations by title and records traffic.
type scriptedHandler struct {
	answers  map[string]bool
	logs     []string
	notices  []domain.Notice
	confirms []string
}

func (h *scriptedHandler) HandleLog(e domain.LogEntry)  { h.logs = append(h.logs, e.Message) }
func (h *scriptedHandler) HandleNotify(n domain.Notice) { h.notices = append(h.notices, n) }
func (h *scriptedHandler) HandleProgress(string, int)   {}
func (h *scriptedHandler) HandleConfirm(c *dispatch.Confirmation) {
	h.confirms = append(h.confirms, c.Title)
	c.Answer(h.answers[c.Title])
}

type harness struct {
	handler *scriptedHandler
	pipe    *pipeline.Pipeline
	// everRunning tracks which step indexes were observed Running.
	everRunning map[int]bool
	final       pipeline.Snapshot
}

// runEngine drives the engine to completion, draining the dispatcher
// the way the presentation loop would.
func runEngine(t *testing.T, fake *fakeRuntime, cfg config.Install, prep func(e *Engine), answers map[string]bool) *harness {
	t.Helper()

	h := &harness{
		handler:     &scriptedHandler{answers: answers},
		everRunning: map[int]bool{},
	}
	q := dispatch.New()
	tok := q.Bind(h.handler)
	h.pipe = pipeline.New(q, func(s pipeline.Snapshot) {
		if s.Running >= 0 {
			h.everRunning[s.Running] = true
		}
		h.final = s
	})

	eng := New(cfg, q, h.pipe, fake)
	eng.WorkDir = t.TempDir()
	if prep != nil {
		prep(eng)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(context.Background())
	}()
	deadline := time.After(10 * time.Second)
	for {
		tok.Drain()
		select {
		case <-done:
			tok.Drain()
			return h
		case <-deadline:
			t.Fatal("engine did not finish")
		case <-time.After(time.Millisecond):
		}
	}
}

func (h *harness) hasLog(t *testing.T, want string) {
	t.Helper()
	for _, line := range h.handler.logs {
		if strings.Contains(line, want) {
			return
		}
	}
	t.Fatalf("log %q not found in:\n%s", want, strings.Join(h.handler.logs, "\n"))
}

func (h *harness) stepByTitle(t *testing.T, title string) pipeline.Step {
	t.Helper()
	for _, st := range h.final.Steps {
		if st.Title == title {
			return st
		}
	}
	t.Fatalf("step %q not in run %+v", title, h.final.Steps)
	return pipeline.Step{}
}

func mustConfig(t *testing.T, version string) config.Install {
	t.Helper()
	cfg, err := config.ForVersion(version)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

// seedJDBC places an already-extracted connector folder in dir so the
// JDBC step skips both download and extraction.
func seedJDBC(t *testing.T, dir string, cfg config.Install) {
	t.Helper()
	folder := filepath.Join(dir, cfg.JDBCFolder())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, cfg.JDBCTar()), []byte("placeholder"), 0o644); err != nil {
		t.Fatal(err)
	}
	jar := filepath.Join(folder, fmt.Sprintf("mysql-connector-j-%s.jar", cfg.JDBCVersion))
	if err := os.WriteFile(jar, []byte("jar"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInstallWithoutDatabase(t *testing.T) {
	t.Parallel()

	fake := newFakeRuntime()
	cfg := mustConfig(t, "9.15.0")
	h := runEngine(t, fake, cfg, nil, nil)

	if h.final.Total != 6 || h.final.Completed != 6 {
		t.Fatalf("run = %d/%d steps done", h.final.Completed, h.final.Total)
	}
	for _, st := range h.final.Steps {
		if st.Status != pipeline.StatusDone {
			t.Fatalf("step %q = %q", st.Title, st.Status)
		}
	}
	h.hasLog(t, "http://localhost:8081")

	if len(fake.runSpecs) != 1 {
		t.Fatalf("container runs = %d, want 1", len(fake.runSpecs))
	}
	spec := fake.runSpecs[0]
	if spec.Name != "jira9.15.0" || spec.Ports[8081] != 8080 || spec.Network != "jira_network" {
		t.Fatalf("jira run spec = %+v", spec)
	}
	if len(spec.Env) != 0 {
		t.Fatalf("built-in-db run got database env: %v", spec.Env)
	}
	if !fake.networks["jira_network"] {
		t.Fatal("network was not created")
	}
	if len(fake.restarted) != 1 || fake.restarted[0] != "jira9.15.0" {
		t.Fatalf("restarts = %v", fake.restarted)
	}
}

func TestInstallWithDatabase(t *testing.T) {
	t.Parallel()

	fake := newFakeRuntime()
	cfg := mustConfig(t, "10.2.6")
	fake.volumes[cfg.MySQL.Volume] = true // stale data from a prior run

	h := runEngine(t, fake, cfg, func(e *Engine) {
		seedJDBC(t, e.WorkDir, cfg)
		e.ReadyInterval = time.Millisecond
	}, nil)

	if h.final.Total != 9 || h.final.Completed != 9 {
		t.Fatalf("run = %d/%d steps done", h.final.Completed, h.final.Total)
	}
	h.hasLog(t, "http://localhost:8080")
	h.hasLog(t, "MySQL is ready")

	if len(fake.volumesRm) != 1 || fake.volumesRm[0] != cfg.MySQL.Volume {
		t.Fatalf("stale volume not recreated: %v", fake.volumesRm)
	}
	if len(fake.runSpecs) != 2 {
		t.Fatalf("container runs = %d, want mysql+jira", len(fake.runSpecs))
	}
	mysql, jira := fake.runSpecs[0], fake.runSpecs[1]
	if mysql.Name != "10.2.6_mysql" || mysql.Volumes[cfg.MySQL.Volume] != "/var/lib/mysql" {
		t.Fatalf("mysql run spec = %+v", mysql)
	}
	var jdbcURL string
	for _, env := range jira.Env {
		if strings.HasPrefix(env, "ATL_JDBC_URL=") {
			jdbcURL = env
		}
	}
	if !strings.Contains(jdbcURL, "jdbc:mysql://10.2.6_mysql:3306/10.2.6_db") {
		t.Fatalf("jdbc url env = %q", jdbcURL)
	}
	if len(jira.Mounts) != 1 || !strings.HasPrefix(jira.Mounts[0].Target, "/opt/atlassian/jira/lib/") {
		t.Fatalf("driver mount = %+v", jira.Mounts)
	}
}

func TestInstallDatabaseNeverReady(t *testing.T) {
	t.Parallel()

	fake := newFakeRuntime()
	fake.execErr = errors.New("mysqld not ready")
	cfg := mustConfig(t, "10.2.6")

	h := runEngine(t, fake, cfg, func(e *Engine) {
		seedJDBC(t, e.WorkDir, cfg)
		e.ReadyTimeout = 20 * time.Millisecond
		e.ReadyInterval = 5 * time.Millisecond
	}, nil)

	if st := h.stepByTitle(t, "Start Jira"); st.Status != pipeline.StatusError {
		t.Fatalf("Start Jira = %q, want error", st.Status)
	}
	h.hasLog(t, "MySQL did not become ready in time")
	for _, title := range []string{"Restart Jira", "Finalize"} {
		st := h.stepByTitle(t, title)
		if st.Status != pipeline.StatusPending {
			t.Fatalf("%s = %q after failure", title, st.Status)
		}
		if h.everRunning[st.Index] {
			t.Fatalf("%s was observed running after failure", title)
		}
	}
	// Only the MySQL container made it up.
	if len(fake.runSpecs) != 1 || fake.runSpecs[0].Name != "10.2.6_mysql" {
		t.Fatalf("container runs = %+v", fake.runSpecs)
	}
}

func TestPortConflictDeclineCancelsRun(t *testing.T) {
	t.Parallel()

	fake := newFakeRuntime()
	fake.portUsers = []dockerx.PortUser{{Name: "old-jira", Port: 8081}}
	cfg := mustConfig(t, "9.15.0")

	h := runEngine(t, fake, cfg, nil, map[string]bool{"Port in use": false})

	h.hasLog(t, "Installation cancelled by user.")
	if h.final.Steps[0].Status != pipeline.StatusError {
		t.Fatalf("first step = %q, want error", h.final.Steps[0].Status)
	}
	if len(fake.stopped) != 0 {
		t.Fatalf("containers stopped after decline: %v", fake.stopped)
	}
	if fake.networks["jira_network"] {
		t.Fatal("network was created after cancellation")
	}
}

func TestPortConflictAcceptedStopsContainer(t *testing.T) {
	t.Parallel()

	fake := newFakeRuntime()
	fake.portUsers = []dockerx.PortUser{{Name: "old-jira", Port: 8081}}
	cfg := mustConfig(t, "9.15.0")

	h := runEngine(t, fake, cfg, nil, map[string]bool{"Port in use": true})

	if len(fake.stopped) != 1 || fake.stopped[0] != "old-jira" {
		t.Fatalf("stopped = %v", fake.stopped)
	}
	h.hasLog(t, "Port 8081 was freed by stopping 'old-jira'.")
	if h.final.Completed != 6 {
		t.Fatalf("completed = %d, want 6", h.final.Completed)
	}
}

func TestExistingContainerDecline(t *testing.T) {
	t.Parallel()

	fake := newFakeRuntime()
	cfg := mustConfig(t, "9.15.0")
	fake.containers[cfg.ContainerName] = true

	h := runEngine(t, fake, cfg, nil, map[string]bool{"Container exists": false})

	h.hasLog(t, "Installation cancelled by user.")
	if st := h.stepByTitle(t, "Pull Jira image"); st.Status != pipeline.StatusError {
		t.Fatalf("Pull Jira image = %q, want error", st.Status)
	}
	if fake.containers[cfg.ContainerName] != true {
		t.Fatal("declined removal still removed the container")
	}
}

func TestExistingContainerAcceptedIsRemoved(t *testing.T) {
	t.Parallel()

	fake := newFakeRuntime()
	cfg := mustConfig(t, "9.15.0")
	fake.containers[cfg.ContainerName] = true

	h := runEngine(t, fake, cfg, nil, map[string]bool{"Container exists": true})

	if len(fake.removed) != 1 || fake.removed[0] != cfg.ContainerName {
		t.Fatalf("removed = %v", fake.removed)
	}
	h.hasLog(t, "Removed existing container "+cfg.ContainerName)
	if h.final.Completed != 6 {
		t.Fatalf("completed = %d, want 6", h.final.Completed)
	}
}

func TestPatchJVMArgsVersionSpecific(t *testing.T) {
	t.Parallel()

	fake := newFakeRuntime()
	cfg := mustConfig(t, "11.0.0")
	h := runEngine(t, fake, cfg, func(e *Engine) {
		seedJDBC(t, e.WorkDir, cfg)
		e.ReadyInterval = time.Millisecond
	}, nil)

	if h.final.Completed != 9 {
		t.Fatalf("completed = %d, want 9", h.final.Completed)
	}
	var patch string
	for _, cmd := range fake.execCmds {
		joined := strings.Join(cmd, " ")
		if strings.Contains(joined, "setenv.sh") {
			patch = joined
		}
	}
	if !strings.Contains(patch, "-Datlassian.upm.signature.check.disabled=true") {
		t.Fatalf("11.x patch misses the signature flag: %q", patch)
	}
}
