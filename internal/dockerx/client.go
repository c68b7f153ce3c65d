// Package dockerx wraps the Docker Engine API with the handful of
// operations the installer needs. Existence checks are idempotent:
// "not found" is a boolean answer, not an error.
package dockerx

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

type Client struct {
	cli *client.Client
}

// New creates a client from the environment (DOCKER_HOST and friends).
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Ping is the preflight check run before any workflow starts.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		if client.IsErrConnectionFailed(err) {
			return fmt.Errorf("docker daemon is not reachable, make sure Docker is installed and running: %w", err)
		}
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

func (c *Client) NetworkExists(ctx context.Context, name string) (bool, error) {
	if _, err := c.cli.NetworkInspect(ctx, name, dockernetwork.InspectOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect network %q: %w", name, err)
	}
	return true, nil
}

func (c *Client) NetworkCreate(ctx context.Context, name string) error {
	if _, err := c.cli.NetworkCreate(ctx, name, dockernetwork.CreateOptions{Driver: "bridge"}); err != nil {
		return fmt.Errorf("create network %q: %w", name, err)
	}
	return nil
}

func (c *Client) ContainerExists(ctx context.Context, name string) (bool, error) {
	if _, err := c.cli.ContainerInspect(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %q: %w", name, err)
	}
	return true, nil
}

func (c *Client) ContainerRemove(ctx context.Context, name string) error {
	if err := c.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %q: %w", name, err)
	}
	return nil
}

func (c *Client) ContainerStop(ctx context.Context, name string) error {
	if err := c.cli.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		return fmt.Errorf("stop container %q: %w", name, err)
	}
	return nil
}

func (c *Client) ContainerRestart(ctx context.Context, name string) error {
	if err := c.cli.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		return fmt.Errorf("restart container %q: %w", name, err)
	}
	return nil
}

func (c *Client) VolumeExists(ctx context.Context, name string) (bool, error) {
	if _, err := c.cli.VolumeInspect(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect volume %q: %w", name, err)
	}
	return true, nil
}

func (c *Client) VolumeRemove(ctx context.Context, name string) error {
	if err := c.cli.VolumeRemove(ctx, name, true); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove volume %q: %w", name, err)
	}
	return nil
}

// Mount binds a host path into the container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec describes one detached container to create and start.
type RunSpec struct {
	Name    string
	Image   string
	Network string
	Env     []string
	// Ports maps host port to container port, tcp.
	Ports  map[int]int
	Mounts []Mount
	// Volumes maps named volume to container path.
	Volumes map[string]string
}

// ContainerRun creates and starts a detached container, the API
// equivalent of docker run -d.
func (c *Client) ContainerRun(ctx context.Context, spec RunSpec) error {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for host, ctr := range spec.Ports {
		p, err := nat.NewPort("tcp", strconv.Itoa(ctr))
		if err != nil {
			return fmt.Errorf("container port %d: %w", ctr, err)
		}
		exposed[p] = struct{}{}
		bindings[p] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(host)}}
	}

	cc := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		ExposedPorts: exposed,
	}
	hc := &container.HostConfig{
		NetworkMode:  container.NetworkMode(spec.Network),
		PortBindings: bindings,
	}
	for _, m := range spec.Mounts {
		hc.Mounts = append(hc.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	for name, target := range spec.Volumes {
		hc.Mounts = append(hc.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: name,
			Target: target,
		})
	}

	resp, err := c.cli.ContainerCreate(ctx, cc, hc, nil, nil, spec.Name)
	if err != nil {
		return fmt.Errorf("create container %q: %w", spec.Name, err)
	}
	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %q: %w", spec.Name, err)
	}
	return nil
}

// PortUser is a running container publishing a given host port.
type PortUser struct {
	Name string
	Port int
}

// ListPortUsers reports running containers that publish hostPort.
// Parsing is best effort; a container the daemon reports without port
// summaries is simply not a conflict candidate.
func (c *Client) ListPortUsers(ctx context.Context, hostPort int) ([]PortUser, error) {
	list, err := c.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	var users []PortUser
	for _, summary := range list {
		for _, p := range summary.Ports {
			if int(p.PublicPort) != hostPort {
				continue
			}
			users = append(users, PortUser{Name: primaryName(summary.Names), Port: hostPort})
			break
		}
	}
	return users, nil
}

// StatusSummary is the raw material for the status report.
type StatusSummary struct {
	Containers []ContainerLine
	Networks   []NamedDriver
	Volumes    []NamedDriver
}

type ContainerLine struct {
	Name   string
	Image  string
	Status string
	Ports  string
}

type NamedDriver struct {
	Name   string
	Driver string
}

// Status gathers running containers, networks and volumes.
func (c *Client) Status(ctx context.Context) (StatusSummary, error) {
	var out StatusSummary

	containers, err := c.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return out, fmt.Errorf("list containers: %w", err)
	}
	for _, summary := range containers {
		out.Containers = append(out.Containers, ContainerLine{
			Name:   primaryName(summary.Names),
			Image:  summary.Image,
			Status: summary.Status,
			Ports:  formatPorts(summary.Ports),
		})
	}

	networks, err := c.cli.NetworkList(ctx, dockernetwork.ListOptions{})
	if err != nil {
		return out, fmt.Errorf("list networks: %w", err)
	}
	for _, nw := range networks {
		out.Networks = append(out.Networks, NamedDriver{Name: nw.Name, Driver: nw.Driver})
	}

	volumes, err := c.cli.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return out, fmt.Errorf("list volumes: %w", err)
	}
	for _, v := range volumes.Volumes {
		out.Volumes = append(out.Volumes, NamedDriver{Name: v.Name, Driver: v.Driver})
	}
	sort.Slice(out.Volumes, func(i, j int) bool { return out.Volumes[i].Name < out.Volumes[j].Name })

	return out, nil
}

func primaryName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func formatPorts(ports []container.Port) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.PublicPort > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d->%d/%s", p.IP, p.PublicPort, p.PrivatePort, p.Type))
		} else {
			parts = append(parts, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
