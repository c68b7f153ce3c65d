package dockerx

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// Exec runs a command inside the named container and returns its
// stdout. Stderr is captured separately for error reporting; a non-zero
// exit code is an error.
func (c *Client) Exec(ctx context.Context, name string, cmd ...string) (string, error) {
	resp, err := c.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("create exec in %q: %w", name, err)
	}

	attach, err := c.cli.ContainerExecAttach(ctx, resp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("attach exec in %q: %w", name, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return "", fmt.Errorf("read exec output from %q: %w", name, err)
	}

	info, err := c.cli.ContainerExecInspect(ctx, resp.ID)
	if err != nil {
		return "", fmt.Errorf("inspect exec in %q: %w", name, err)
	}
	if info.ExitCode != 0 {
		return "", fmt.Errorf("exec in %q exited %d: %s", name, info.ExitCode, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}
