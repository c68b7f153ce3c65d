// Package status reports what is currently running on the Docker host:
// containers with their published ports, networks and volumes.
package status

import (
	"context"
	"fmt"

	"github.com/tugasky/jira-installer/internal/dispatch"
	"github.com/tugasky/jira-installer/internal/dockerx"
)

// Provider is the slice of the Docker client the report needs.
type Provider interface {
	Ping(ctx context.Context) error
	Status(ctx context.Context) (dockerx.StatusSummary, error)
}

// Run writes the report to the dispatcher log. Blocks until done; call
// from a worker goroutine.
func Run(ctx context.Context, q *dispatch.Queue, p Provider) {
	if err := p.Ping(ctx); err != nil {
		q.Error(err.Error())
		return
	}
	summary, err := p.Status(ctx)
	if err != nil {
		q.Error(fmt.Sprintf("Docker status failed: %v", err))
		return
	}

	q.Log("=== Docker Status ===")

	q.Log("-- Running Containers --")
	if len(summary.Containers) == 0 {
		q.Log("None")
	}
	for _, c := range summary.Containers {
		q.Log(fmt.Sprintf("%s\t%s\t%s\t%s", c.Name, c.Image, c.Status, c.Ports))
	}

	q.Log("-- Networks --")
	for _, n := range summary.Networks {
		q.Log(fmt.Sprintf("%s\t%s", n.Name, n.Driver))
	}

	q.Log("-- Volumes --")
	for _, v := range summary.Volumes {
		q.Log(fmt.Sprintf("%s\t%s", v.Name, v.Driver))
	}

	q.Log("=======================")
}
