package dockerx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/jsonmessage"
)

func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	if _, err := c.cli.ImageInspect(ctx, ref); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect image %q: %w", ref, err)
	}
	return true, nil
}

// ImagePull pulls ref and reports coarse progress percentages through
// onProgress (may be nil). The percentage only ever moves forward.
func (c *Client) ImagePull(ctx context.Context, ref string, onProgress func(pct int)) error {
	rc, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", ref, err)
	}
	defer rc.Close()

	mapper := NewPullMapper()
	dec := json.NewDecoder(rc)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read pull stream for %q: %w", ref, err)
		}
		if msg.Error != nil {
			return fmt.Errorf("pull image %q: %s", ref, msg.Error.Message)
		}
		if pct, ok := mapper.Observe(msg); ok && onProgress != nil {
			onProgress(pct)
		}
	}
	if onProgress != nil {
		onProgress(100)
	}
	return nil
}

type layerState struct {
	current int64
	total   int64
}

// PullMapper turns the daemon's per-layer pull stream into a single
// monotonic percentage: download weighs half, extraction the other
// half. ok=false means "no update".
type PullMapper struct {
	last        int
	downloading map[string]layerState
	extracting  map[string]layerState
}

func NewPullMapper() *PullMapper {
	return &PullMapper{
		downloading: make(map[string]layerState),
		extracting:  make(map[string]layerState),
	}
}

func (m *PullMapper) Observe(msg jsonmessage.JSONMessage) (int, bool) {
	if msg.ID == "" || msg.Progress == nil {
		return 0, false
	}
	st := layerState{current: msg.Progress.Current, total: msg.Progress.Total}
	switch msg.Status {
	case "Downloading":
		m.downloading[msg.ID] = st
	case "Extracting":
		// A layer being extracted has fully downloaded.
		if prev, ok := m.downloading[msg.ID]; ok && prev.total > 0 {
			prev.current = prev.total
			m.downloading[msg.ID] = prev
		}
		m.extracting[msg.ID] = st
	default:
		return 0, false
	}
	return m.advanceTo(phasePct(m.downloading)/2 + phasePct(m.extracting)/2)
}

func (m *PullMapper) advanceTo(target int) (int, bool) {
	if target > 100 {
		target = 100
	}
	if target <= m.last {
		return 0, false
	}
	m.last = target
	return m.last, true
}

func phasePct(layers map[string]layerState) int {
	var current, total int64
	for _, st := range layers {
		if st.total <= 0 {
			continue
		}
		current += st.current
		total += st.total
	}
	if total == 0 {
		return 0
	}
	return int(current * 100 / total)
}
