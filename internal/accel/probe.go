package accel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/voxclone/pkg/provider/worker"
)

// DeviceLister is implemented by clients of an inference runtime that can
// enumerate their accelerators (see [worker.Client]).
type DeviceLister interface {
	Devices(ctx context.Context) (worker.DeviceList, error)
}

// WorkerProber asks the inference worker for its devices. The worker owns the
// accelerator, so its view is authoritative.
func WorkerProber(l DeviceLister) Prober {
	return ProberFunc(func(ctx context.Context) (Report, error) {
		list, err := l.Devices(ctx)
		if err != nil {
			return Report{}, err
		}
		rep := Report{Current: list.Current, Devices: make([]Device, len(list.Devices))}
		for i, d := range list.Devices {
			rep.Devices[i] = Device{Index: d.Index, Name: d.Name, TotalMemory: d.TotalMemory}
		}
		return rep, nil
	})
}

// NvidiaSMI probes by running nvidia-smi. A missing binary is reported as
// zero devices rather than an error.
type NvidiaSMI struct {
	// Path is the nvidia-smi executable. Empty means "nvidia-smi" from $PATH.
	Path string
}

// Probe implements [Prober].
func (n NvidiaSMI) Probe(ctx context.Context) (Report, error) {
	bin := n.Path
	if bin == "" {
		bin = "nvidia-smi"
	}
	cmd := exec.CommandContext(ctx, bin,
		"--query-gpu=index,name,memory.total",
		"--format=csv,noheader,nounits",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
			return Report{Current: -1}, nil
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Report{}, fmt.Errorf("nvidia-smi: %w: %s", err, msg)
		}
		return Report{}, fmt.Errorf("nvidia-smi: %w", err)
	}
	devs, err := parseNvidiaSMI(stdout.String())
	if err != nil {
		return Report{}, err
	}
	return Report{Devices: devs, Current: -1}, nil
}

// parseNvidiaSMI parses "index, name, memory.total" CSV rows with memory in MiB.
func parseNvidiaSMI(out string) ([]Device, error) {
	var devs []Device
	for line := range strings.Lines(out) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			return nil, fmt.Errorf("nvidia-smi: malformed line %q", line)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("nvidia-smi: bad index in %q: %w", line, err)
		}
		// Device names may contain commas; memory is always the last field.
		memField := strings.TrimSpace(fields[len(fields)-1])
		name := strings.TrimSpace(strings.Join(fields[1:len(fields)-1], ","))
		mib, err := strconv.ParseUint(memField, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("nvidia-smi: bad memory in %q: %w", line, err)
		}
		devs = append(devs, Device{Index: idx, Name: name, TotalMemory: mib << 20})
	}
	return devs, nil
}
