// Package accel checks that a compute accelerator is available before any
// model is loaded. Inference without an accelerator is not supported, so a
// failed check is fatal for the process.
package accel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
)

// ErrNoAccelerator is returned by [Guard.Validate] when the probe reports no
// usable device.
var ErrNoAccelerator = errors.New("accel: no accelerator available; CPU-only inference is not supported")

// ErrInvalidDevice is returned when the requested device index is not
// reported by the probe.
var ErrInvalidDevice = errors.New("accel: invalid device index")

// Device describes a single accelerator.
type Device struct {
	Index       int
	Name        string
	TotalMemory uint64 // bytes
}

// Report is the result of a probe.
type Report struct {
	Devices []Device

	// Current is the device the runtime would use by default, or -1 when the
	// probe has no notion of a current device.
	Current int
}

// Prober enumerates the accelerators visible to the inference runtime.
type Prober interface {
	Probe(ctx context.Context) (Report, error)
}

// ProberFunc adapts a function to the [Prober] interface.
type ProberFunc func(ctx context.Context) (Report, error)

// Probe calls f(ctx).
func (f ProberFunc) Probe(ctx context.Context) (Report, error) { return f(ctx) }

// Info describes the device selected for inference.
type Info struct {
	// Count is the number of accelerators found.
	Count int
	Device
}

// String renders the one-line summary printed at startup.
func (i Info) String() string {
	return fmt.Sprintf("Found %d GPUs available. Using GPU %d (%s) with %s total memory.",
		i.Count, i.Index, i.Name, humanize.Bytes(i.TotalMemory))
}

// Guard validates accelerator availability.
type Guard struct {
	prober Prober
	device int
}

// Option is a functional option for configuring a [Guard].
type Option func(*Guard)

// WithDevice selects the device by index. A negative index (the default)
// selects the probe's current device, or device 0 when the probe has none.
func WithDevice(index int) Option {
	return func(g *Guard) {
		g.device = index
	}
}

// NewGuard creates a Guard backed by p.
func NewGuard(p Prober, opts ...Option) *Guard {
	g := &Guard{prober: p, device: -1}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Validate probes for accelerators and returns the selected device. It fails
// with [ErrNoAccelerator] when none is found and [ErrInvalidDevice] when the
// requested index does not exist.
func (g *Guard) Validate(ctx context.Context) (Info, error) {
	rep, err := g.prober.Probe(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("accel: probe: %w", err)
	}
	if len(rep.Devices) == 0 {
		return Info{}, ErrNoAccelerator
	}

	want := g.device
	if want < 0 {
		want = max(rep.Current, 0)
	}
	for _, d := range rep.Devices {
		if d.Index == want {
			info := Info{Count: len(rep.Devices), Device: d}
			slog.Info("accelerator selected",
				"count", info.Count,
				"index", d.Index,
				"name", d.Name,
				"total_memory", humanize.Bytes(d.TotalMemory),
			)
			return info, nil
		}
	}
	return Info{}, fmt.Errorf("%w: %d (found %d devices)", ErrInvalidDevice, want, len(rep.Devices))
}
