//go:build !linux

package source

import (
	"context"
	"errors"

	"firestige.xyz/flat/internal/core"
)

var errNoKernelRing = errors.New("kernel ring source requires linux")

// KernelRing is unavailable off linux.
type KernelRing struct{}

// OpenKernelRing always fails off linux.
func OpenKernelRing(KernelRingConfig) (*KernelRing, error) { return nil, errNoKernelRing }

func (*KernelRing) Read(context.Context) (core.FlowRecord, error) {
	return core.FlowRecord{}, errNoKernelRing
}
func (*KernelRing) Stats() KernelRingStats { return KernelRingStats{} }
func (*KernelRing) Close() error           { return nil }
