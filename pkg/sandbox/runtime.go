package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Config bounds a guest instance the same way SandboxConfig does for the
// governance pack runner: a memory ceiling and nothing else granted by
// default. Guests never get filesystem or network access.
type Config struct {
	MemoryLimitBytes int64
}

// Runtime hosts one guest module against the "yak" host function
// namespace. Deny-by-default: no filesystem mounts, no network, no env
// vars are wired into the module config.
type Runtime struct {
	runtime wazero.Runtime
	host    *HostModule
}

// New creates a Runtime and registers the yak host module on it.
// reportProvider supplies attestation report bytes for a handshake nonce
// when the guest does not carry its own.
func New(ctx context.Context, cfg Config, reportProvider func(nonce []byte) ([]byte, error)) (*Runtime, error) {
	rConfig := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitBytes > 0 {
		pages := uint32(cfg.MemoryLimitBytes / 65536)
		if pages == 0 {
			pages = 1
		}
		rConfig = rConfig.WithMemoryLimitPages(pages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, rConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate wasi: %w", err)
	}

	host := NewHostModule(reportProvider)
	if err := host.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiate host module: %w", err)
	}

	return &Runtime{runtime: r, host: host}, nil
}

// RunGuest compiles and instantiates a guest module, driving it via
// WithStartFunctions("_start") the way a WASI command module expects. The
// guest calls back into the yak host functions to drive a Flight session;
// this call returns once the guest's _start returns.
func (r *Runtime) RunGuest(ctx context.Context, wasmBytes []byte, cfg wazero.ModuleConfig) error {
	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("sandbox: compile guest module: %w", err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	mod, err := r.runtime.InstantiateModule(ctx, compiled, cfg.WithStartFunctions("_start"))
	if err != nil {
		return fmt.Errorf("sandbox: instantiate guest module: %w", err)
	}
	return mod.Close(ctx)
}

// Close releases the wazero runtime and every resource table it owns.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
