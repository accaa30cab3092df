package cli

import (
	"context"

	"go.uber.org/zap"

	"xclibtool/internal/config"
	"xclibtool/internal/core"
	"xclibtool/internal/trace"
)

// NewExecutorFactory wires the cache-aware runner described by cfg.
//
// Caching: a local FileCache, layered over a RemoteCache when one is
// configured. With caching disabled the runner has no cache and always runs
// the native tool.
func NewExecutorFactory(cfg *config.Config, workDir string, logger *zap.Logger) ExecutorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(inv core.Invocation) (BuildExecutor, error) {
		cache, err := cacheFor(cfg, logger)
		if err != nil {
			return nil, err
		}

		native := core.NewLibtoolCommand(cfg.NativeTool, workDir)
		runner := core.NewRunner(workDir, cache, native, inv)
		runner.Logger = logger

		if cfg.TracePath == "" {
			return runner, nil
		}
		rec := trace.NewRecorder()
		runner.Trace = rec
		return &tracingExecutor{next: runner, recorder: rec, path: cfg.TracePath, logger: logger}, nil
	}
}

func cacheFor(cfg *config.Config, logger *zap.Logger) (core.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	local := core.NewFileCache(cfg.CacheDir)
	if !cfg.Remote.Configured() {
		return local, nil
	}

	remote, err := core.NewRemoteCache(core.RemoteCacheParam{
		Endpoint:  cfg.Remote.Endpoint,
		AccessKey: cfg.Remote.AccessKey,
		SecretKey: cfg.Remote.SecretKey,
		UseSSL:    cfg.Remote.UseSSL,
		Region:    cfg.Remote.Region,
		Bucket:    cfg.Remote.Bucket,
		Root:      cfg.Remote.Root,
	})
	if err != nil {
		return nil, err
	}
	return core.NewLayeredCache(local, remote, cfg.Remote.Upload, logger), nil
}

// tracingExecutor writes the decision trace after every execution,
// successful or not. A trace write failure never fails the build.
type tracingExecutor struct {
	next     BuildExecutor
	recorder *trace.Recorder
	path     string
	logger   *zap.Logger
}

func (t *tracingExecutor) Execute(ctx context.Context, mode core.Mode) (*core.Outcome, error) {
	outcome, err := t.next.Execute(ctx, mode)
	tr := t.recorder.Trace(string(mode.Kind()))
	if werr := tr.WriteFile(t.path); werr != nil {
		t.logger.Warn("failed to write trace", zap.String("path", t.path), zap.Error(werr))
		return outcome, err
	}
	if h, herr := tr.Hash(); herr == nil {
		t.logger.Debug("wrote trace", zap.String("path", t.path), zap.String("trace_hash", h))
	}
	return outcome, err
}
