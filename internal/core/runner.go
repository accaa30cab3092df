// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"xclibtool/internal/trace"
)

// Runner is the cache-aware build executor.
//
// The execution flow:
//  1. Translate the Mode into a Task
//  2. Resolve inputs and compute the cache key
//  3. Check cache; on a hit restore artifacts and replay output
//  4. On a miss run the native tool, harvest outputs, store the entry
//
// A failed native run is never stored: the next build must try again.
type Runner struct {
	// WorkingDir resolves relative paths in the invocation.
	WorkingDir string

	// Cache stores and retrieves results. Nil disables caching; every call
	// then goes straight to the native tool.
	Cache Cache

	// Native runs the real libtool.
	Native NativeTool

	// Invocation is the raw command line the Mode was classified from.
	Invocation Invocation

	Resolver  *InputResolver
	Hasher    *TaskHasher
	Harvester *Harvester
	Replayer  *Replayer

	// Stdout and Stderr receive replayed output on a cache hit.
	Stdout io.Writer
	Stderr io.Writer

	Logger *zap.Logger
	Trace  trace.Sink
}

// NewRunner creates a Runner with the given working directory, cache and
// native tool.
func NewRunner(workingDir string, cache Cache, native NativeTool, inv Invocation) *Runner {
	return &Runner{
		WorkingDir: workingDir,
		Cache:      cache,
		Native:     native,
		Invocation: inv,
		Resolver:   NewInputResolver(workingDir),
		Hasher:     NewTaskHasher(),
		Harvester:  NewHarvester(workingDir),
		Replayer:   NewReplayer(workingDir),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Logger:     zap.NewNop(),
		Trace:      trace.NopSink{},
	}
}

// Outcome reports which path the executor took.
type Outcome struct {
	// Hash is the cache key; empty when caching was bypassed.
	Hash TaskHash

	// FromCache indicates the artifacts were restored instead of built.
	FromCache bool

	// ArtifactsRestored is the number of files rewritten on a hit.
	ArtifactsRestored int
}

// Execute performs mode, from cache when possible.
func (r *Runner) Execute(ctx context.Context, mode Mode) (*Outcome, error) {
	task, err := TaskForMode(mode)
	if err != nil {
		return nil, err
	}
	if r.Native == nil {
		return nil, fmt.Errorf("native tool is nil")
	}
	logger := r.logger().With(zap.String("mode", string(task.Kind)))

	if r.Cache == nil {
		logger.Debug("cache disabled, running native tool")
		trace.SafeRecord(r.Trace, trace.TraceEvent{Kind: trace.EventCacheBypassed, Reason: "Disabled"})
		return r.runNative(ctx, task, "", logger)
	}

	inputs, err := r.Resolver.Resolve(task)
	if err != nil {
		// libtool reports a missing object far better than a cache key would.
		logger.Warn("inputs unreadable, bypassing cache", zap.Error(err))
		trace.SafeRecord(r.Trace, trace.TraceEvent{Kind: trace.EventCacheBypassed, Reason: "InputsUnreadable"})
		return r.runNative(ctx, task, "", logger)
	}

	hash := r.Hasher.ComputeHash(HashInput{
		Kind:   task.Kind,
		Tool:   r.Native.Command(),
		Flags:  r.Invocation.Passthrough,
		Output: task.OutputPath(RoleOutput),
		Inputs: inputs,
	})
	logger = logger.With(zap.String("hash", hash.String()))

	outcome, hit, err := r.replayFromCache(ctx, task, hash, logger)
	if hit {
		return outcome, err
	}
	if err != nil {
		// An unreachable or damaged cache costs a rebuild, never the build.
		logger.Warn("cache lookup failed, running native tool", zap.Error(err))
		trace.SafeRecord(r.Trace, trace.TraceEvent{Kind: trace.EventCacheBypassed, Key: hash.String(), Reason: "LookupFailed"})
		return r.runNative(ctx, task, hash, logger)
	}

	trace.SafeRecord(r.Trace, trace.TraceEvent{Kind: trace.EventCacheMiss, Key: hash.String()})
	logger.Info("cache miss", zap.Int("inputs", len(inputs.Inputs)))
	return r.runNative(ctx, task, hash, logger)
}

// replayFromCache restores a cached result. hit is false when no usable
// entry exists or it could not be restored; the caller then builds natively.
// Once hit is true the artifacts are in place and an error only concerns
// replaying the captured output.
func (r *Runner) replayFromCache(ctx context.Context, task *Task, hash TaskHash, logger *zap.Logger) (*Outcome, bool, error) {
	exists, err := r.Cache.Has(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("checking cache: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	entry, err := r.Cache.Get(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("retrieving cache entry: %w", err)
	}
	if entry == nil {
		logger.Warn("cache entry disappeared between lookup and fetch")
		return nil, false, nil
	}

	replayed, err := r.Replayer.Replay(entry, task)
	if err != nil {
		return nil, false, fmt.Errorf("replaying cached result: %w", err)
	}
	trace.SafeRecord(r.Trace, trace.TraceEvent{Kind: trace.EventCacheHit, Key: hash.String()})
	trace.SafeRecord(r.Trace, trace.TraceEvent{
		Kind:      trace.EventArtifactsRestored,
		Key:       hash.String(),
		Artifacts: roles(task.Outputs),
	})

	outcome := &Outcome{
		Hash:              hash,
		FromCache:         true,
		ArtifactsRestored: replayed.ArtifactsRestored,
	}
	if err := r.writeReplayedOutput(replayed); err != nil {
		return outcome, true, err
	}

	logger.Info("cache hit", zap.Int("restored", replayed.ArtifactsRestored))
	return outcome, true, nil
}

func (r *Runner) writeReplayedOutput(res *ReplayResult) error {
	if r.Stdout != nil && len(res.Stdout) > 0 {
		if _, err := r.Stdout.Write(res.Stdout); err != nil {
			return fmt.Errorf("replaying stdout: %w", err)
		}
	}
	if r.Stderr != nil && len(res.Stderr) > 0 {
		if _, err := r.Stderr.Write(res.Stderr); err != nil {
			return fmt.Errorf("replaying stderr: %w", err)
		}
	}
	return nil
}

// runNative invokes the real tool. When hash is non-empty a successful run is
// harvested and stored under it.
func (r *Runner) runNative(ctx context.Context, task *Task, hash TaskHash, logger *zap.Logger) (*Outcome, error) {
	trace.SafeRecord(r.Trace, trace.TraceEvent{Kind: trace.EventNativeInvoked, Key: hash.String()})

	res, err := r.Native.Run(ctx, r.Invocation.Args)
	if err != nil {
		trace.SafeRecord(r.Trace, trace.TraceEvent{Kind: trace.EventNativeFailed, Key: hash.String()})
		return nil, fmt.Errorf("native libtool: %w", err)
	}

	outcome := &Outcome{Hash: hash}
	if hash == "" {
		return outcome, nil
	}

	artifacts, err := r.Harvester.Harvest(task)
	if err != nil {
		logger.Warn("failed to harvest artifacts, not caching", zap.Error(err))
		return outcome, nil
	}
	if err := relocateForStore(artifacts, task, r.WorkingDir); err != nil {
		logger.Warn("dependency info is not relocatable, not caching", zap.Error(err))
		return outcome, nil
	}

	entry := &CacheEntry{
		Hash:   hash,
		Stdout: res.Stdout,
		Stderr: res.Stderr,
		Artifacts: lo.Map(artifacts.Artifacts, func(a Artifact, _ int) CachedArtifact {
			return CachedArtifact{Role: a.Role, Content: a.Content}
		}),
	}

	// The build already succeeded; a store failure only costs a future hit.
	if err := r.Cache.Put(ctx, entry); err != nil {
		logger.Warn("failed to store cache entry", zap.Error(err))
		return outcome, nil
	}
	trace.SafeRecord(r.Trace, trace.TraceEvent{
		Kind:      trace.EventArtifactsStored,
		Key:       hash.String(),
		Artifacts: roles(task.Outputs),
	})
	logger.Info("stored cache entry", zap.Int("artifacts", len(entry.Artifacts)))
	return outcome, nil
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func roles(outputs []OutputSpec) []string {
	return lo.Map(outputs, func(o OutputSpec, _ int) string { return string(o.Role) })
}
