package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"xclibtool/internal/trace"
)

// fakeLibtool writes fixed outputs instead of archiving.
type fakeLibtool struct {
	dir     string
	outputs map[string]string
	stdout  string
	stderr  string
	fail    bool
	calls   [][]string
}

func (f *fakeLibtool) Command() []string { return []string{"fake-libtool"} }

func (f *fakeLibtool) Run(_ context.Context, args []string) (*NativeResult, error) {
	f.calls = append(f.calls, append([]string(nil), args...))
	res := &NativeResult{Stdout: []byte(f.stdout), Stderr: []byte(f.stderr)}
	if f.fail {
		res.ExitCode = 1
		return res, errors.New("fake-libtool exited with status 1")
	}
	for name, content := range f.outputs {
		p := name
		if !filepath.IsAbs(p) {
			p = filepath.Join(f.dir, p)
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return res, err
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return res, err
		}
	}
	return res, nil
}

type runnerFixture struct {
	dir    string
	native *fakeLibtool
	cache  *MemoryCache
	mode   CreateLibrary
	inv    Invocation
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "obj", "a.o"), "object a")
	writeTestFile(t, filepath.Join(dir, "obj", "b.o"), "object b")
	writeTestFile(t, filepath.Join(dir, "Foo.LinkFileList"), "obj/a.o\nobj/b.o\n")

	args := []string{"-static", "-o", "libFoo.a", "-filelist", "Foo.LinkFileList", "-dependency_info", "deps.dat"}
	return &runnerFixture{
		dir: dir,
		native: &fakeLibtool{
			dir:     dir,
			outputs: map[string]string{"libFoo.a": "archive v1", "deps.dat": "\x00ld64-609\x00"},
			stderr:  "warning: b.o has no symbols\n",
		},
		cache: NewMemoryCache(),
		mode:  CreateLibrary{Output: "libFoo.a", FileList: "Foo.LinkFileList", DependencyInfo: "deps.dat"},
		inv:   Invocation{Args: args, Passthrough: []string{"-static"}},
	}
}

func (f *runnerFixture) runner(stdout, stderr *bytes.Buffer) *Runner {
	r := NewRunner(f.dir, f.cache, f.native, f.inv)
	r.Stdout = stdout
	r.Stderr = stderr
	return r
}

// TestRunner_MissThenHit verifies the second identical invocation is served
// from cache without running the native tool.
func TestRunner_MissThenHit(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	var stdout, stderr bytes.Buffer

	first, err := f.runner(&stdout, &stderr).Execute(ctx, f.mode)
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if first.FromCache || first.Hash == "" {
		t.Fatalf("first run should be a cached miss: %+v", first)
	}
	if len(f.native.calls) != 1 {
		t.Fatalf("native calls = %d, want 1", len(f.native.calls))
	}
	if f.cache.Len() != 1 {
		t.Fatalf("cache entries = %d, want 1", f.cache.Len())
	}
	// The native tool streams its own output on a miss.
	if stderr.Len() != 0 {
		t.Errorf("runner wrote stderr on a miss: %q", stderr.String())
	}

	if err := os.Remove(filepath.Join(f.dir, "libFoo.a")); err != nil {
		t.Fatalf("removing output: %v", err)
	}

	second, err := f.runner(&stdout, &stderr).Execute(ctx, f.mode)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if !second.FromCache || second.Hash != first.Hash {
		t.Errorf("second run not served from cache: %+v", second)
	}
	if second.ArtifactsRestored != 1 {
		t.Errorf("ArtifactsRestored = %d, want 1", second.ArtifactsRestored)
	}
	if len(f.native.calls) != 1 {
		t.Errorf("native tool ran on a hit")
	}
	if stderr.String() != f.native.stderr {
		t.Errorf("replayed stderr = %q", stderr.String())
	}

	got, _ := os.ReadFile(filepath.Join(f.dir, "libFoo.a"))
	if string(got) != "archive v1" {
		t.Errorf("restored output = %q", got)
	}
}

// TestRunner_PassesRawArgs verifies the native tool receives the argument
// vector unchanged.
func TestRunner_PassesRawArgs(t *testing.T) {
	f := newRunnerFixture(t)
	var out bytes.Buffer

	if _, err := f.runner(&out, &out).Execute(context.Background(), f.mode); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	got := f.native.calls[0]
	if len(got) != len(f.inv.Args) {
		t.Fatalf("native args = %v", got)
	}
	for i := range got {
		if got[i] != f.inv.Args[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], f.inv.Args[i])
		}
	}
}

// TestRunner_ContentChangeMisses verifies editing an object invalidates the
// entry.
func TestRunner_ContentChangeMisses(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	var out bytes.Buffer

	first, err := f.runner(&out, &out).Execute(ctx, f.mode)
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	writeTestFile(t, filepath.Join(f.dir, "obj", "b.o"), "object b v2")
	second, err := f.runner(&out, &out).Execute(ctx, f.mode)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if second.FromCache || second.Hash == first.Hash {
		t.Errorf("content change was served from cache: %+v", second)
	}
	if len(f.native.calls) != 2 {
		t.Errorf("native calls = %d, want 2", len(f.native.calls))
	}
}

// TestRunner_FailureNotCached verifies a failed native run is reported and
// retried on the next invocation.
func TestRunner_FailureNotCached(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	f.native.fail = true
	var out bytes.Buffer

	for i := 0; i < 2; i++ {
		if _, err := f.runner(&out, &out).Execute(ctx, f.mode); err == nil {
			t.Fatalf("run %d: expected error from failing tool", i)
		}
	}
	if f.cache.Len() != 0 {
		t.Errorf("failure was cached")
	}
	if len(f.native.calls) != 2 {
		t.Errorf("native calls = %d, want 2", len(f.native.calls))
	}
}

// TestRunner_NilCacheAlwaysRunsNative verifies a disabled cache.
func TestRunner_NilCacheAlwaysRunsNative(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	var out bytes.Buffer
	rec := trace.NewRecorder()

	r := NewRunner(f.dir, nil, f.native, f.inv)
	r.Stdout, r.Stderr, r.Trace = &out, &out, rec
	for i := 0; i < 2; i++ {
		outcome, err := r.Execute(ctx, f.mode)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		if outcome.FromCache || outcome.Hash != "" {
			t.Errorf("unexpected outcome with cache disabled: %+v", outcome)
		}
	}
	if len(f.native.calls) != 2 {
		t.Errorf("native calls = %d, want 2", len(f.native.calls))
	}

	events := rec.Snapshot()
	if len(events) == 0 || events[0].Kind != trace.EventCacheBypassed || events[0].Reason != "Disabled" {
		t.Errorf("unexpected trace: %+v", events)
	}
}

// TestRunner_UnreadableInputsBypassCache verifies a missing object is left
// for the native tool to report.
func TestRunner_UnreadableInputsBypassCache(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	writeTestFile(t, filepath.Join(f.dir, "Foo.LinkFileList"), "obj/a.o\nobj/missing.o\n")
	var out bytes.Buffer

	outcome, err := f.runner(&out, &out).Execute(ctx, f.mode)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.Hash != "" || f.cache.Len() != 0 {
		t.Errorf("unreadable inputs were cached: %+v", outcome)
	}
	if len(f.native.calls) != 1 {
		t.Errorf("native calls = %d, want 1", len(f.native.calls))
	}
}

// TestRunner_UniversalBinary verifies the merge mode caches its single
// output.
func TestRunner_UniversalBinary(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	writeTestFile(t, filepath.Join(f.dir, "arm64", "libFoo.a"), "arm")
	writeTestFile(t, filepath.Join(f.dir, "x86_64", "libFoo.a"), "x86")
	f.native.outputs = map[string]string{"fat/libFoo.a": "fat archive"}

	mode := CreateUniversalBinary{Output: "fat/libFoo.a", Inputs: []string{"arm64/libFoo.a", "x86_64/libFoo.a"}}
	f.inv = Invocation{Args: []string{"-o", "fat/libFoo.a", "arm64/libFoo.a", "x86_64/libFoo.a"}}
	var out bytes.Buffer

	if _, err := f.runner(&out, &out).Execute(ctx, mode); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	entry, _ := f.cache.Get(ctx, mustHash(t, f, mode))
	if entry == nil || len(entry.Artifacts) != 1 || entry.Artifacts[0].Role != RoleOutput {
		t.Fatalf("unexpected cache entry: %+v", entry)
	}

	second, err := f.runner(&out, &out).Execute(ctx, mode)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if !second.FromCache || second.ArtifactsRestored != 0 {
		t.Errorf("expected hit with nothing to rewrite: %+v", second)
	}
}

func mustHash(t *testing.T, f *runnerFixture, mode Mode) TaskHash {
	t.Helper()
	task, err := TaskForMode(mode)
	if err != nil {
		t.Fatalf("TaskForMode: %v", err)
	}
	inputs, err := NewInputResolver(f.dir).Resolve(task)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return NewTaskHasher().ComputeHash(HashInput{
		Kind:   task.Kind,
		Tool:   f.native.Command(),
		Flags:  f.inv.Passthrough,
		Output: task.OutputPath(RoleOutput),
		Inputs: inputs,
	})
}

// failingPutCache refuses to store.
type failingPutCache struct{ *MemoryCache }

func (failingPutCache) Put(context.Context, *CacheEntry) error { return errors.New("disk full") }

// TestRunner_PutFailureDoesNotFailBuild verifies the build result stands
// when the cache cannot store it.
func TestRunner_PutFailureDoesNotFailBuild(t *testing.T) {
	f := newRunnerFixture(t)
	var out bytes.Buffer

	r := NewRunner(f.dir, failingPutCache{NewMemoryCache()}, f.native, f.inv)
	r.Stdout, r.Stderr = &out, &out
	outcome, err := r.Execute(context.Background(), f.mode)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.FromCache {
		t.Errorf("unexpected hit: %+v", outcome)
	}
}

// TestRunner_TraceRecordsMissAndStore verifies the decision trace of a
// miss followed by a hit.
func TestRunner_TraceRecordsMissAndStore(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	var out bytes.Buffer

	miss := trace.NewRecorder()
	r := f.runner(&out, &out)
	r.Trace = miss
	if _, err := r.Execute(ctx, f.mode); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	assertKinds(t, miss.Trace("create-library").Events,
		trace.EventCacheMiss, trace.EventNativeInvoked, trace.EventArtifactsStored)

	hit := trace.NewRecorder()
	r = f.runner(&out, &out)
	r.Trace = hit
	if _, err := r.Execute(ctx, f.mode); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	assertKinds(t, hit.Trace("create-library").Events,
		trace.EventCacheHit, trace.EventArtifactsRestored)
}

func assertKinds(t *testing.T, events []trace.TraceEvent, want ...trace.TraceEventKind) {
	t.Helper()
	if len(events) != len(want) {
		t.Fatalf("events = %+v, want kinds %v", events, want)
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Errorf("events[%d].Kind = %s, want %s", i, events[i].Kind, k)
		}
	}
}

// TestRunner_RejectsNilMode verifies argument validation.
func TestRunner_RejectsNilMode(t *testing.T) {
	f := newRunnerFixture(t)
	if _, err := f.runner(nil, nil).Execute(context.Background(), nil); err == nil {
		t.Error("expected error for nil mode")
	}
}

// unreachableCache fails every lookup but stores normally.
type unreachableCache struct{ *MemoryCache }

func (unreachableCache) Has(context.Context, TaskHash) (bool, error) {
	return false, errors.New("connection refused")
}

// TestRunner_LookupFailureRunsNative verifies a cache that cannot answer
// costs a rebuild, not the build.
func TestRunner_LookupFailureRunsNative(t *testing.T) {
	f := newRunnerFixture(t)
	var out bytes.Buffer
	rec := trace.NewRecorder()

	r := NewRunner(f.dir, unreachableCache{NewMemoryCache()}, f.native, f.inv)
	r.Stdout, r.Stderr, r.Trace = &out, &out, rec
	outcome, err := r.Execute(context.Background(), f.mode)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.FromCache || outcome.Hash == "" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
	if len(f.native.calls) != 1 {
		t.Errorf("native calls = %d, want 1", len(f.native.calls))
	}

	events := rec.Snapshot()
	if len(events) == 0 || events[0].Kind != trace.EventCacheBypassed || events[0].Reason != "LookupFailed" {
		t.Errorf("unexpected trace: %+v", events)
	}
}

// TestRunner_DamagedEntryIsRebuilt verifies an entry whose blob is gone is
// rebuilt and replaced instead of failing the build.
func TestRunner_DamagedEntryIsRebuilt(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t)
	cacheDir := t.TempDir()
	var out bytes.Buffer
	run := func() *Outcome {
		t.Helper()
		r := NewRunner(f.dir, NewFileCache(cacheDir), f.native, f.inv)
		r.Stdout, r.Stderr = &out, &out
		outcome, err := r.Execute(ctx, f.mode)
		if err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		return outcome
	}

	first := run()
	hash := string(first.Hash)
	blob := filepath.Join(cacheDir, hash[:2], hash, "artifacts", "output.blob")
	if err := os.Remove(blob); err != nil {
		t.Fatalf("removing blob: %v", err)
	}

	if second := run(); second.FromCache {
		t.Errorf("damaged entry served from cache: %+v", second)
	}
	if len(f.native.calls) != 2 {
		t.Errorf("native calls = %d, want 2", len(f.native.calls))
	}
	if _, err := os.Stat(blob); err != nil {
		t.Errorf("entry not repaired: %v", err)
	}
	if third := run(); !third.FromCache {
		t.Errorf("repaired entry missed: %+v", third)
	}
}

// TestRunner_HarvestFailureKeepsBuild verifies a tool that succeeds without
// writing a declared output is reported as built but not cached.
func TestRunner_HarvestFailureKeepsBuild(t *testing.T) {
	f := newRunnerFixture(t)
	f.native.outputs = map[string]string{"libFoo.a": "archive v1"}
	var out bytes.Buffer

	outcome, err := f.runner(&out, &out).Execute(context.Background(), f.mode)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outcome.FromCache {
		t.Errorf("unexpected hit: %+v", outcome)
	}
	if f.cache.Len() != 0 {
		t.Errorf("incomplete result was cached")
	}
}

// TestRunner_UnparseableDependencyInfoNotCached verifies dependency info
// that cannot be relocated is never stored.
func TestRunner_UnparseableDependencyInfoNotCached(t *testing.T) {
	f := newRunnerFixture(t)
	f.native.outputs["deps.dat"] = "\x10no terminator"
	var out bytes.Buffer

	if _, err := f.runner(&out, &out).Execute(context.Background(), f.mode); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if f.cache.Len() != 0 {
		t.Errorf("unrelocatable dependency info was cached")
	}
}

// TestRunner_DependencyInfoFollowsCheckout verifies a hit restored into a
// second checkout names that checkout's files, not the first one's.
func TestRunner_DependencyInfoFollowsCheckout(t *testing.T) {
	ctx := context.Background()
	first := newRunnerFixture(t)
	second := newRunnerFixture(t)
	second.cache = first.cache

	depsFor := func(dir string) []depInfoRecord {
		return []depInfoRecord{
			{Op: depInfoVersion, Value: "ld64-609"},
			{Op: depInfoInput, Value: filepath.Join(dir, "obj", "a.o")},
			{Op: depInfoInput, Value: "obj/b.o"},
			{Op: depInfoNotFound, Value: "/usr/lib/libmissing.a"},
			{Op: depInfoOutput, Value: filepath.Join(dir, "libFoo.a")},
		}
	}
	first.native.outputs["deps.dat"] = string(encodeDependencyInfo(depsFor(first.dir)))
	var out bytes.Buffer

	if _, err := first.runner(&out, &out).Execute(ctx, first.mode); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	outcome, err := second.runner(&out, &out).Execute(ctx, second.mode)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if !outcome.FromCache || len(second.native.calls) != 0 {
		t.Fatalf("second checkout did not hit: %+v", outcome)
	}

	data, err := os.ReadFile(filepath.Join(second.dir, "deps.dat"))
	if err != nil {
		t.Fatalf("reading dependency info: %v", err)
	}
	got, err := parseDependencyInfo(data)
	if err != nil {
		t.Fatalf("restored dependency info unparseable: %v", err)
	}
	if want := depsFor(second.dir); !reflect.DeepEqual(got, want) {
		t.Errorf("dependency info = %+v, want %+v", got, want)
	}
}
