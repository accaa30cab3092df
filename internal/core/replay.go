// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReplayResult contains the results of replaying a cached libtool run.
type ReplayResult struct {
	Stdout []byte
	Stderr []byte

	// Hash is the TaskHash that was replayed.
	Hash TaskHash

	// ArtifactsRestored is the number of files actually rewritten.
	ArtifactsRestored int
}

// Replayer restores cached artifacts into the paths the current invocation
// asked for.
type Replayer struct {
	// WorkingDir resolves relative output paths.
	WorkingDir string
}

// NewReplayer creates a new Replayer with the given working directory.
func NewReplayer(workingDir string) *Replayer {
	return &Replayer{WorkingDir: workingDir}
}

// Replay restores every artifact of entry to the task's path for its role
// and returns the captured output exactly as stored.
func (r *Replayer) Replay(entry *CacheEntry, task *Task) (*ReplayResult, error) {
	if entry == nil {
		return nil, fmt.Errorf("cache entry is nil")
	}

	restored, err := r.RestoreArtifacts(entry, task)
	if err != nil {
		return nil, err
	}

	return &ReplayResult{
		Stdout:            entry.Stdout,
		Stderr:            entry.Stderr,
		Hash:              entry.Hash,
		ArtifactsRestored: restored,
	}, nil
}

// RestoreArtifacts ensures the task's outputs are present with the cached
// content.
//
// A file whose sha256 already matches is left untouched so its mtime does not
// trigger downstream relinks. Anything else is replaced atomically. Every
// role the task declares must be present in the entry. Dependency info is
// rewritten to name the task's own inputs and output.
func (r *Replayer) RestoreArtifacts(entry *CacheEntry, task *Task) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("replayer is nil")
	}
	if entry == nil {
		return 0, fmt.Errorf("cache entry is nil")
	}
	if task == nil {
		return 0, fmt.Errorf("task is nil")
	}

	byRole := make(map[ArtifactRole]CachedArtifact, len(entry.Artifacts))
	for _, a := range entry.Artifacts {
		byRole[a.Role] = a
	}

	restored := 0
	for _, out := range task.Outputs {
		artifact, ok := byRole[out.Role]
		if !ok {
			return restored, fmt.Errorf("entry %s: no %q artifact", entry.Hash, out.Role)
		}
		if artifact.Content == nil {
			return restored, fmt.Errorf("entry %s: artifact %q missing content", entry.Hash, out.Role)
		}

		content := artifact.Content
		if out.Role == RoleDependencyInfo {
			expanded, err := expandDependencyInfo(content, task, r.WorkingDir)
			if err != nil {
				return restored, fmt.Errorf("entry %s: relocating %q: %w", entry.Hash, out.Role, err)
			}
			content = expanded
		}

		targetPath, err := r.targetPath(out.Path)
		if err != nil {
			return restored, fmt.Errorf("entry %s: resolving %q target path: %w", entry.Hash, out.Role, err)
		}

		wantHash := sha256Hex(content)
		haveHash, ok, err := fileSHA256HexIfExists(targetPath)
		if err != nil {
			return restored, fmt.Errorf("entry %s: hashing existing %q: %w", entry.Hash, out.Path, err)
		}
		if ok && haveHash == wantHash {
			continue
		}

		if err := atomicWriteFile(targetPath, content, 0644); err != nil {
			return restored, fmt.Errorf("entry %s: restoring %q: %w", entry.Hash, out.Path, err)
		}
		restored++
	}

	return restored, nil
}

// targetPath resolves p against WorkingDir and creates its parent directory.
func (r *Replayer) targetPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	targetPath := filepath.FromSlash(p)
	if !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(r.WorkingDir, targetPath)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	return targetPath, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileSHA256HexIfExists(path string) (hash string, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", true, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}

// atomicWriteFile writes content to a temp file in the same directory and
// renames it over path.
func atomicWriteFile(path string, content []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
