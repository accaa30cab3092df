// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CacheEntry represents the stored result of a successful libtool run.
//
// Includes: stdout, stderr, artifacts by role.
// Excludes: exit code (only successful runs are stored), paths, timestamps.
type CacheEntry struct {
	// Hash is the TaskHash that identifies this cache entry.
	Hash TaskHash `json:"hash"`

	// Stdout is the captured standard output.
	Stdout []byte `json:"stdout"`

	// Stderr is the captured standard error. libtool prints warnings such as
	// "has no symbols" here, and a replay reproduces them.
	Stderr []byte `json:"stderr"`

	// Artifacts contains the harvested output files.
	Artifacts []CachedArtifact `json:"artifacts"`
}

// CachedArtifact represents a single artifact stored in the cache.
type CachedArtifact struct {
	Role ArtifactRole `json:"role"`

	// Content is the artifact file content. An empty file is an empty,
	// non-nil slice; nil means the content was never captured.
	Content []byte `json:"content"`
}

// Cache provides storage and retrieval of libtool results.
//
// If a TaskHash has been stored before, the native tool is not run again and
// the stored artifacts are restored bit-for-bit.
type Cache interface {
	// Has checks if a cache entry exists for the given hash.
	Has(ctx context.Context, hash TaskHash) (bool, error)

	// Get retrieves a cache entry by hash.
	// Returns nil if the entry does not exist.
	Get(ctx context.Context, hash TaskHash) (*CacheEntry, error)

	// Put stores a cache entry.
	Put(ctx context.Context, entry *CacheEntry) error
}

// FileCache implements Cache using the filesystem.
//
// Structure:
//
//	{CacheDir}/
//	  {hash[0:2]}/
//	    {hash}/
//	      metadata.json  (stdout, stderr, artifact roles)
//	      artifacts/
//	        {role}.blob
type FileCache struct {
	// CacheDir is the root directory for cache storage.
	CacheDir string
}

// NewFileCache creates a new filesystem-based cache.
func NewFileCache(cacheDir string) *FileCache {
	return &FileCache{CacheDir: cacheDir}
}

// Has checks if a cache entry exists for the given hash.
func (c *FileCache) Has(_ context.Context, hash TaskHash) (bool, error) {
	metadataPath := filepath.Join(c.entryPath(hash), "metadata.json")

	_, err := os.Stat(metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking cache entry: %w", err)
	}

	return true, nil
}

// Get retrieves a cache entry by hash.
func (c *FileCache) Get(_ context.Context, hash TaskHash) (*CacheEntry, error) {
	entryDir := c.entryPath(hash)
	metadataPath := filepath.Join(entryDir, "metadata.json")

	data, err := os.ReadFile(metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache metadata: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache metadata: %w", err)
	}

	artifactsDir := filepath.Join(entryDir, "artifacts")
	for i := range entry.Artifacts {
		blobPath := filepath.Join(artifactsDir, blobName(entry.Artifacts[i].Role))
		content, err := os.ReadFile(blobPath)
		if err != nil {
			return nil, fmt.Errorf("reading artifact %q: %w", entry.Artifacts[i].Role, err)
		}
		entry.Artifacts[i].Content = content
	}

	return &entry, nil
}

// Put stores a cache entry.
func (c *FileCache) Put(_ context.Context, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}

	entryDir := c.entryPath(entry.Hash)
	parentDir := filepath.Dir(entryDir)

	// Ensure parent exists so temp dir is created on the same filesystem.
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Write into a temp entry dir, then rename into place. A crash never
	// leaves a partial entry at the canonical path.
	tmpDir, err := os.MkdirTemp(parentDir, "tmp-entry-"+string(entry.Hash)+"-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = os.RemoveAll(tmpDir)
	}()

	artifactsDir := filepath.Join(tmpDir, "artifacts")
	if err := os.MkdirAll(artifactsDir, 0755); err != nil {
		return fmt.Errorf("creating cache artifacts dir: %w", err)
	}

	// Blobs first, so metadata only appears after blobs succeed.
	metadata := CacheEntry{
		Hash:      entry.Hash,
		Stdout:    entry.Stdout,
		Stderr:    entry.Stderr,
		Artifacts: make([]CachedArtifact, len(entry.Artifacts)),
	}
	for i, artifact := range entry.Artifacts {
		if artifact.Role == "" {
			return fmt.Errorf("artifact %d has no role", i)
		}
		blobPath := filepath.Join(artifactsDir, blobName(artifact.Role))
		if err := atomicWriteFile(blobPath, artifact.Content, 0644); err != nil {
			return fmt.Errorf("writing artifact %q: %w", artifact.Role, err)
		}
		metadata.Artifacts[i] = CachedArtifact{Role: artifact.Role}
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}

	metadataPath := filepath.Join(tmpDir, "metadata.json")
	if err := atomicWriteFile(metadataPath, data, 0644); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}

	// Best-effort remove of any existing entry; a crash between remove and rename
	// yields a cache miss (safe), not corruption.
	_ = os.RemoveAll(entryDir)
	if err := os.Rename(tmpDir, entryDir); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	return nil
}

// entryPath returns the directory path for a cache entry.
// The first 2 characters of the hash form a fan-out directory.
func (c *FileCache) entryPath(hash TaskHash) string {
	hashStr := string(hash)
	if len(hashStr) < 2 {
		return filepath.Join(c.CacheDir, hashStr)
	}
	return filepath.Join(c.CacheDir, hashStr[:2], hashStr)
}

func blobName(role ArtifactRole) string {
	return string(role) + ".blob"
}

// MemoryCache implements Cache using in-memory storage.
// Useful for testing and short-lived processes.
type MemoryCache struct {
	entries map[TaskHash]*CacheEntry
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[TaskHash]*CacheEntry),
	}
}

// Has checks if a cache entry exists.
func (c *MemoryCache) Has(_ context.Context, hash TaskHash) (bool, error) {
	_, exists := c.entries[hash]
	return exists, nil
}

// Get retrieves a copy of a cache entry.
func (c *MemoryCache) Get(_ context.Context, hash TaskHash) (*CacheEntry, error) {
	entry, exists := c.entries[hash]
	if !exists {
		return nil, nil
	}
	return copyEntry(entry), nil
}

// Put stores a copy of a cache entry.
func (c *MemoryCache) Put(_ context.Context, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	c.entries[entry.Hash] = copyEntry(entry)
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	return len(c.entries)
}

func copyEntry(entry *CacheEntry) *CacheEntry {
	out := &CacheEntry{
		Hash:      entry.Hash,
		Stdout:    bytes.Clone(entry.Stdout),
		Stderr:    bytes.Clone(entry.Stderr),
		Artifacts: make([]CachedArtifact, len(entry.Artifacts)),
	}
	for i, a := range entry.Artifacts {
		out.Artifacts[i] = CachedArtifact{
			Role:    a.Role,
			Content: bytes.Clone(a.Content),
		}
	}
	return out
}
