// Package core defines the domain models for cache-aware libtool execution.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RemoteCacheParam describes an S3-compatible bucket holding cache entries.
type RemoteCacheParam struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string

	Bucket string
	// Root is the key prefix under which entries are stored.
	Root string
}

// RemoteCache implements Cache on top of an S3-compatible object store.
//
// Each entry is a single JSON object at {Root}/{hash[0:2]}/{hash}.json with
// artifact contents inlined. A missing object is a cache miss.
type RemoteCache struct {
	Client *minio.Client
	Bucket string
	Root   string
}

// NewRemoteCache connects to the object store described by p.
//
// The bucket is not checked here; a missing bucket surfaces as an error on
// first use.
func NewRemoteCache(p RemoteCacheParam) (*RemoteCache, error) {
	if p.Endpoint == "" {
		return nil, fmt.Errorf("remote cache endpoint is required")
	}
	if p.Bucket == "" {
		return nil, fmt.Errorf("remote cache bucket is required")
	}

	client, err := minio.New(p.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(p.AccessKey, p.SecretKey, ""),
		Secure:       p.UseSSL,
		Region:       p.Region,
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("creating remote cache client: %w", err)
	}

	return &RemoteCache{Client: client, Bucket: p.Bucket, Root: p.Root}, nil
}

// Has checks if an object exists for the given hash.
func (c *RemoteCache) Has(ctx context.Context, hash TaskHash) (bool, error) {
	_, err := c.Client.StatObject(ctx, c.Bucket, c.objectKey(hash), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking remote cache entry: %w", err)
	}
	return true, nil
}

// Get downloads and decodes the entry for hash.
// Returns nil if the entry does not exist.
func (c *RemoteCache) Get(ctx context.Context, hash TaskHash) (*CacheEntry, error) {
	obj, err := c.Client.GetObject(ctx, c.Bucket, c.objectKey(hash), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching remote cache entry: %w", err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key is reported on first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading remote cache entry: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing remote cache entry: %w", err)
	}
	if entry.Hash != hash {
		return nil, fmt.Errorf("remote cache entry %s holds hash %s", hash, entry.Hash)
	}
	return &entry, nil
}

// Put uploads entry as a single object.
func (c *RemoteCache) Put(ctx context.Context, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling remote cache entry: %w", err)
	}

	_, err = c.Client.PutObject(ctx, c.Bucket, c.objectKey(entry.Hash), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("uploading remote cache entry: %w", err)
	}
	return nil
}

func (c *RemoteCache) objectKey(hash TaskHash) string {
	return remoteObjectKey(c.Root, hash)
}

func remoteObjectKey(root string, hash TaskHash) string {
	hashStr := string(hash)
	if len(hashStr) < 2 {
		return path.Join(root, hashStr+".json")
	}
	return path.Join(root, hashStr[:2], hashStr+".json")
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
