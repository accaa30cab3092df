// Package core provides the domain models and the cache-aware build executor
// behind the libtool wrapper.
//
// # Core Types
//
// Mode: the classified libtool operation (CreateLibrary or
// CreateUniversalBinary).
// Task: the files a Mode reads and the artifacts it produces.
// TaskHash: the content-based cache key of an invocation.
// CacheEntry: the stored artifacts and output of a successful run.
//
// # Execution
//
// Runner.Execute computes the key, restores a cached result when one exists
// and otherwise runs the native tool and stores what it produced. Cache
// entries hold artifacts by role rather than by path, so an entry built in one
// checkout can be restored into another.
package core
