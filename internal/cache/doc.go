// Package cache provides the bounded LRU cache gcompute keeps compiled
// shader modules in.
//
//	c := cache.New[string, []uint32](64)
//	c.Add(wgsl, words)
//	words, ok := c.Get(wgsl)
//
// A Cache is safe for concurrent use and must not be copied after creation.
package cache
