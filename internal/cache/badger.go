package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/quantmind-br/ghfetch/internal/domain"
)

// retention bounds how long a stale entry is kept around for revalidation
const retention = 30 * 24 * time.Hour

// BadgerCache is a response cache backed by BadgerDB
type BadgerCache struct {
	db         *badger.DB
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	closeOnce  sync.Once
}

// NewBadgerCache creates a new BadgerDB cache
func NewBadgerCache(opts Options) (*BadgerCache, error) {
	var badgerOpts badger.Options

	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Directory == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			opts.Directory = filepath.Join(homeDir, ".ghfetch", "cache", "http")
		}

		// Ensure directory exists
		if err := os.MkdirAll(opts.Directory, 0755); err != nil {
			return nil, err
		}

		badgerOpts = badger.DefaultOptions(opts.Directory)
	}

	// Disable logging unless explicitly enabled
	if !opts.Logger {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}

	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &BadgerCache{
		db:         db,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
		stop:       make(chan struct{}),
	}

	// Start background garbage collection
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = db.RunValueLogGC(0.5)
			case <-c.stop:
				return
			}
		}
	}()

	return c, nil
}

// Lookup retrieves the entry stored under key
func (c *BadgerCache) Lookup(ctx context.Context, key string) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domain.ErrCacheMiss
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Record applies a response to the cache.
// A 200 replaces the entry, a 304 only refreshes an existing one,
// and no-store removes whatever is stored. Other statuses leave the cache untouched.
func (c *BadgerCache) Record(ctx context.Context, key string, resp *domain.Response) (*domain.CacheEntry, error) {
	if resp == nil {
		return nil, nil
	}
	header := resp.Headers
	if header == nil {
		header = http.Header{}
	}

	if ParseCacheControl(header.Get("Cache-Control")).NoStore {
		if err := c.delete(key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if !IsStorable(resp.StatusCode, header) {
		return nil, nil
	}

	now := c.now()

	if resp.StatusCode == http.StatusNotModified {
		existing, err := c.Lookup(ctx, key)
		if err != nil {
			if errors.Is(err, domain.ErrCacheMiss) {
				return nil, nil
			}
			return nil, err
		}
		existing.FetchedAt = now
		existing.FreshUntil = FreshUntil(header, now, c.defaultTTL)
		if etag := header.Get("ETag"); etag != "" {
			existing.ETag = etag
		}
		if lm := header.Get("Last-Modified"); lm != "" {
			existing.LastModified = lm
		}
		return existing, c.put(key, existing)
	}

	entry := &domain.CacheEntry{
		Key:          key,
		URL:          resp.URL,
		StatusCode:   resp.StatusCode,
		ETag:         header.Get("ETag"),
		LastModified: header.Get("Last-Modified"),
		ContentType:  resp.ContentType,
		Body:         resp.Body,
		FetchedAt:    now,
		FreshUntil:   FreshUntil(header, now, c.defaultTTL),
		AcceptRanges: strings.EqualFold(strings.TrimSpace(header.Get("Accept-Ranges")), "bytes"),
		Size:         int64(len(resp.Body)),
	}
	if entry.ContentType == "" {
		entry.ContentType = header.Get("Content-Type")
	}
	if cl, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64); err == nil && cl >= 0 {
		entry.Size = cl
	}

	return entry, c.put(key, entry)
}

// IsFresh reports whether the entry can be served without contacting the server
func (c *BadgerCache) IsFresh(entry *domain.CacheEntry, now time.Time) bool {
	if entry == nil {
		return false
	}
	return isFresh(entry.FreshUntil, now)
}

func (c *BadgerCache) put(key string, entry *domain.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data).WithTTL(retention)
		return txn.SetEntry(e)
	})
}

func (c *BadgerCache) delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close releases cache resources
func (c *BadgerCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		err = c.db.Close()
	})
	return err
}

// Clear removes all entries from the cache
func (c *BadgerCache) Clear(ctx context.Context) error {
	return c.db.DropAll()
}

// Size returns the number of entries in the cache
func (c *BadgerCache) Size() int64 {
	var count int64
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count
}

// Stats returns cache statistics
func (c *BadgerCache) Stats() map[string]interface{} {
	lsm, vlog := c.db.Size()
	return map[string]interface{}{
		"entries":   c.Size(),
		"lsm_size":  lsm,
		"vlog_size": vlog,
	}
}

// Disabled is the cache used with caching turned off: every lookup misses and nothing is stored
type Disabled struct{}

// Lookup always misses
func (Disabled) Lookup(ctx context.Context, key string) (*domain.CacheEntry, error) {
	return nil, domain.ErrCacheMiss
}

// Record stores nothing
func (Disabled) Record(ctx context.Context, key string, resp *domain.Response) (*domain.CacheEntry, error) {
	return nil, nil
}

// IsFresh is always false
func (Disabled) IsFresh(entry *domain.CacheEntry, now time.Time) bool { return false }

// Clear is a no-op
func (Disabled) Clear(ctx context.Context) error { return nil }

// Close is a no-op
func (Disabled) Close() error { return nil }
