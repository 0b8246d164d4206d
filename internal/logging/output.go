package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ResultEntry caches one invocation's terminal result, so that a caller
// asking "what did invocation X return" shortly after it finished doesn't
// need a round trip into the partition's committed storage.
type ResultEntry struct {
	InvocationID string    `json:"invocation_id"`
	ServiceName  string    `json:"service_name"`
	Success      bool      `json:"success"`
	Value        string    `json:"value,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ResultCache keeps recently finished invocation results with TTL cleanup,
// backed by an on-disk spill so a restart doesn't lose results still
// within their retention window.
type ResultCache struct {
	mu         sync.RWMutex
	storageDir string
	maxSize    int64
	retentionS int
	entries    map[string]*ResultEntry // invocationID -> entry
}

var globalResultCache *ResultCache

// InitResultCache initializes the global result cache.
func InitResultCache(storageDir string, maxSize int64, retentionS int) error {
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return err
	}

	globalResultCache = &ResultCache{
		storageDir: storageDir,
		maxSize:    maxSize,
		retentionS: retentionS,
		entries:    make(map[string]*ResultEntry),
	}

	go globalResultCache.cleanupLoop()

	return nil
}

// GetResultCache returns the global result cache.
func GetResultCache() *ResultCache {
	return globalResultCache
}

// Store saves an invocation's terminal result.
func (s *ResultCache) Store(invocationID, serviceName string, success bool, value, errMsg string) {
	if s == nil {
		return
	}

	if s.maxSize > 0 && int64(len(value)) > s.maxSize {
		value = value[:s.maxSize] + "...[truncated]"
	}

	entry := &ResultEntry{
		InvocationID: invocationID,
		ServiceName:  serviceName,
		Success:      success,
		Value:        value,
		Error:        errMsg,
		Timestamp:    time.Now(),
		ExpiresAt:    time.Now().Add(time.Duration(s.retentionS) * time.Second),
	}

	s.mu.Lock()
	s.entries[invocationID] = entry
	s.mu.Unlock()

	s.persistEntry(entry)
}

// Get retrieves a cached result.
func (s *ResultCache) Get(invocationID string) (*ResultEntry, bool) {
	if s == nil {
		return nil, false
	}

	s.mu.RLock()
	entry, ok := s.entries[invocationID]
	s.mu.RUnlock()

	if ok {
		return entry, true
	}

	return s.loadEntry(invocationID)
}

// GetByService retrieves the last N cached results for a service.
func (s *ResultCache) GetByService(serviceName string, limit int) []*ResultEntry {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*ResultEntry
	for _, entry := range s.entries {
		if entry.ServiceName == serviceName && time.Now().Before(entry.ExpiresAt) {
			results = append(results, entry)
		}
	}

	for i := 0; i < len(results)-1; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Timestamp.After(results[i].Timestamp) {
				results[i], results[j] = results[j], results[i]
			}
		}
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results
}

func (s *ResultCache) persistEntry(entry *ResultEntry) {
	path := filepath.Join(s.storageDir, entry.InvocationID+".json")
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0644)
}

func (s *ResultCache) loadEntry(invocationID string) (*ResultEntry, bool) {
	path := filepath.Join(s.storageDir, invocationID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry ResultEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		os.Remove(path)
		return nil, false
	}

	s.mu.Lock()
	s.entries[invocationID] = &entry
	s.mu.Unlock()

	return &entry, true
}

func (s *ResultCache) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.cleanup()
	}
}

func (s *ResultCache) cleanup() {
	now := time.Now()

	s.mu.Lock()
	for id, entry := range s.entries {
		if now.After(entry.ExpiresAt) {
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.storageDir)
	if err != nil {
		return
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.storageDir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}

		if now.Sub(info.ModTime()) > time.Duration(s.retentionS)*time.Second {
			os.Remove(path)
		}
	}
}
