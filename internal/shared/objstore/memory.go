package objstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryArchive 进程内归档，用于测试
type MemoryArchive struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryArchive 创建进程内归档
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{objects: make(map[string][]byte)}
}

func (m *MemoryArchive) ArchiveTranscript(_ context.Context, t *Transcript) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	key := TranscriptKey(t.GoldenTestID, t.ResultID)
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return key, nil
}

func (m *MemoryArchive) LoadTranscript(_ context.Context, key string) (*Transcript, error) {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

var _ TranscriptArchive = (*MemoryArchive)(nil)
