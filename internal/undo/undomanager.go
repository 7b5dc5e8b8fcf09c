/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sync"
	"time"
)

// Snapshot is the serialized state of a script before an edit.
// Key identifies the script (its path). Label names the edit that followed.
// The manager treats Blob as opaque; its size is len(Blob).
type Snapshot struct {
	Key   string
	Label string
	Blob  []byte
	TS    time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap over all keys; the oldest entries go first.
	MaxBytes int
	// MaxPerKey limits the undo depth per script (0 means unlimited).
	MaxPerKey int
	// MinInterval coalesces edits with the same label on the same key made
	// within the interval: only the state before the first one is kept.
	MinInterval time.Duration
}

// Manager keeps undo and redo stacks per script. It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// bytes held by the undo stacks
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &Manager{cfg: cfg, undo: make(map[string][]Snapshot), redo: make(map[string][]Snapshot)}
}

// Record stores the state before an edit and drops the redo stack of the key.
func (m *Manager) Record(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo[s.Key] = nil
	stack := m.undo[s.Key]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 {
		last := stack[n-1]
		if last.Label == s.Label && s.TS.Sub(last.TS) < m.cfg.MinInterval {
			// coalesced; refresh the timestamp so a burst keeps merging
			stack[n-1].TS = s.TS
			return
		}
	}
	m.undo[s.Key] = append(stack, s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.Key)
}

// Undo pops the newest snapshot of key and returns it so the caller can
// restore it. current is the state being left; it becomes redoable.
func (m *Manager) Undo(key string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[key]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[key] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	m.redo[key] = append(m.redo[key], Snapshot{Key: key, Label: s.Label, Blob: current, TS: time.Now()})
	return s, true
}

// Redo is the inverse of Undo.
func (m *Manager) Redo(key string, current []byte) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[key]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[key] = r[:len(r)-1]
	m.undo[key] = append(m.undo[key], Snapshot{Key: key, Label: s.Label, Blob: current, TS: time.Now()})
	m.totalBytes += len(current)
	m.enforceCapsLocked(key)
	return s, true
}

// Depth returns how many steps can be undone and redone for key.
func (m *Manager) Depth(key string) (undo, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[key]), len(m.redo[key])
}

// Clear forgets the history of key.
func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[key] {
		m.totalBytes -= len(s.Blob)
	}
	delete(m.undo, key)
	delete(m.redo, key)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, keys int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, keys, totalSnapshots
}

func (m *Manager) enforceCapsLocked(key string) {
	if m.cfg.MaxPerKey > 0 {
		stack := m.undo[key]
		if len(stack) > m.cfg.MaxPerKey {
			toDrop := len(stack) - m.cfg.MaxPerKey
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[key] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// The newest entry is never pruned, even when it alone exceeds MaxBytes.
	for m.totalBytes > m.cfg.MaxBytes {
		oldestKey := ""
		found := false
		var oldestTS time.Time
		for k, stack := range m.undo {
			if len(stack) == 0 || (k == key && len(stack) == 1) {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestKey, oldestTS, found = k, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestKey]
		m.totalBytes -= len(stack[0].Blob)
		m.undo[oldestKey] = stack[1:]
		if len(m.undo[oldestKey]) == 0 {
			delete(m.undo, oldestKey)
		}
	}
}
