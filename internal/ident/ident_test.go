package ident

import (
	"strings"
	"sync"
	"testing"
)

func TestIDsUniqueUnderConcurrency(t *testing.T) {
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]bool, workers*perWorker*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s, m := NewSourceID(), NewMessageID()
				mu.Lock()
				if seen[s] || seen[m] {
					t.Errorf("duplicate id: %s / %s", s, m)
				}
				seen[s], seen[m] = true, true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestPrefixes(t *testing.T) {
	if id := NewSourceID(); !strings.HasPrefix(id, SourcePrefix) {
		t.Errorf("source id %q missing prefix", id)
	}
	if id := NewMessageID(); !strings.HasPrefix(id, MessagePrefix) {
		t.Errorf("message id %q missing prefix", id)
	}
}
