package simulation

import (
	"sort"
	"sync"
)

// store is the mutable state behind the canned replies: the selected market,
// unfinished purchases and scheduled local notifications.
type store struct {
	mu         sync.Mutex
	market     string
	pending    map[string]map[string]interface{}
	localPush  map[int64]map[string]interface{}
	foreground map[string]interface{}
}

func newStore() *store {
	return &store{
		pending:   make(map[string]map[string]interface{}),
		localPush: make(map[int64]map[string]interface{}),
		foreground: map[string]interface{}{
			"useForegroundRemotePush": true,
			"useForegroundLocalPush":  true,
		},
	}
}

func (s *store) selectMarket(market string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market = market
}

func (s *store) selectedMarket() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.market
}

func (s *store) addPending(pid string, receipt map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[pid] = receipt
}

// finish removes the pending purchase of pid and reports whether there was one.
func (s *store) finish(pid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[pid]; !ok {
		return false
	}
	delete(s.pending, pid)
	return true
}

// pendingReceipts returns the unfinished receipts ordered by market pid.
func (s *store) pendingReceipts() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	pids := make([]string, 0, len(s.pending))
	for pid := range s.pending {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	out := make([]interface{}, 0, len(pids))
	for _, pid := range pids {
		out = append(out, s.pending[pid])
	}
	return out
}

func (s *store) schedule(id int64, push map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localPush[id] = push
}

func (s *store) unschedule(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.localPush, id)
}

func (s *store) scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.localPush)
}

func (s *store) setForeground(setting map[string]interface{}) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range setting {
		s.foreground[k] = v
	}
	return s.foregroundLocked()
}

func (s *store) getForeground() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foregroundLocked()
}

func (s *store) foregroundLocked() map[string]interface{} {
	out := make(map[string]interface{}, len(s.foreground))
	for k, v := range s.foreground {
		out[k] = v
	}
	return out
}
