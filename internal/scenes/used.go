package scenes

import "sync"

// UsedFootage is the set of footage ids already claimed by scenes of one job.
// Scenes resolved concurrently share one instance.
type UsedFootage struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewUsedFootage() *UsedFootage {
	return &UsedFootage{ids: make(map[string]struct{})}
}

// Reserve claims id and reports whether it was still free.
func (u *UsedFootage) Reserve(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, taken := u.ids[id]; taken {
		return false
	}
	u.ids[id] = struct{}{}
	return true
}

// Snapshot returns a copy of the claimed ids, or nil when none are claimed.
func (u *UsedFootage) Snapshot() map[string]struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.ids) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(u.ids))
	for id := range u.ids {
		out[id] = struct{}{}
	}
	return out
}

func (u *UsedFootage) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.ids)
}
