package application

import "sync"

// flightKey scopes an hbl id to its container; hbl ids are only unique
// within one container
type flightKey struct {
	containerKey
	hblID string
}

func flightOf(key containerKey, hblID string) flightKey {
	return flightKey{containerKey: key, hblID: hblID}
}

// flightMarkers enforces one in-flight operation per hbl. A second acquire
// for a held hbl fails instead of waiting.
type flightMarkers struct {
	mu     sync.Mutex
	active map[flightKey]struct{}
}

func newFlightMarkers() *flightMarkers {
	return &flightMarkers{active: make(map[flightKey]struct{})}
}

// acquire marks id as processing. The returned release must be called exactly once.
func (f *flightMarkers) acquire(id flightKey) (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.active[id]; busy {
		return nil, false
	}
	f.active[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.active, id)
			f.mu.Unlock()
		})
	}, true
}

func (f *flightMarkers) busy(id flightKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.active[id]
	return ok
}
