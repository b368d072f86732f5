package decision

import (
	"maps"
	"sync"
)

type position struct {
	asset   string
	sizeUSD float64
}

// ExposureBook tracks open positions per asset across decision passes. An
// intent's exposure is opened when it is emitted and released when its
// receipt is reconciled or it expires unanswered.
type ExposureBook struct {
	mu      sync.Mutex
	byAsset map[string]float64
	byID    map[string]position
}

// NewExposureBook creates an empty book.
func NewExposureBook() *ExposureBook {
	return &ExposureBook{
		byAsset: make(map[string]float64),
		byID:    make(map[string]position),
	}
}

// Open records sizeUSD of asset under id. Re-opening an id replaces its
// previous position.
func (b *ExposureBook) Open(id, asset string, sizeUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked(id)
	b.byID[id] = position{asset: asset, sizeUSD: sizeUSD}
	b.byAsset[asset] += sizeUSD
}

// Release closes the position under id and returns its size. Unknown ids
// return false.
func (b *ExposureBook) Release(id string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.releaseLocked(id)
}

func (b *ExposureBook) releaseLocked(id string) (float64, bool) {
	p, ok := b.byID[id]
	if !ok {
		return 0, false
	}
	delete(b.byID, id)
	left := b.byAsset[p.asset] - p.sizeUSD
	if left <= 1e-9 {
		delete(b.byAsset, p.asset)
	} else {
		b.byAsset[p.asset] = left
	}
	return p.sizeUSD, true
}

// Exposure returns the open USD exposure of an asset.
func (b *ExposureBook) Exposure(asset string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.byAsset[asset]
}

// Totals returns a copy of the open exposure per asset.
func (b *ExposureBook) Totals() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.byAsset)
}

// Len returns the number of open positions.
func (b *ExposureBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}
