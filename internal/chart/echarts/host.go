package echarts

import (
	"net/http"
	"sync"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart"
)

// Host is the container the adapter creates widgets in. It serves whichever
// widget is currently live.
type Host struct {
	title   string
	mu      sync.RWMutex
	current *Widget
}

// NewHost returns an empty host.
func NewHost(title string) *Host {
	return &Host{title: title}
}

// Factory returns a chart.Factory that creates widgets in this host.
func (h *Host) Factory() chart.Factory {
	return func(o chart.Options) (chart.Widget, error) {
		w := New(h.title, o)
		h.mu.Lock()
		h.current = w
		h.mu.Unlock()
		return w, nil
	}
}

// Current returns the live widget, or nil before the first Init.
func (h *Host) Current() *Widget {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// ServeHTTP renders the live widget.
func (h *Host) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w := h.Current()
	if w == nil {
		http.Error(rw, "chart not initialized", http.StatusServiceUnavailable)
		return
	}
	w.ServeHTTP(rw, r)
}
