// Package echarts is a candlestick widget backed by go-echarts. It keeps the
// plotted points in memory and renders them as an HTML page on demand.
package echarts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/HeroicKrishna160905/tradeshift-engine/internal/chart"
)

var (
	// ErrOutOfOrder is returned when an update is older than the last point.
	ErrOutOfOrder = errors.New("echarts: update older than last point")
	// ErrNonFinite is returned for points with NaN or infinite prices.
	ErrNonFinite = errors.New("echarts: non-finite price")
	// ErrRemoved is returned for calls on a removed widget.
	ErrRemoved = errors.New("echarts: widget removed")
	// ErrSeriesExists is returned when a second series is requested.
	ErrSeriesExists = errors.New("echarts: widget supports one series")
)

const labelLayout = "2006-01-02 15:04"

// Widget is a single-series candlestick chart.
type Widget struct {
	mu      sync.RWMutex
	title   string
	size    chart.Size
	palette chart.Palette
	style   chart.SeriesStyle
	series  bool
	removed bool
	points  []chart.Point
}

// New creates a widget.
func New(title string, o chart.Options) *Widget {
	return &Widget{title: title, size: o.Size, palette: o.Palette}
}

// AddSeries creates the candlestick series.
func (w *Widget) AddSeries(style chart.SeriesStyle) (chart.Series, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return nil, ErrRemoved
	}
	if w.series {
		return nil, ErrSeriesExists
	}
	w.series = true
	w.style = style
	return &series{w: w}, nil
}

// ApplyOptions swaps the palette; points are untouched.
func (w *Widget) ApplyOptions(p chart.Palette) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	w.palette = p
	return nil
}

// Resize sets the rendered dimensions.
func (w *Widget) Resize(s chart.Size) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	w.size = s
	return nil
}

// Remove releases the points. Later calls fail with ErrRemoved.
func (w *Widget) Remove() {
	w.mu.Lock()
	w.removed = true
	w.points = nil
	w.mu.Unlock()
}

// Points returns a copy of the plotted points in time order.
func (w *Widget) Points() []chart.Point {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]chart.Point(nil), w.points...)
}

// Render writes the chart as a standalone HTML page.
func (w *Widget) Render(out io.Writer) error {
	w.mu.RLock()
	k := w.build()
	w.mu.RUnlock()
	return k.Render(out)
}

// ServeHTTP renders the chart page.
func (w *Widget) ServeHTTP(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := w.Render(rw); err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
	}
}

// build assembles the go-echarts page. Caller holds at least a read lock.
func (w *Widget) build() *charts.Kline {
	x := make([]string, len(w.points))
	data := make([]opts.KlineData, len(w.points))
	for i, p := range w.points {
		x[i] = time.Unix(p.Time, 0).UTC().Format(labelLayout)
		// echarts candlestick order: open, close, low, high
		data[i] = opts.KlineData{Value: [4]float64{p.Open, p.Close, p.Low, p.High}}
	}

	k := charts.NewKLine()
	k.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       w.title,
			Width:           fmt.Sprintf("%dpx", w.size.Width),
			Height:          fmt.Sprintf("%dpx", w.size.Height),
			BackgroundColor: w.palette.Background,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      w.title,
			TitleStyle: &opts.TextStyle{Color: w.palette.Text},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Color: w.palette.Text},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: w.palette.Grid}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: w.palette.Text},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: w.palette.Grid}},
		}),
	)
	k.SetXAxis(x)
	k.AddSeries(w.title, data, charts.WithItemStyleOpts(opts.ItemStyle{
		Color:        w.style.UpColor,
		Color0:       w.style.DownColor,
		BorderColor:  w.style.WickUpColor,
		BorderColor0: w.style.WickDownColor,
	}))
	return k
}

type series struct {
	w *Widget
}

// Update upserts by time: equal time replaces the last point, later time
// appends, earlier time is rejected.
func (s *series) Update(p chart.Point) error {
	if !finite(p) {
		return fmt.Errorf("%w at %d", ErrNonFinite, p.Time)
	}
	w := s.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	if n := len(w.points); n > 0 {
		last := w.points[n-1].Time
		switch {
		case p.Time == last:
			w.points[n-1] = p
			return nil
		case p.Time < last:
			return fmt.Errorf("%w: %d < %d", ErrOutOfOrder, p.Time, last)
		}
	}
	w.points = append(w.points, p)
	return nil
}

// SetData replaces all points. Points must be strictly increasing in time.
func (s *series) SetData(points []chart.Point) error {
	for i, p := range points {
		if !finite(p) {
			return fmt.Errorf("%w at %d", ErrNonFinite, p.Time)
		}
		if i > 0 && p.Time <= points[i-1].Time {
			return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, p.Time, points[i-1].Time)
		}
	}
	w := s.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return ErrRemoved
	}
	w.points = append(w.points[:0:0], points...)
	return nil
}

func finite(p chart.Point) bool {
	for _, v := range [4]float64{p.Open, p.High, p.Low, p.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
