package chart

// Point is one plotted candlestick.
type Point struct {
	Time  int64
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Size is the hosting container's dimensions in pixels.
type Size struct {
	Width  int
	Height int
}

// Palette holds the theme-dependent colors.
type Palette struct {
	Background string
	Text       string
	Grid       string
	Border     string
}

// Options configure a widget. Only the palette changes after creation.
type Options struct {
	Size    Size
	Palette Palette
}

// SeriesStyle configures a candlestick series.
type SeriesStyle struct {
	UpColor       string
	DownColor     string
	WickUpColor   string
	WickDownColor string
	BorderVisible bool
}

// DefaultSeriesStyle matches the terminal's teal/red candles.
var DefaultSeriesStyle = SeriesStyle{
	UpColor:       "#26a69a",
	DownColor:     "#ef5350",
	WickUpColor:   "#26a69a",
	WickDownColor: "#ef5350",
}

// Widget is the chart capability the adapter depends on.
type Widget interface {
	AddSeries(style SeriesStyle) (Series, error)
	ApplyOptions(palette Palette) error
	Resize(size Size) error
	Remove()
}

// Series is a time-keyed candlestick series.
type Series interface {
	// Update upserts one point: same time overwrites, later time appends.
	Update(p Point) error
	// SetData replaces all points; SetData(nil) clears the series.
	SetData(points []Point) error
}

// Factory creates a widget in its container.
type Factory func(opts Options) (Widget, error)
