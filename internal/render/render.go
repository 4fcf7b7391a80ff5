// Package render рисует набор данных линейным графиком в PNG или SVG.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/xela07ax/perfdash/internal/domain"
)

var ErrEmptyDataset = errors.New("render: dataset has no points to draw")

type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

// ParseFormat принимает png или svg без учета регистра. Пустая строка значит png.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPNG, "":
		return FormatPNG, nil
	case FormatSVG:
		return FormatSVG, nil
	default:
		return "", fmt.Errorf("render: unknown format %q", s)
	}
}

// ContentType MIME-тип картинки.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return chart.ContentTypeSVG
	}
	return chart.ContentTypePNG
}

// Palette цвета линий по имени поля firstView ("#rrggbb", "rgb(...)").
// Ключи без учета регистра: viper приводит их к нижнему.
type Palette map[string]string

// Color цвет линии для field, если он задан.
func (p Palette) Color(field string) (drawing.Color, bool) {
	raw, ok := p[field]
	if !ok {
		raw, ok = p[strings.ToLower(field)]
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return drawing.Color{}, false
	}
	return drawing.ParseColor(strings.TrimSpace(raw)), true
}

type Options struct {
	Title  string
	Format Format
	Width  int
	Height int
	// MaxTicks предел подписей по оси X, 0 значит 8.
	MaxTicks int
}

type Renderer struct {
	palette Palette
}

func NewRenderer(p Palette) *Renderer {
	return &Renderer{palette: p}
}

// Render пишет график в w. Пропущенные точки выпадают из линии.
func (r *Renderer) Render(w io.Writer, ds domain.Dataset, opts Options) error {
	graph, err := r.Chart(ds, opts)
	if err != nil {
		return err
	}

	provider := chart.PNG
	if opts.Format == FormatSVG {
		provider = chart.SVG
	}
	if err := graph.Render(provider, w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// Chart собирает описание go-chart без отрисовки.
func (r *Renderer) Chart(ds domain.Dataset, opts Options) (*chart.Chart, error) {
	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	maxY := 0.0
	series := make([]chart.Series, 0, len(ds.Series))
	for _, s := range ds.Series {
		xs := make([]float64, 0, len(s.Values))
		ys := make([]float64, 0, len(s.Values))
		for i, v := range s.Values {
			if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
				continue
			}
			xs = append(xs, float64(i))
			ys = append(ys, *v)
			maxY = math.Max(maxY, *v)
		}
		if len(xs) == 0 {
			continue
		}

		cs := chart.ContinuousSeries{Name: s.Name, XValues: xs, YValues: ys}
		if col, ok := r.palette.Color(s.Field); ok {
			cs.Style = chart.Style{StrokeColor: col, StrokeWidth: 2, DotColor: col, DotWidth: 2}
		}
		series = append(series, cs)
	}
	if len(series) == 0 {
		return nil, ErrEmptyDataset
	}

	if maxY <= 0 {
		maxY = 1
	}
	xMax := float64(ds.Len() - 1)
	if xMax < 1 {
		xMax = 1
	}

	graph := &chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 24}},
		XAxis: chart.XAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: xMax},
			Ticks: xTicks(ds.Labels, opts.MaxTicks),
		},
		YAxis: chart.YAxis{
			Name:  "Millis",
			Range: &chart.ContinuousRange{Min: 0, Max: maxY * 1.1},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(graph)}
	return graph, nil
}

// xTicks выбирает до max равномерных подписей, последняя остается всегда.
func xTicks(labels []string, max int) []chart.Tick {
	if max <= 0 {
		max = 8
	}
	if len(labels) == 0 {
		return nil
	}
	step := int(math.Ceil(float64(len(labels)) / float64(max)))
	if step < 1 {
		step = 1
	}

	ticks := make([]chart.Tick, 0, max+1)
	for i := 0; i < len(labels); i += step {
		ticks = append(ticks, chart.Tick{Value: float64(i), Label: labels[i]})
	}
	if last := len(labels) - 1; ticks[len(ticks)-1].Value != float64(last) {
		ticks = append(ticks, chart.Tick{Value: float64(last), Label: labels[last]})
	}
	// go-chart берет диапазон X из подписей и не принимает нулевой.
	if len(ticks) == 1 {
		ticks = append(ticks, chart.Tick{Value: 1})
	}
	return ticks
}
