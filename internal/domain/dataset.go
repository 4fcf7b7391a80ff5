package domain

// Имена полей firstView в ответе эндпоинта
const (
	FieldTTFB            = "ttfb"
	FieldRender          = "render"
	FieldSpeedIndex      = "speedIndex"
	FieldDOMElements     = "domElements"
	FieldFullyLoadedTime = "fullyLoadedTime"
)

// SeriesSpec связывает название линии с полем firstView.
type SeriesSpec struct {
	Name  string
	Field string
}

// ChartSeries линии графика в порядке легенды.
var ChartSeries = []SeriesSpec{
	{Name: "TTFB", Field: FieldTTFB},
	{Name: "Time to First Render", Field: FieldRender},
	{Name: "SpeedIndex", Field: FieldSpeedIndex},
	{Name: "# Dom Elements", Field: FieldDOMElements},
	{Name: "Fully Loaded Time", Field: FieldFullyLoadedTime},
}

// Series именованный ряд. nil означает пропущенную точку.
type Series struct {
	Name   string     `json:"label"`
	Field  string     `json:"field"`
	Values []*float64 `json:"data"`
}

// Dataset вход графика: подписи и ряды, выровненные по индексу.
type Dataset struct {
	Labels []string `json:"labels"`
	Series []Series `json:"datasets"`
}

// Len число точек.
func (d Dataset) Len() int {
	return len(d.Labels)
}

// SeriesByField ищет ряд по имени поля firstView.
func (d Dataset) SeriesByField(field string) (Series, bool) {
	for _, s := range d.Series {
		if s.Field == field {
			return s, true
		}
	}
	return Series{}, false
}
