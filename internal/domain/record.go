package domain

import "time"

// Record один замер производительности из эндпоинта записей.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	FirstView FirstView `json:"firstView"`
}

// FirstView метрики первого просмотра. Числа хранятся указателями:
// отсутствующее поле не равно нулю.
type FirstView struct {
	TTFB            *float64 `json:"ttfb"`
	Render          *float64 `json:"render"`
	SpeedIndex      *float64 `json:"speedIndex"`
	DOMElements     *float64 `json:"domElements"`
	FullyLoadedTime *float64 `json:"fullyLoadedTime"`
	WaterfallView   string   `json:"waterfallView"`
	ConnectionView  string   `json:"connectionView"`
}

// Metric значение по имени поля.
func (f FirstView) Metric(field string) *float64 {
	switch field {
	case FieldTTFB:
		return f.TTFB
	case FieldRender:
		return f.Render
	case FieldSpeedIndex:
		return f.SpeedIndex
	case FieldDOMElements:
		return f.DOMElements
	case FieldFullyLoadedTime:
		return f.FullyLoadedTime
	default:
		return nil
	}
}

// Link строка списка ссылок на отчеты под графиком.
type Link struct {
	Label          string `json:"label"`
	Summary        string `json:"summary"`
	WaterfallView  string `json:"waterfall_view"`
	ConnectionView string `json:"connection_view"`
}

// RecordQuery параметры запроса к эндпоинту. To уже расширен на день,
// как в фильтре.
type RecordQuery struct {
	Label string
	From  *time.Time
	To    *time.Time
}
