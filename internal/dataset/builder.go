package dataset

import "github.com/xela07ax/perfdash/internal/domain"

// Build поэлементно раскладывает записи в подписи и пять рядов графика.
func Build(records []domain.Record) domain.Dataset {
	ds := domain.Dataset{
		Labels: make([]string, len(records)),
		Series: make([]domain.Series, len(domain.ChartSeries)),
	}
	for i, r := range records {
		ds.Labels[i] = r.Timestamp.UTC().Format(domain.LabelLayout)
	}
	for k, spec := range domain.ChartSeries {
		values := make([]*float64, len(records))
		for i, r := range records {
			values[i] = r.FirstView.Metric(spec.Field)
		}
		ds.Series[k] = domain.Series{Name: spec.Name, Field: spec.Field, Values: values}
	}
	return ds
}

// Links ссылки на отчеты, подпись в часовом поясе записи.
func Links(records []domain.Record) []domain.Link {
	out := make([]domain.Link, len(records))
	for i, r := range records {
		out[i] = domain.Link{
			Label:          r.Timestamp.Format(domain.LinkLayout),
			Summary:        r.Summary,
			WaterfallView:  r.FirstView.WaterfallView,
			ConnectionView: r.FirstView.ConnectionView,
		}
	}
	return out
}
