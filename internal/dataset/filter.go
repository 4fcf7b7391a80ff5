// Package dataset превращает загруженные записи во вход графика.
package dataset

import "github.com/xela07ax/perfdash/internal/domain"

// Filter оставляет записи внутри b. Верхняя граница расширена на день,
// сравнение в UTC, порядок сохраняется. Пустые границы возвращают records как есть.
func Filter(records []domain.Record, b domain.Boundary) []domain.Record {
	if b.IsZero() {
		return records
	}

	end, hasEnd := b.End()
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		ts := r.Timestamp.UTC()
		if b.From != nil && ts.Before(b.From.UTC()) {
			continue
		}
		if hasEnd && ts.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}
