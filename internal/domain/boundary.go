package domain

import (
	"errors"
	"strings"
	"time"
)

// Day расширение верхней границы, чтобы последний день попадал целиком.
const Day = 24 * time.Hour

// DefaultWindow окно по умолчанию, когда известна одна граница или ни одной.
const DefaultWindow = 30 * Day

// Форматы дат
const (
	LabelLayout  = "01/02/2006 15:04"    // MM/DD/YYYY HH:mm
	LinkLayout   = "01/02/2006 15:04 PM" // MM/DD/YYYY HH:mm A
	PickerLayout = "01-02-2006"          // MM-DD-YYYY
)

var ErrInvertedBoundary = errors.New("boundary: from is after the end of the to day")

// Boundary диапазон дат включительно. nil-сторона открыта.
type Boundary struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// IsZero ни одна граница не задана.
func (b Boundary) IsZero() bool {
	return b.From == nil && b.To == nil
}

// End последний допустимый момент: To плюс один день.
func (b Boundary) End() (time.Time, bool) {
	if b.To == nil {
		return time.Time{}, false
	}
	return b.To.UTC().Add(Day), true
}

// Validate проверяет from <= to + 1 день, если заданы обе границы.
func (b Boundary) Validate() error {
	end, ok := b.End()
	if ok && b.From != nil && b.From.UTC().After(end) {
		return ErrInvertedBoundary
	}
	return nil
}

// Equal сравнивает границы по моментам времени.
func (b Boundary) Equal(o Boundary) bool {
	return sameInstant(b.From, o.From) && sameInstant(b.To, o.To)
}

// DefaultBoundary границы при входе на график.
// Нет обеих: окно до now. Есть только to: окно до to.
// Есть только from: окно от from. Обе: как есть.
func DefaultBoundary(now time.Time, from, to *time.Time, window time.Duration) Boundary {
	if window <= 0 {
		window = DefaultWindow
	}
	switch {
	case from == nil && to == nil:
		end := now.UTC()
		start := end.Add(-window)
		return Boundary{From: &start, To: &end}
	case from == nil:
		end := to.UTC()
		start := end.Add(-window)
		return Boundary{From: &start, To: &end}
	case to == nil:
		start := from.UTC()
		end := start.Add(window)
		return Boundary{From: &start, To: &end}
	default:
		start, end := from.UTC(), to.UTC()
		return Boundary{From: &start, To: &end}
	}
}

// ParseDay разбирает дату пикера (MM-DD-YYYY или YYYY-MM-DD) как полночь UTC.
// Пустая строка означает открытую границу, результат nil.
func ParseDay(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(PickerLayout, s, time.UTC)
	if err != nil {
		var isoErr error
		if t, isoErr = time.ParseInLocation(time.DateOnly, s, time.UTC); isoErr != nil {
			return nil, err
		}
	}
	return &t, nil
}

// TimePtr указатель на UTC-копию t.
func TimePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
