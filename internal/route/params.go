// Package route навигация графиков: метка и границы в query-параметрах
// и поток, который оповещает подписанные графики об их смене.
package route

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/perfdash/internal/domain"
)

// Params query-параметры routed-графика.
type Params struct {
	Label string     `json:"label"`
	From  *time.Time `json:"from,omitempty"`
	To    *time.Time `json:"to,omitempty"`
}

// ParseParams читает label, from, to. from/to в миллисекундах UTC,
// нечитаемые значения считаются отсутствующими.
func ParseParams(v url.Values) Params {
	return Params{
		Label: strings.TrimSpace(v.Get("label")),
		From:  parseMillis(v.Get("from")),
		To:    parseMillis(v.Get("to")),
	}
}

// Encode обратна ParseParams. Пустые поля пропускаются.
func (p Params) Encode() url.Values {
	v := url.Values{}
	if p.Label != "" {
		v.Set("label", p.Label)
	}
	if p.From != nil {
		v.Set("from", strconv.FormatInt(p.From.UTC().UnixMilli(), 10))
	}
	if p.To != nil {
		v.Set("to", strconv.FormatInt(p.To.UTC().UnixMilli(), 10))
	}
	return v
}

// Boundary даты из параметров.
func (p Params) Boundary() domain.Boundary {
	return domain.Boundary{From: p.From, To: p.To}
}

// Equal сравнивает метку и моменты времени.
func (p Params) Equal(o Params) bool {
	return p.Label == o.Label && p.Boundary().Equal(o.Boundary())
}

func parseMillis(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
