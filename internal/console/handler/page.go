package handler

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/perfdash/internal/domain"
	"github.com/xela07ax/perfdash/internal/engine"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/chart.html"))

type pageView struct {
	Title      string
	Label      string
	Variant    string
	State      string
	From       string
	To         string
	EditAction string
	RouteFrom  string
	RouteTo    string
	ImageURL   string
	APIURL     string
	Points     int
	Fetched    int
	FetchedAt  string
	LastError  string
	Links      []domain.Link
}

func (h *ChartHandler) page(w http.ResponseWriter, r *http.Request, snap engine.Snapshot, title string) {
	q := url.Values{"variant": {string(snap.Variant)}}
	for k, v := range snap.Params.Encode() {
		q[k] = v
	}
	q.Set("label", snap.Label)

	view := pageView{
		Title:     title,
		Label:     snap.Label,
		Variant:   string(snap.Variant),
		State:     snap.State.String(),
		From:      pickerDate(snap.Boundary.From),
		To:        pickerDate(snap.Boundary.To),
		ImageURL:  "/chart.png?" + q.Encode(),
		APIURL:    "/api/v1/charts?" + q.Encode(),
		Points:    snap.Dataset.Len(),
		Fetched:   snap.Fetched,
		LastError: snap.LastError,
		Links:     snap.Links,
	}
	if !snap.FetchedAt.IsZero() {
		view.FetchedAt = snap.FetchedAt.UTC().Format(time.RFC1123)
	}
	view.EditAction = "/edit"
	if snap.Variant == engine.VariantRouted {
		view.EditAction = "/chart/edit"
		route := snap.Params.Encode()
		view.RouteFrom = route.Get("from")
		view.RouteTo = route.Get("to")
	}

	// Рендерим в буфер, чтобы при ошибке шаблона не отдать половину страницы.
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, view); err != nil {
		h.logger.Error("failed to execute page template", zap.Error(err), zap.String("trace_id", engine.TraceID(r.Context())))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func pickerDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(domain.PickerLayout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
