package handler

import (
	"net/http"

	"github.com/sony/gobreaker"
)

// BreakerState отдает состояние circuit breaker источника записей.
type BreakerState interface {
	State() gobreaker.State
}

type HealthHandler struct {
	breaker BreakerState
}

func NewHealthHandler(b BreakerState) *HealthHandler {
	return &HealthHandler{breaker: b}
}

// Health всегда 200: открытый breaker не делает дашборд недоступным,
// последний график продолжает отдаваться.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if h.breaker != nil {
		resp["records_breaker"] = h.breaker.State().String()
	}
	writeJSON(w, http.StatusOK, resp)
}
