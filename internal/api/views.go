package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/neexbeast/city-weather/internal/weather"
)

//go:embed templates/*.html
var templateFS embed.FS

var views = template.Must(template.New("").Funcs(template.FuncMap{
	"temp": weather.FormatTemperature,
}).ParseFS(templateFS, "templates/*.html"))

const pollMillis = 250

type listPage struct {
	APIBase    string
	PollMillis int
}

type weatherPage struct {
	View weather.View
}

func (h *Handlers) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := views.ExecuteTemplate(&buf, name, data); err != nil {
		h.log.Error("rendering template failed", "template", name, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// ListPage handles GET /, the city search table.
func (h *Handlers) ListPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "list.html", listPage{APIBase: "/api/v1", PollMillis: pollMillis})
}

// WeatherPage handles GET /weather, the detail view for one row selection.
func (h *Handlers) WeatherPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "weather.html", weatherPage{View: h.navigate(r)})
}
