package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = []string{"home", "pricing", "login", "payment", "success"}

var templateFuncs = template.FuncMap{
	"price": func(p float64) string { return fmt.Sprintf("%.2f", p) },
}

// Views holds one parsed template set per page, each sharing the layout.
type Views struct {
	pages  map[string]*template.Template
	logger *logrus.Logger
}

func NewViews(logger *logrus.Logger) (*Views, error) {
	v := &Views{pages: make(map[string]*template.Template), logger: logger}
	for _, name := range pageTemplates {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

func (v *Views) render(w http.ResponseWriter, status int, name string, data any) {
	t, ok := v.pages[name]
	if !ok {
		v.logger.WithField("template", name).Error("Unknown template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		v.logger.WithError(err).WithField("template", name).Error("Failed to render template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
