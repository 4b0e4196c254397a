// Package web holds the HTML templates.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"example.com/ribbit/internal/forms"
	"example.com/ribbit/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses every page template with the helper functions installed.
func Templates() (*template.Template, error) {
	t, err := template.New("").Funcs(Funcs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

func Funcs() template.FuncMap {
	return template.FuncMap{
		"fieldErrors":    fieldErrors,
		"nonFieldErrors": nonFieldErrors,
		"timesince":      func(t time.Time) string { return TimeSince(t, time.Now()) },
		"ribbitMax":      func() int { return models.MaxRibbitLength },
	}
}

func fieldErrors(verr *forms.ValidationError, field string) []string {
	return verr.Field(field)
}

func nonFieldErrors(verr *forms.ValidationError) []string {
	return verr.NonField()
}

// TimeSince renders the age of t at now in its largest unit, e.g. "3 minutes".
func TimeSince(t, now time.Time) string {
	d := now.Sub(t)
	if d < time.Minute {
		return "0 minutes"
	}

	units := []struct {
		name string
		size time.Duration
	}{
		{"year", 365 * 24 * time.Hour},
		{"month", 30 * 24 * time.Hour},
		{"week", 7 * 24 * time.Hour},
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
	}
	for _, u := range units {
		if n := int(d / u.size); n > 0 {
			if n == 1 {
				return "1 " + u.name
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return "0 minutes"
}
