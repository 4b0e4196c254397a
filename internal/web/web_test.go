package web

import (
	"bytes"
	"testing"
	"time"

	"example.com/ribbit/internal/forms"
	"example.com/ribbit/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		10 * time.Second:     "0 minutes",
		time.Minute:          "1 minute",
		5 * time.Minute:      "5 minutes",
		3 * time.Hour:        "3 hours",
		50 * time.Hour:       "2 days",
		15 * 24 * time.Hour:  "2 weeks",
		400 * 24 * time.Hour: "1 year",
	}
	for d, want := range cases {
		assert.Equal(t, want, TimeSince(now.Add(-d), now), d.String())
	}
}

func TestTemplatesRenderHome(t *testing.T) {
	tmpl, err := Templates()
	require.NoError(t, err)

	var buf bytes.Buffer
	err = tmpl.ExecuteTemplate(&buf, "home.html", map[string]any{
		"Title":        "",
		"User":         (*models.User)(nil),
		"LoginForm":    forms.LoginForm{Username: "kermit"},
		"LoginErrors":  forms.NewNonFieldError("Please enter a correct username and password."),
		"SignupForm":   forms.SignupForm{},
		"SignupErrors": forms.NewFieldError("username", "taken"),
	})
	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, `value="kermit"`)
	assert.Contains(t, html, "Please enter a correct username and password.")
	assert.Contains(t, html, "taken")
}

func TestTemplatesRenderRibbits(t *testing.T) {
	tmpl, err := Templates()
	require.NoError(t, err)

	user := &models.User{ID: uuid.New(), Username: "kermit", Email: "kermit@pond.org"}
	var buf bytes.Buffer
	err = tmpl.ExecuteTemplate(&buf, "public.html", map[string]any{
		"Title":        "Public Ribbits",
		"User":         user,
		"Ribbits":      []models.Ribbit{{Content: "<b>hello</b>", User: *user, CreatedAt: time.Now()}},
		"RibbitErrors": (*forms.ValidationError)(nil),
		"Content":      "",
		"NextURL":      "/ribbits",
	})
	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, "&lt;b&gt;hello&lt;/b&gt;", "content must be escaped")
	assert.Contains(t, html, user.GravatarURL())
	assert.Contains(t, html, `maxlength="140"`)
}
