package auth

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/EmpoweredVote/EV-Dashboard/internal/activity"
	"github.com/EmpoweredVote/EV-Dashboard/internal/flash"
	"github.com/EmpoweredVote/EV-Dashboard/internal/utils"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageLogin          = "login"
	pageRegister       = "register"
	pageChangePassword = "change_password"
	pageIndex          = "index"
	pageActivity       = "activity"
)

// pages holds one template set per page, each layout + content.
var pages = func() map[string]*template.Template {
	out := make(map[string]*template.Template)
	for _, name := range []string{pageLogin, pageRegister, pageChangePassword, pageIndex, pageActivity} {
		out[name] = template.Must(template.New(name).
			Option("missingkey=zero").
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return out
}()

type pageData struct {
	Title   string
	Session *utils.SessionData
	Flashes []flash.Message
	Error   string
	Form    map[string]string
	Events  []activity.Event
}

func render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	data.Flashes = append(flash.Pop(w, r), data.Flashes...)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages[page].ExecuteTemplate(w, "layout", data); err != nil {
		log.Error().Err(err).Str("page", page).Msg("Failed to render page")
	}
}
