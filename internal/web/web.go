// Package web holds the server-rendered pages and their stylesheet.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var funcs = template.FuncMap{
	"money": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
	// status css class
	"lower": func(v any) string {
		return strings.ToLower(fmt.Sprint(v))
	},
}

// Templates parses every page. Page names are their file names.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

// MustTemplates panics on a parse error; templates are embedded, so that is
// a build defect.
func MustTemplates() *template.Template {
	return template.Must(Templates())
}

func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
