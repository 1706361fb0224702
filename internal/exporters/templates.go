package exporters

import (
	"embed"
	"html/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var siteTemplates = template.Must(template.New("").Funcs(template.FuncMap{
	"safe": func(s string) template.HTML { return template.HTML(s) },
	"js":   func(s string) template.JS { return template.JS(s) },
}).ParseFS(templateFS, "templates/*.tmpl"))
