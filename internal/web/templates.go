package web

import (
	"embed"
	"html/template"
)

const (
	pageTemplate      = "page.html"
	dashboardTemplate = "dashboard.html"
)

//go:embed templates/*.html
var templateFS embed.FS

var studentYears = []int{1, 2, 3, 4, 5}

// Templates は埋め込みテンプレートを読み込みます。gin.Engine.SetHTMLTemplate に渡します。
func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
