package statuspage

import (
	"embed"
	"fmt"
	"text/template"
)

//go:embed templates/status.tmpl
var statusTemplatesFS embed.FS

func loadTemplate() (*template.Template, error) {
	b, err := statusTemplatesFS.ReadFile("templates/status.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read embedded status template: %w", err)
	}
	t, err := template.New("status.tmpl").Option("missingkey=zero").Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse embedded status template: %w", err)
	}
	return t, nil
}
