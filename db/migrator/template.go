package migrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// DefaultTemplate is used to create new units when no template file is
// configured.
const DefaultTemplate = `-- Migration {{ .Version }}

-- +migrate Up


-- +migrate Down
-- +migrate Fail
`

// TemplateData is passed to unit templates.
type TemplateData struct {
	// Version is the full version of the new unit, e.g.
	// m101129_185401_create_user_table.
	Version string
	// Name is the name given by the operator, e.g. create_user_table.
	Name string
}

// renderTemplate renders a unit template. The {ClassName} placeholder used by
// older templates is replaced with the version as well.
func renderTemplate(text string, data TemplateData) ([]byte, error) {
	text = strings.ReplaceAll(text, "{ClassName}", data.Version)

	tpl, err := template.New(data.Version).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed parsing migration template: %w", err)
	}

	var buf bytes.Buffer
	if err = tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed rendering migration template: %w", err)
	}

	return buf.Bytes(), nil
}
