// Package catalogadmin provides embedded assets for production builds.
package catalogadmin

import "embed"

// TemplateFS holds the server-rendered pages. In dev mode (IsDev=true) they
// are read from disk instead so edits show up without a rebuild.
//
//go:embed all:web/templates
var TemplateFS embed.FS

// TemplateRoot is the directory inside TemplateFS (and the repository) that
// holds layout.tmpl and pages/.
const TemplateRoot = "web/templates"
