package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

// TemplateRenderer renders the server-rendered pages. Each page is parsed
// into its own set with layout.tmpl so every page can define "content".
type TemplateRenderer struct {
	fsys    fs.FS
	pages   map[string]*template.Template
	devMode bool
	logger  *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Filesystem rooted at the template directory (required)
	DevMode    bool         // Re-parse on every render
	Logger     *slog.Logger // Optional
}

// PageData is the model passed to every page.
type PageData struct {
	Title       string
	Page        string
	Admin       *domainauth.AdminUser
	SessionDays int
	IdleMinutes int
	CSRFToken   string
	RedirectURI string
	Email       string
	Error       string

	ProviderLogoutURL string
}

// NewTemplateRenderer parses layout.tmpl together with each pages/*.tmpl.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &TemplateRenderer{fsys: cfg.TemplateFS, devMode: cfg.DevMode, logger: logger}
	pages, err := r.parse()
	if err != nil {
		logger.Error("template parsing failed", slog.Any("error", err), slog.String("phase", "initialization"))
		return nil, err
	}
	r.pages = pages
	return r, nil
}

func (r *TemplateRenderer) parse() (map[string]*template.Template, error) {
	base, err := template.New("root").Funcs(templateFuncs()).ParseFS(r.fsys, "layout.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	files, err := fs.Glob(r.fsys, "pages/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		set, err := template.Must(base.Clone()).ParseFS(r.fsys, file)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		pages[strings.TrimSuffix(path.Base(file), ".tmpl")] = set
	}
	return pages, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"lower": strings.ToLower,
	}
}

// Render writes page inside the layout with the given status code.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	pages := r.pages
	if r.devMode {
		fresh, err := r.parse()
		if err != nil {
			r.logger.Error("template reload failed", slog.Any("error", err))
			return err
		}
		pages = fresh
	}

	set, ok := pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	if data.Page == "" {
		data.Page = page
	}

	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, "layout", data); err != nil {
		r.logger.Error("template execution failed", slog.String("template", page), slog.Any("error", err))
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Error("failed to write rendered template", slog.String("template", page), slog.Any("error", err))
		return err
	}
	return nil
}

// renderOrFail falls back to a plain error when the template cannot render.
func (r *TemplateRenderer) renderOrFail(w http.ResponseWriter, status int, page string, data PageData) {
	if err := r.Render(w, status, page, data); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
