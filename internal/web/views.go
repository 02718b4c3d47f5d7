package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	"github.com/modelshelf/modelshelf/internal/inspect"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames are the full pages; each is parsed together with layout.html.
var pageNames = []string{"index", "detail", "settings"}

type notice struct {
	Level string // success, info, warning, error
	Text  string
}

type navData struct {
	Types      []*schema.ModelType
	Categories []*schema.Category
	Tags       []*schema.Tag
}

type pageData struct {
	Title   string
	Version string
	Nav     navData
	Notices []notice
	Data    interface{}
}

type listData struct {
	Entries []*schema.Entry
	Page    page
	Query   string
	Tag     string
	Since   string
	Heading string
	Path    string
}

// PageURL links to page n of the current listing, keeping the filters.
func (d listData) PageURL(n int) string {
	v := url.Values{}
	if d.Query != "" {
		v.Set("q", d.Query)
	}
	if d.Tag != "" {
		v.Set("tag", d.Tag)
	}
	if d.Since != "" {
		v.Set("since", d.Since)
	}
	v.Set("page", strconv.Itoa(n))
	return d.Path + "?" + v.Encode()
}

type textureView struct {
	inspect.Texture
	Preview string
}

type detailData struct {
	Entry        *schema.Entry
	ImageExists  bool
	Report       *inspect.Report
	Textures     []textureView
	ModelRelPath string
	BaseURL      string
	Categories   []*schema.Category
	TagText      string
}

type settingsData struct {
	Root       string
	LastSyncAt string
}

// page is one page of a paginated listing. Out-of-range or malformed page
// numbers fall back to the nearest valid page.
type page struct {
	Number   int
	NumPages int
	Total    int
	size     int
}

func newPage(raw string, total, size int) page {
	numPages := (total + size - 1) / size
	if numPages < 1 {
		numPages = 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	switch {
	case err != nil || n < 1:
		n = 1
	case n > numPages:
		n = numPages
	}
	return page{Number: n, NumPages: numPages, Total: total, size: size}
}

func (p page) offset() int { return (p.Number - 1) * p.size }
func (p page) HasPrev() bool { return p.Number > 1 }
func (p page) HasNext() bool { return p.Number < p.NumPages }
func (p page) Prev() int     { return p.Number - 1 }
func (p page) Next() int     { return p.Number + 1 }

// escapePath escapes each segment of a slash-separated path.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

var funcs = template.FuncMap{
	"bytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
	"ago": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return humanize.Time(*t)
	},
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"mediaURL": func(ref *string) string {
		if ref == nil || *ref == "" {
			return ""
		}
		return "/media/" + escapePath(*ref)
	},
	"eqID": func(a *int64, b int64) bool { return a != nil && *a == b },
}

func parseTemplates() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/entries.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// render executes a full page.
func (s *Server) render(c *fiber.Ctx, page string, data pageData) error {
	data.Version = s.config.Version
	return s.renderFragment(c, page, "layout", data)
}

// renderFragment executes one named template of a page set.
func (s *Server) renderFragment(c *fiber.Ctx, page, name string, data interface{}) error {
	t, ok := s.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

// navigation loads the sidebar lists.
func (s *Server) navigation(c *fiber.Ctx) (navData, error) {
	ctx := c.Context()
	types, err := s.store.ListModelTypes(ctx)
	if err != nil {
		return navData{}, err
	}
	cats, err := s.store.ListCategories(ctx, 0)
	if err != nil {
		return navData{}, err
	}
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return navData{}, err
	}
	return navData{Types: types, Categories: cats, Tags: tags}, nil
}
