package web

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
)

// ===== Listing =====

func (s *Server) handleIndex(c *fiber.Ctx) error {
	return s.renderList(c, db.EntryFilter{}, "")
}

func (s *Server) handleIndexByType(c *fiber.Ctx) error {
	code := c.Params("code")
	t, err := s.store.GetModelTypeByCode(c.Context(), code)
	if db.IsNotFound(err) {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown model type %q", code))
	}
	if err != nil {
		return err
	}
	return s.renderList(c, db.EntryFilter{TypeID: t.ID}, t.Name)
}

func (s *Server) handleIndexByCategory(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrNotFound
	}
	cat, err := s.store.GetCategory(c.Context(), int64(id))
	if db.IsNotFound(err) {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown category %d", id))
	}
	if err != nil {
		return err
	}
	return s.renderList(c, db.EntryFilter{CategoryID: cat.ID}, cat.Name)
}

// renderList applies the query-string filters on top of base and renders
// one page. XHR requests get only the entries fragment.
func (s *Server) renderList(c *fiber.Ctx, base db.EntryFilter, heading string) error {
	ctx := c.Context()
	f := base
	f.Query = strings.TrimSpace(c.Query("q"))
	f.Tag = strings.TrimSpace(c.Query("tag"))

	var notices []notice
	sinceText := strings.TrimSpace(c.Query("since"))
	if sinceText != "" {
		since, err := db.ParseSince(sinceText, time.Now())
		if err != nil {
			notices = append(notices, notice{Level: "warning", Text: err.Error()})
		} else {
			f.Since = &since
		}
	}

	total, err := s.store.CountEntries(ctx, f)
	if err != nil {
		return err
	}
	page := newPage(c.Query("page"), total, s.config.PageSize)
	f.Limit = s.config.PageSize
	f.Offset = page.offset()

	entries, err := s.store.QueryEntries(ctx, f)
	if err != nil {
		return err
	}

	data := listData{
		Entries: entries,
		Page:    page,
		Query:   f.Query,
		Tag:     f.Tag,
		Since:   sinceText,
		Heading: heading,
		Path:    c.Path(),
	}

	if c.Get(fiber.HeaderXRequestedWith) == "XMLHttpRequest" {
		return s.renderFragment(c, "index", "entries", data)
	}

	nav, err := s.navigation(c)
	if err != nil {
		return err
	}
	return s.render(c, "index", pageData{Title: lo.Ternary(heading == "", "Library", heading), Nav: nav, Notices: notices, Data: data})
}

// ===== Detail =====

func (s *Server) entry(c *fiber.Ctx) (*schema.Entry, error) {
	id, err := c.ParamsInt("id")
	if err != nil {
		return nil, fiber.ErrNotFound
	}
	e, err := s.store.GetEntry(c.Context(), int64(id))
	if db.IsNotFound(err) {
		return nil, fiber.NewError(fiber.StatusNotFound, "entry not found")
	}
	return e, err
}

func (s *Server) handleDetail(c *fiber.Ctx) error {
	e, err := s.entry(c)
	if err != nil {
		return err
	}

	imageExists := false
	if thumb := e.ThumbFile(s.config.MediaRoot); thumb != "" {
		if info, err := os.Stat(thumb); err == nil && info.Mode().IsRegular() {
			imageExists = true
		}
	}

	baseURL := fmt.Sprintf("/serve-file/%d/", e.ID)
	report := s.inspector.Inspect(e)
	textures := make([]textureView, len(report.Textures))
	for i, t := range report.Textures {
		textures[i] = textureView{Texture: t, Preview: baseURL + escapePath(t.RelPath())}
	}

	nav, err := s.navigation(c)
	if err != nil {
		return err
	}
	categories, err := s.store.ListCategories(c.Context(), 0)
	if err != nil {
		return err
	}

	return s.render(c, "detail", pageData{
		Title: e.Name,
		Nav:   nav,
		Data: detailData{
			Entry:        e,
			ImageExists:  imageExists,
			Report:       report,
			Textures:     textures,
			ModelRelPath: report.ModelRelPath,
			BaseURL:      baseURL,
			Categories:   categories,
			TagText:      strings.Join(e.Tags, ", "),
		},
	})
}

func (s *Server) handleOpen(c *fiber.Ctx) error {
	e, err := s.entry(c)
	if err != nil {
		return err
	}
	if err := s.config.Opener(e.Path); err != nil {
		s.logger.Warn("failed to open folder", zap.String("path", e.Path), zap.Error(err))
		return c.JSON(fiber.Map{"status": "error", "message": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "message": "opened " + e.Path})
}

func (s *Server) handleClassify(c *fiber.Ctx) error {
	e, err := s.entry(c)
	if err != nil {
		return err
	}

	typeID, err := optionalID(c.FormValue("type_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid type_id")
	}
	categoryID, err := optionalID(c.FormValue("category_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid category_id")
	}

	ctx := c.Context()
	// Unknown categories and type/category mismatches are client errors.
	if err := s.store.SetEntryClassification(ctx, e.ID, typeID, categoryID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	tags := lo.Filter(strings.Split(c.FormValue("tags"), ","), func(t string, _ int) bool {
		return strings.TrimSpace(t) != ""
	})
	if err := s.store.SetEntryTags(ctx, e.ID, tags); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.Redirect(fmt.Sprintf("/entry/%d", e.ID), fiber.StatusSeeOther)
}

func optionalID(v string) (*int64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("invalid id")
	}
	return &id, nil
}

// ===== Files =====

func (s *Server) handleZip(c *fiber.Ctx) error {
	e, err := s.entry(c)
	if err != nil {
		return err
	}
	info, err := os.Stat(e.Path)
	if err != nil || !info.IsDir() {
		return fiber.NewError(fiber.StatusNotFound, "entry folder not found")
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", e.Name+".zip"))

	if err := writeZip(c.Response().BodyWriter(), e.Path); err != nil {
		s.logger.Error("failed to create zip", zap.String("entry", e.Name), zap.Error(err))
		c.Response().ResetBody()
		c.Response().Header.Del(fiber.HeaderContentDisposition)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create zip archive")
	}
	return nil
}

func (s *Server) handleServeFile(c *fiber.Ctx) error {
	rel, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return fiber.ErrNotFound
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return fiber.ErrNotFound
	}
	return s.serveEntryFile(c, int64(id), rel)
}

func (s *Server) handleServeFileQuery(c *fiber.Ctx) error {
	idText, rel := c.Query("entry_id"), c.Query("file")
	if idText == "" || rel == "" {
		return fiber.NewError(fiber.StatusNotFound, "invalid parameters")
	}
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "invalid parameters")
	}
	return s.serveEntryFile(c, id, rel)
}

func (s *Server) serveEntryFile(c *fiber.Ctx, id int64, rel string) error {
	e, err := s.store.GetEntry(c.Context(), id)
	if db.IsNotFound(err) {
		return fiber.NewError(fiber.StatusNotFound, "entry not found")
	}
	if err != nil {
		return err
	}

	path, err := resolveInside(e.Path, rel)
	if err != nil {
		s.logger.Debug("rejected file request", zap.Int64("entry", id), zap.String("file", rel), zap.Error(err))
		return fiber.NewError(fiber.StatusNotFound, "file not found or invalid path")
	}
	return c.SendFile(path)
}

// ===== Settings =====

func (s *Server) handleSettings(c *fiber.Ctx) error {
	return s.renderSettings(c, nil)
}

func (s *Server) handleSettingsUpdate(c *fiber.Ctx) error {
	root := strings.TrimSpace(c.FormValue("root"))
	if root == "" {
		return s.renderSettings(c, []notice{{Level: "error", Text: "Root folder path is required."}})
	}
	if err := s.store.SetSetting(c.Context(), schema.SettingRootDir, root); err != nil {
		return err
	}
	notices := []notice{{Level: "success", Text: "Root folder path updated."}}

	if c.FormValue("action") == "resync" {
		notices = append(notices, s.resync(root))
	}
	return s.renderSettings(c, notices)
}

// resync starts a sync of root that outlives the request and waits up to
// SyncWait for its outcome. When the call joins a run that was already
// scanning another root, a second run follows it.
func (s *Server) resync(root string) notice {
	type outcome struct {
		res *catsync.Result
		err error
	}
	want, err := filepath.Abs(root)
	if err != nil {
		want = root
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.syncer.RunManually(s.ctx)
		if err == nil && res != nil && res.Root != "" && res.Root != want {
			s.logger.Debug("joined a sync of the previous root, running again",
				zap.String("previous", res.Root), zap.String("root", want))
			res, err = s.syncer.RunManually(s.ctx)
		}
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return notice{Level: "error", Text: "Re-sync failed: " + o.err.Error()}
		}
		if len(o.res.Failed) > 0 {
			return notice{Level: "warning", Text: fmt.Sprintf(
				"Re-synced with %d folder errors: %s.", len(o.res.Failed), strings.Join(o.res.FailedNames(), ", "))}
		}
		return notice{Level: "success", Text: fmt.Sprintf(
			"Re-synced successfully: %d added, %d updated, %d removed.",
			len(o.res.Created), len(o.res.Updated), len(o.res.Deleted))}
	case <-time.After(s.config.SyncWait):
		return notice{Level: "info", Text: "Re-sync is still running; results will appear when it finishes."}
	}
}

func (s *Server) renderSettings(c *fiber.Ctx, notices []notice) error {
	ctx := c.Context()
	root, err := s.store.GetOrCreateSetting(ctx, schema.SettingRootDir, s.config.DefaultRootDir)
	if err != nil {
		return err
	}
	lastSync, err := s.store.GetSetting(ctx, schema.SettingLastSyncAt)
	if err != nil && !db.IsNotFound(err) {
		return err
	}
	nav, err := s.navigation(c)
	if err != nil {
		return err
	}
	return s.render(c, "settings", pageData{
		Title:   "Settings",
		Nav:     nav,
		Notices: notices,
		Data:    settingsData{Root: root, LastSyncAt: lastSync},
	})
}
