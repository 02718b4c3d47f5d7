// Package web serves the catalog browser over HTTP.
//
// Routes:
//
//	GET  /                      entry list (?q=, ?page=, ?tag=, ?since=)
//	GET  /type/:code            entries of one model type
//	GET  /category/:id          entries of one category
//	GET  /entry/:id             entry detail with model and texture info
//	POST /entry/:id/open        reveal the folder in the file manager
//	POST /entry/:id/classify    set type, category and tags
//	GET  /entry/:id/zip         download the folder as a zip archive
//	GET  /serve-file/:id/*      a file inside the entry folder
//	GET  /serve-file            legacy form (?entry_id=&file=)
//	GET  /settings              root folder form
//	POST /settings              save root folder, optionally re-sync
//	GET  /media/*               cached thumbnails
//	GET  /ws                    live dashboard events
//	GET  /health                liveness and websocket client count
//	GET  /metrics               Prometheus metrics
package web

import (
	"context"
	"errors"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/modelshelf/modelshelf/internal/catalog/dashboard"
	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
	"github.com/modelshelf/modelshelf/internal/inspect"
	"github.com/modelshelf/modelshelf/internal/metrics"
)

// Store is the catalog the web UI reads and edits. *db.DB satisfies it.
type Store interface {
	QueryEntries(ctx context.Context, f db.EntryFilter) ([]*schema.Entry, error)
	CountEntries(ctx context.Context, f db.EntryFilter) (int, error)
	GetEntry(ctx context.Context, id int64) (*schema.Entry, error)
	GetModelTypeByCode(ctx context.Context, code string) (*schema.ModelType, error)
	GetCategory(ctx context.Context, id int64) (*schema.Category, error)
	ListModelTypes(ctx context.Context) ([]*schema.ModelType, error)
	ListCategories(ctx context.Context, typeID int64) ([]*schema.Category, error)
	ListTags(ctx context.Context) ([]*schema.Tag, error)
	SetEntryClassification(ctx context.Context, entryID int64, typeID, categoryID *int64) error
	SetEntryTags(ctx context.Context, entryID int64, names []string) error
	GetOrCreateSetting(ctx context.Context, key, def string) (string, error)
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Syncer runs a manual re-sync. *daemon.Trigger satisfies it.
type Syncer interface {
	RunManually(ctx context.Context) (*catsync.Result, error)
}

// Config holds server configuration.
type Config struct {
	// MediaRoot holds the thumbnail cache served under /media
	MediaRoot string

	// DefaultRootDir is shown when ROOT_DIR is unset
	DefaultRootDir string

	// PageSize is the number of entries per list page (default: 20)
	PageSize int

	// SyncWait bounds how long the settings page waits for a re-sync
	// (default: 10s)
	SyncWait time.Duration

	// Version is shown in the page footer
	Version string

	// Opener reveals folders (default: OpenFolder)
	Opener Opener

	// Logger for request and error logging (default: no-op)
	Logger *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	app       *fiber.App
	store     Store
	syncer    Syncer
	inspector *inspect.Inspector
	hub       *dashboard.Hub
	config    Config
	pages     map[string]*template.Template
	logger    *zap.Logger

	// ctx outlives requests; background re-syncs run under it
	ctx context.Context
}

// New builds the server and registers its routes. ctx bounds background
// work started by requests, such as re-syncs that outlive the settings
// request.
func New(ctx context.Context, store Store, syncer Syncer, inspector *inspect.Inspector, hub *dashboard.Hub, config Config) (*Server, error) {
	if store == nil || syncer == nil || inspector == nil || hub == nil {
		return nil, errors.New("web: store, syncer, inspector and hub are required")
	}
	if config.PageSize <= 0 {
		config.PageSize = 20
	}
	if config.SyncWait <= 0 {
		config.SyncWait = 10 * time.Second
	}
	if config.Opener == nil {
		config.Opener = OpenFolder
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Version == "" {
		config.Version = "dev"
	}

	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:     store,
		syncer:    syncer,
		inspector: inspector,
		hub:       hub,
		config:    config,
		pages:     pages,
		logger:    config.Logger,
		ctx:       ctx,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "modelshelf",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
		ReadTimeout:           30 * time.Second,
	})
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	app := s.app

	app.Use(recover.New())
	app.Use(s.observe)

	app.Get("/", s.handleIndex)
	app.Get("/type/:code", s.handleIndexByType)
	app.Get("/category/:id<int>", s.handleIndexByCategory)

	app.Get("/entry/:id<int>", s.handleDetail)
	app.Post("/entry/:id<int>/open", s.handleOpen)
	app.Post("/entry/:id<int>/classify", s.handleClassify)
	app.Get("/entry/:id<int>/zip", s.handleZip)

	app.Get("/serve-file/:id<int>/*", s.handleServeFile)
	app.Get("/serve-file", s.handleServeFileQuery)

	app.Get("/settings", s.handleSettings)
	app.Post("/settings", s.handleSettingsUpdate)

	app.Static("/media", s.config.MediaRoot)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		s.hub.Serve(c)
	}))

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// observe records request metrics and logs each request.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = fiber.StatusInternalServerError
	}

	route := c.Route().Path
	elapsed := time.Since(start)
	metrics.RecordHTTPRequest(c.Method(), route, status, elapsed)
	s.logger.Debug("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
	)
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	} else if db.IsNotFound(err) {
		code = fiber.StatusNotFound
	}

	msg := err.Error()
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		msg = "Internal Server Error"
	}
	return c.Status(code).SendString(msg)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
