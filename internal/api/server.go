// Package api is the HTTP management surface: schedule CRUD, occurrence
// lifecycle, next-time previews, the audit log, entity listing and health.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/google/uuid"

	"swamptimers/internal/automation"
	"swamptimers/internal/monitor"
	"swamptimers/internal/runtime/supervisor"
	"swamptimers/internal/storage"
	logx "swamptimers/pkg/logx"
)

// Deps are the collaborators the handlers use. Monitor and Tasks are
// optional and only feed the health report.
type Deps struct {
	Store   storage.ScheduleStore
	Audit   storage.AuditLog
	Client  automation.Client
	Monitor interface{ Status() monitor.Status }
	Tasks   func() []supervisor.TaskStats
	Log     logx.Logger
	Now     func() time.Time
}

type Config struct {
	// Token, when set, is required as a bearer token on every route except
	// the health check.
	Token        string
	Pprof        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	d        Deps
	app      *fiber.App
	validate *validator.Validate
	log      logx.Logger

	// writeMu serializes read-modify-write handlers so concurrent edits of
	// one schedule cannot overwrite each other.
	writeMu sync.Mutex
}

func New(d Deps, cfg Config) *Server {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Server{
		d:        d,
		validate: validator.New(),
		log:      d.Log,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "swamptimers",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Use(s.requestLog)
	s.routes(strings.TrimSpace(cfg.Token), cfg.Pprof)
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes(token string, withPprof bool) {
	r := s.app.Group("/api")
	r.Get("/health", s.health)

	if token != "" {
		r.Use(bearer(token))
	}
	if withPprof {
		r.Use(pprof.New(pprof.Config{Prefix: "/api"}))
	}

	r.Get("/schedules", s.listSchedules)
	r.Post("/schedules", s.createSchedule)
	r.Get("/schedules/:id", s.getSchedule)
	r.Put("/schedules/:id", s.updateSchedule)
	r.Delete("/schedules/:id", s.deleteSchedule)
	r.Post("/schedules/:id/toggle", s.toggleSchedule)
	r.Get("/schedules/:id/next", s.previewSchedule)

	r.Post("/schedules/:id/occurrences/start", s.startOccurrences)
	r.Post("/schedules/:id/occurrences/complete", s.completeOccurrence)
	r.Post("/schedules/:id/occurrences/skip", s.skipOccurrence)

	r.Get("/log", s.listLog)
	r.Delete("/log", s.clearLog)

	r.Get("/entities", s.listEntities)
	r.Get("/entities/:entity", s.getEntity)
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(addr) }()
	s.log.Info("api listening", logx.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
		s.log.Warn("api shutdown", logx.Err(err))
	}
	<-errCh
	s.log.Info("api stopped")
	return nil
}

func bearer(token string) fiber.Handler {
	want := []byte("Bearer " + token)
	return func(c *fiber.Ctx) error {
		if subtle.ConstantTimeCompare([]byte(c.Get(fiber.HeaderAuthorization)), want) != 1 {
			return fail(c, fiber.StatusUnauthorized, "missing or invalid bearer token")
		}
		return c.Next()
	}
}

// requestLog tags each request with an id and logs method, path, status
// and duration.
func (s *Server) requestLog(c *fiber.Ctx) error {
	id := c.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("X-Request-ID", id)
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	s.log.Debug("http request",
		logx.String("id", id),
		logx.String("method", c.Method()),
		logx.String("path", c.Path()),
		logx.Int("status", status),
		logx.Duration("took", time.Since(start)))
	return err
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fail(c, fe.Code, fe.Message)
	}
	s.log.Error("http handler failed", logx.String("path", c.Path()), logx.Err(err))
	return fail(c, fiber.StatusInternalServerError, err.Error())
}
