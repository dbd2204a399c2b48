package server

import (
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"skypost/models"
)

type ServerConfig struct {

	// Reports holds the latest cycle report per feed
	Reports *ReportStore
}

// ReportStore keeps the most recent cycle report for each feed for the
// status endpoint.
type ReportStore struct {
	sync.RWMutex
	reports map[string]*models.CycleReport
}

func NewReportStore() *ReportStore {
	return &ReportStore{
		reports: make(map[string]*models.CycleReport),
	}
}

func (s *ReportStore) Put(report *models.CycleReport) {
	s.Lock()
	defer s.Unlock()
	s.reports[report.Feed] = report
}

func (s *ReportStore) Snapshot() map[string]*models.CycleReport {
	s.RLock()
	defer s.RUnlock()
	snapshot := make(map[string]*models.CycleReport, len(s.reports))
	for id, report := range s.reports {
		snapshot[id] = report
	}
	return snapshot
}

// Returns a fiber.App instance serving health, status and metrics for
// the skypost serve loop
func Server(config *ServerConfig) *fiber.App {

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(config.Reports.Snapshot())
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}
