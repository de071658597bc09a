package server

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"chartsight/app/api"
	"chartsight/retriever"
	"chartsight/store"
	"chartsight/types"
)

type Server struct {
	listenAddr string
	app        *fiber.App
	logger     *zap.Logger
}

// New wires the HTTP surface around the already-constructed retrieval
// components. Model sessions and the store are built once in main and
// injected here.
func New(addr string, storer store.ChartStorer, r *retriever.Retriever, cfg *types.Config, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
		BodyLimit:    32 * 1024 * 1024,
	})

	var (
		checkHandler = api.NewCheckHandler()
		chartHandler = api.NewChartHandler(storer, r, cfg, logger)
		check        = app.Group("/check")
		apiv1        = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/charts", chartHandler.HandleUpload)
	apiv1.Get("/charts/:id", chartHandler.HandleGetChart)
	apiv1.Post("/charts/:id/similar", chartHandler.HandleSimilar)

	// Map and upload directories are served as static assets so the URLs in
	// retrieval responses resolve.
	app.Static("/static/uploads", cfg.UploadDir)
	app.Static("/static/maps", cfg.MapsDir)

	return &Server{
		listenAddr: addr,
		app:        app,
		logger:     logger,
	}
}

func (s *Server) Run() error {
	s.logger.Info("http server listening", zap.String("addr", s.listenAddr))
	return s.app.Listen(s.listenAddr)
}

func (s *Server) Stop() error {
	s.logger.Info("server stopping")
	return s.app.Shutdown()
}
