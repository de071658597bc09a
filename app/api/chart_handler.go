package api

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chartsight/retriever"
	"chartsight/store"
	"chartsight/types"
)

type ChartHandler struct {
	store     store.ChartStorer
	retriever *retriever.Retriever
	cfg       *types.Config
	logger    *zap.Logger
}

func NewChartHandler(storer store.ChartStorer, r *retriever.Retriever, cfg *types.Config, logger *zap.Logger) *ChartHandler {
	return &ChartHandler{
		store:     storer,
		retriever: r,
		cfg:       cfg,
		logger:    logger,
	}
}

// HandleUpload saves an uploaded chart image, creates its record and kicks
// off embedding and map generation in the background. The record is created
// with a null embedding; the backfill worker retries anything the kick-off
// misses.
func (h *ChartHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	params := types.UploadParams{
		Timeframe:  c.FormValue("timeframe"),
		Instrument: c.FormValue("instrument"),
		Session:    c.FormValue("session"),
		BundleID:   c.FormValue("bundle_id"),
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	timeframe, _ := types.ParseTimeframe(params.Timeframe)
	session, _ := types.ParseSession(params.Session)

	filename := fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(fileHeader.Filename))
	path := filepath.Join(h.cfg.UploadDir, filename)
	if err := c.SaveFile(fileHeader, path); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}

	chart := &types.Chart{
		Filename:   filename,
		Timeframe:  timeframe,
		Instrument: strings.ToUpper(strings.TrimSpace(params.Instrument)),
		Session:    session,
	}
	if params.BundleID != "" {
		id, err := uuid.Parse(params.BundleID)
		if err != nil {
			return ErrBadRequest()
		}
		chart.BundleID = uuid.NullUUID{UUID: id, Valid: true}
	}

	if err := h.store.CreateChart(c.Context(), chart); err != nil {
		return fmt.Errorf("create chart record: %w", err)
	}

	go func() {
		ctx := context.Background()
		if err := h.retriever.EmbedAndStore(ctx, chart); err != nil {
			h.logger.Warn("upload embedding failed, worker will retry",
				zap.Int64("chart_id", chart.ID),
				zap.Error(err))
		}
	}()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"chart_id": chart.ID,
		"filename": chart.Filename,
	})
}

// HandleSimilar runs retrieval for a stored chart. A search failure or an
// empty corpus both produce a valid response; only failing to embed the
// query image is a hard error.
func (h *ChartHandler) HandleSimilar(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return ErrInvalidID()
	}

	var params types.SimilarParams
	if len(c.Body()) > 0 {
		if c.BodyParser(&params) != nil {
			return ErrBadRequest()
		}
		if errors := types.Validate(&params); len(errors) > 0 {
			return types.NewValidationError(errors)
		}
	}
	k := params.K
	if k <= 0 {
		k = h.cfg.DefaultK
	}

	analysis, err := h.retriever.AnalyzeChart(c.Context(), id, k)
	if err != nil {
		var searchErr *types.SearchError
		if errors.As(err, &searchErr) {
			h.logger.Error("all search tiers failed", zap.Int64("chart_id", id), zap.Error(err))
			return c.JSON(types.SimilarResponse{Success: false, Neighbors: []types.Neighbor{}, Count: 0})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"neighbors": analysis.Neighbors,
		"count":     len(analysis.Neighbors),
		"target":    analysis,
	})
}

// HandleGetChart returns one chart record with its map URLs.
func (h *ChartHandler) HandleGetChart(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return ErrInvalidID()
	}

	chart, err := h.store.GetChart(c.Context(), id)
	if err != nil {
		return ErrNotFound(id, "chart")
	}

	return c.JSON(fiber.Map{
		"chart_id":      chart.ID,
		"filename":      chart.Filename,
		"timeframe":     chart.Timeframe,
		"instrument":    chart.Instrument,
		"session":       chart.Session,
		"has_embedding": len(chart.Embedding) > 0,
		"depth_path":    chart.DepthPath,
		"edge_path":     chart.EdgePath,
		"gradient_path": chart.GradientPath,
	})
}
