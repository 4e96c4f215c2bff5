package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdhomie/internal/errors"
	"github.com/tphakala/birdhomie/internal/logger"
)

// SpeciesCorrection sets a visit's species either by iNaturalist taxon id
// or by an iNaturalist taxon URL
type SpeciesCorrection struct {
	TaxonID        int    `json:"taxon_id,omitempty"`
	INaturalistURL string `json:"inaturalist_url,omitempty"`
}

// CoverRequest selects the cover detection of a visit
type CoverRequest struct {
	DetectionID uint `json:"detection_id"`
}

// GetVisit handles GET /visits/:id
func (c *Controller) GetVisit(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return c.handleDomainError(ctx, err, "invalid visit id")
	}
	v, err := c.deps.Visits.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return c.handleDomainError(ctx, err, "failed to get visit")
	}
	return ctx.JSON(http.StatusOK, v)
}

// CorrectVisitSpecies handles PUT /visits/:id/species. The taxon is
// resolved and stored before the override is written.
func (c *Controller) CorrectVisitSpecies(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return c.handleDomainError(ctx, err, "invalid visit id")
	}
	var req SpeciesCorrection
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}
	if (req.TaxonID > 0) == (req.INaturalistURL != "") {
		return c.HandleError(ctx, nil, "exactly one of taxon_id or inaturalist_url is required", http.StatusBadRequest)
	}

	rctx := ctx.Request().Context()
	if _, err := c.deps.Visits.GetByID(rctx, id); err != nil {
		return c.handleDomainError(ctx, err, "failed to get visit")
	}

	var taxonID int
	if req.TaxonID > 0 {
		taxonID, err = c.deps.Resolver.ResolveByID(rctx, req.TaxonID)
	} else {
		taxonID, err = c.deps.Resolver.ResolveURL(rctx, req.INaturalistURL)
	}
	if err != nil {
		return c.handleDomainError(ctx, err, "failed to resolve taxon")
	}

	if err := c.deps.Visits.CorrectSpecies(rctx, id, taxonID); err != nil {
		return c.handleDomainError(ctx, err, "failed to correct species")
	}
	c.log.Info("visit species corrected",
		logger.Int64("visit_id", int64(id)),
		logger.Int("taxon_id", taxonID))
	return c.respondVisit(ctx, id)
}

// SetVisitCover handles PUT /visits/:id/cover
func (c *Controller) SetVisitCover(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return c.handleDomainError(ctx, err, "invalid visit id")
	}
	var req CoverRequest
	if err := ctx.Bind(&req); err != nil || req.DetectionID == 0 {
		return c.HandleError(ctx, err, "detection_id is required", http.StatusBadRequest)
	}
	if err := c.deps.Visits.SetCover(ctx.Request().Context(), id, req.DetectionID); err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "detection does not belong to visit", http.StatusNotFound)
		}
		return c.handleDomainError(ctx, err, "failed to set cover")
	}
	return c.respondVisit(ctx, id)
}

func (c *Controller) respondVisit(ctx echo.Context, id uint) error {
	v, err := c.deps.Visits.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return c.handleDomainError(ctx, err, "failed to get visit")
	}
	return ctx.JSON(http.StatusOK, v)
}
