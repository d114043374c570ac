package location

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public lookups on api and the admin writes behind
// the admin role.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/provinces", h.ListProvinces)
	api.GET("/provinces/:id/districts", h.ListDistricts)
	api.GET("/districts/:id/wards", h.ListWards)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/provinces", h.CreateProvince)
	admin.PUT("/provinces/:id", h.UpdateProvince)
	admin.DELETE("/provinces/:id", h.DeleteProvince)
	admin.POST("/provinces/:id/districts", h.CreateDistrict)
	admin.PUT("/districts/:id", h.UpdateDistrict)
	admin.DELETE("/districts/:id", h.DeleteDistrict)
	admin.POST("/districts/:id/wards", h.CreateWard)
	admin.PUT("/wards/:id", h.UpdateWard)
	admin.DELETE("/wards/:id", h.DeleteWard)
}

// -- Lookups --

func (h *Handler) ListProvinces(c echo.Context) error {
	items, err := h.svc.ListProvinces(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListDistricts(c echo.Context) error {
	items, err := h.svc.ListDistricts(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListWards(c echo.Context) error {
	items, err := h.svc.ListWards(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Admin --

func (h *Handler) CreateProvince(c echo.Context) error {
	var p Province
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SaveProvince(c.Request().Context(), &p); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdateProvince(c echo.Context) error {
	var p Province
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = c.Param("id")
	if err := h.svc.SaveProvince(c.Request().Context(), &p); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProvince(c echo.Context) error {
	if err := h.svc.DeleteProvince(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateDistrict(c echo.Context) error {
	var d District
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ProvinceID = c.Param("id")
	if err := h.svc.SaveDistrict(c.Request().Context(), &d); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDistrict(c echo.Context) error {
	var d District
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = c.Param("id")
	if err := h.svc.SaveDistrict(c.Request().Context(), &d); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDistrict(c echo.Context) error {
	if err := h.svc.DeleteDistrict(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateWard(c echo.Context) error {
	var w Ward
	if err := c.Bind(&w); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	w.DistrictID = c.Param("id")
	if err := h.svc.SaveWard(c.Request().Context(), &w); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) UpdateWard(c echo.Context) error {
	var w Ward
	if err := c.Bind(&w); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	w.ID = c.Param("id")
	if err := h.svc.SaveWard(c.Request().Context(), &w); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) DeleteWard(c echo.Context) error {
	if err := h.svc.DeleteWard(c.Request().Context(), c.Param("id")); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
