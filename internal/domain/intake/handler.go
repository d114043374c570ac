package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/bloodbank/bloodbank/internal/domain/declaration"
	"github.com/bloodbank/bloodbank/internal/domain/location"
	"github.com/bloodbank/bloodbank/internal/platform/auth"
	"github.com/bloodbank/bloodbank/internal/platform/fhir"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/questionnaire", h.GetQuestionnaire)

	g := api.Group("/intake/sessions", auth.RequireRole(auth.RoleDonor, auth.RoleStaff))
	g.POST("", h.CreateSession)
	g.GET("/:id", h.GetSession)
	g.DELETE("/:id", h.CloseSession)
	g.PUT("/:id/fields/:name", h.SetField)

	g.POST("/:id/location/province", h.SelectProvince)
	g.POST("/:id/location/district", h.SelectDistrict)
	g.POST("/:id/location/ward", h.SelectWard)
	g.POST("/:id/location/retry", h.RetryLocation)

	g.PUT("/:id/answers/:field", h.SetAnswer)
	g.POST("/:id/answers/:field/toggle", h.Toggle)
	g.POST("/:id/answers/:field/other", h.ToggleOther)
	g.PUT("/:id/answers/:field/other", h.SetOtherText)
	g.POST("/:id/answers/:field/other/blur", h.BlurOther)

	g.POST("/:id/next", h.Next)
	g.POST("/:id/previous", h.Previous)
	g.POST("/:id/submit", h.Submit)
}

type createRequest struct {
	Fields map[string]string `json:"fields"`
}

type selectRequest struct {
	ID string `json:"id"`
}

type valueRequest struct {
	Value json.RawMessage `json:"value"`
}

type textRequest struct {
	Text string `json:"text"`
}

type toggleRequest struct {
	Tag     string `json:"tag"`
	Checked bool   `json:"checked"`
}

type submitResponse struct {
	Declaration *declaration.Submission `json:"declaration"`
}

func (h *Handler) GetQuestionnaire(c echo.Context) error {
	return c.JSON(http.StatusOK, declaration.Catalog())
}

// -- Session lifecycle --

func (h *Handler) CreateSession(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.Create(c.Request().Context(), req.Fields)
	if err != nil {
		return toHTTPError(c, nil, err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(c, nil, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) CloseSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Close(c.Request().Context(), id); err != nil {
		return toHTTPError(c, nil, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetField(c echo.Context) error {
	var req valueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var value string
	if err := json.Unmarshal(req.Value, &value); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "value must be a string")
	}
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return h.svc.SetField(c.Request().Context(), id, c.Param("name"), value)
	})
}

// -- Location --

func (h *Handler) SelectProvince(c echo.Context) error {
	return h.selectLevel(c, h.svc.SelectProvince)
}

func (h *Handler) SelectDistrict(c echo.Context) error {
	return h.selectLevel(c, h.svc.SelectDistrict)
}

func (h *Handler) SelectWard(c echo.Context) error {
	return h.selectLevel(c, h.svc.SelectWard)
}

func (h *Handler) RetryLocation(c echo.Context) error {
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return h.svc.RetryLocation(c.Request().Context(), id)
	})
}

func (h *Handler) selectLevel(c echo.Context, sel func(ctx context.Context, id uuid.UUID, optionID string) (*Session, error)) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return sel(c.Request().Context(), id, req.ID)
	})
}

// -- Declaration --

// SetAnswer sets a text or flag field. Multi-select fields change through
// the toggle endpoints.
func (h *Handler) SetAnswer(c echo.Context) error {
	f := declaration.Field(c.Param("field"))
	kind, ok := f.Kind()
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown declaration field")
	}
	var req valueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()

	switch kind {
	case declaration.KindText:
		var text string
		if err := json.Unmarshal(req.Value, &text); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "value must be a string")
		}
		return h.respond(c, func(id uuid.UUID) (*Session, error) {
			return h.svc.UpdateText(ctx, id, f, text)
		})
	case declaration.KindFlag:
		var flag bool
		if err := json.Unmarshal(req.Value, &flag); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "value must be a boolean")
		}
		return h.respond(c, func(id uuid.UUID) (*Session, error) {
			return h.svc.SetAgreement(ctx, id, flag)
		})
	}
	return echo.NewHTTPError(http.StatusBadRequest, "use the toggle endpoints for multi-select fields")
}

func (h *Handler) Toggle(c echo.Context) error {
	var req toggleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return h.svc.Toggle(c.Request().Context(), id, declaration.Field(c.Param("field")), req.Tag, req.Checked)
	})
}

func (h *Handler) ToggleOther(c echo.Context) error {
	var req toggleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return h.svc.ToggleOther(c.Request().Context(), id, declaration.Field(c.Param("field")), req.Checked)
	})
}

func (h *Handler) SetOtherText(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return h.svc.SetOtherText(c.Request().Context(), id, declaration.Field(c.Param("field")), req.Text)
	})
}

func (h *Handler) BlurOther(c echo.Context) error {
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return h.svc.BlurOther(c.Request().Context(), id, declaration.Field(c.Param("field")))
	})
}

func (h *Handler) Next(c echo.Context) error {
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return h.svc.Next(c.Request().Context(), id)
	})
}

func (h *Handler) Previous(c echo.Context) error {
	return h.respond(c, func(id uuid.UUID) (*Session, error) {
		return h.svc.Previous(c.Request().Context(), id)
	})
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	sub, sess, err := h.svc.Submit(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(c, sess, err)
	}
	return c.JSON(http.StatusCreated, submitResponse{Declaration: sub})
}

// -- Helpers --

func (h *Handler) respond(c echo.Context, op func(id uuid.UUID) (*Session, error)) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	sess, err := op(id)
	if err != nil {
		return toHTTPError(c, sess, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func sessionID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

// errorResponse carries the session alongside recoverable errors so the
// client can render recorded fetch errors and validation messages without
// another round trip.
type errorResponse struct {
	Message string                 `json:"message"`
	Outcome *fhir.OperationOutcome `json:"outcome,omitempty"`
	Session *Session               `json:"session,omitempty"`
}

func toHTTPError(c echo.Context, sess *Session, err error) error {
	var verr *declaration.ValidationError
	var ferr *location.FetchError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Message: err.Error(),
			Outcome: fhir.InvalidOutcome(questionOrder(), stringErrors(verr.Fields)),
			Session: sess,
		})
	case errors.Is(err, ErrLocationIncomplete):
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Message: err.Error(),
			Outcome: fhir.InvalidOutcome([]string{location.FieldAddress},
				map[string]string{location.FieldAddress: err.Error()}),
			Session: sess,
		})
	case errors.As(err, &ferr):
		return c.JSON(http.StatusBadGateway, errorResponse{Message: err.Error(), Session: sess})
	case errors.Is(err, location.ErrSuperseded):
		return c.JSON(http.StatusConflict, errorResponse{Message: err.Error(), Session: sess})
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, declaration.ErrNotOpen), errors.Is(err, declaration.ErrNotFinalStep):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrReadOnlyField),
		errors.Is(err, location.ErrUnknownOption),
		errors.Is(err, location.ErrNoParent),
		errors.Is(err, declaration.ErrUnknownField),
		errors.Is(err, declaration.ErrFieldType),
		errors.Is(err, declaration.ErrInvalidValue),
		errors.Is(err, declaration.ErrOptionDisabled),
		errors.Is(err, declaration.ErrOtherNotChecked):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func questionOrder() []string {
	qs := declaration.Catalog()
	order := make([]string, 0, len(qs))
	for _, q := range qs {
		order = append(order, string(q.Field))
	}
	return order
}

func stringErrors(errs declaration.FieldErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for f, msg := range errs {
		out[string(f)] = msg
	}
	return out
}
