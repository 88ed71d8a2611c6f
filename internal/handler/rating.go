package handler

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"evalform/internal/domain"
	"evalform/internal/service"
)

type criterion struct {
	Key   string
	Label string
}

// criteria drives the per-variant rating controls, in canonical order.
var criteria = []criterion{
	{"accuracy", "Accuracy"},
	{"completeness", "Completeness"},
	{"usefulness", "Usefulness"},
	{"style_tone", "Style/Tone"},
}

var scoreValues = []string{"1", "2", "3", "4", "5"}

// resultsHeader is the column order of the downloadable CSV.
var resultsHeader = []string{
	"ts", "participant", "base_id", "variant_id", "question_text",
	"variant_label", "accuracy", "completeness", "usefulness", "style_tone", "comment",
}

// RatingHandler serves the rating form pages and the JSON API around a
// RatingService.
type RatingHandler struct {
	svc      *service.RatingService
	validate *validator.Validate
	study    string
}

// NewRatingHandler creates a new rating handler
func NewRatingHandler(svc *service.RatingService, studyTitle string) *RatingHandler {
	return &RatingHandler{
		svc:      svc,
		validate: validator.New(),
		study:    studyTitle,
	}
}

// Register registers the form and API routes
func (h *RatingHandler) Register(e *echo.Echo) {
	e.GET("/", h.Home)
	e.POST("/session", h.StartSession)
	e.GET("/rate", h.RatePage)
	e.POST("/rate", h.SaveRatings)

	api := e.Group("/api")
	api.POST("/sessions", h.BeginSession)
	api.GET("/sessions/:name", h.GetSession)
	api.GET("/sessions/:name/block", h.GetCurrentBlock)
	api.POST("/sessions/:name/ratings", h.SubmitRatings)
	api.GET("/participants/:name/results.csv", h.DownloadResults)
}

// ---- HTML pages ----

type indexPage struct {
	Study string
	Total int
	Name  string
	Error string
}

type formPage struct {
	Study     string
	State     *domain.SessionState
	Block     *domain.Block
	NameQuery string
	Criteria  []criterion
	// ScoreValues are the selectable scores as form values.
	ScoreValues []string
	// Scores and Comments re-populate the form after a failed save.
	Scores   map[string]map[string]string
	Comments map[string]string
	Warning  string
}

// Home renders the name-entry page
func (h *RatingHandler) Home(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", indexPage{
		Study: h.study,
		Total: h.svc.TotalBlocks(),
	})
}

// StartSession begins (or resumes) a session from the name-entry form and
// redirects to the rating page.
func (h *RatingHandler) StartSession(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if _, err := h.svc.Begin(c.Request().Context(), name); err != nil {
		if errors.Is(err, service.ErrNameRequired) {
			return c.Render(http.StatusUnprocessableEntity, "index.html", indexPage{
				Study: h.study,
				Total: h.svc.TotalBlocks(),
				Error: "Enter your name to begin.",
			})
		}
		return c.Render(http.StatusBadGateway, "index.html", indexPage{
			Study: h.study,
			Total: h.svc.TotalBlocks(),
			Name:  name,
			Error: "Could not load your progress. Please try again.",
		})
	}
	return c.Redirect(http.StatusSeeOther, "/rate?name="+url.QueryEscape(name))
}

// RatePage renders the current block's rating form, or the completion page.
func (h *RatingHandler) RatePage(c echo.Context) error {
	name := strings.TrimSpace(c.QueryParam("name"))
	if name == "" {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	state, block, err := h.currentOrBegin(c, name)
	if err != nil {
		return h.pageError(c, err)
	}
	if block == nil {
		return c.Render(http.StatusOK, "done.html", h.donePage(state, name))
	}
	return c.Render(http.StatusOK, "form.html", h.formPage(state, block, name, "", nil))
}

// SaveRatings handles the form submission for the current block.
func (h *RatingHandler) SaveRatings(c echo.Context) error {
	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	state, block, err := h.currentOrBegin(c, name)
	if err != nil {
		return h.pageError(c, err)
	}
	if block == nil {
		return c.Render(http.StatusOK, "done.html", h.donePage(state, name))
	}

	form, err := c.FormParams()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form data")
	}
	ratings := ratingsFromForm(block, form)

	if _, err := h.svc.Submit(c.Request().Context(), name, ratings); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			page := h.formPage(state, block, name,
				"Please score all criteria for all answers before continuing.", form)
			return c.Render(http.StatusUnprocessableEntity, "form.html", page)
		}
		var storeErr *domain.StoreError
		if errors.As(err, &storeErr) {
			page := h.formPage(state, block, name,
				"Saving failed, your ratings were kept on this page. Please try again.", form)
			return c.Render(http.StatusBadGateway, "form.html", page)
		}
		return h.pageError(c, err)
	}

	// Redirect so a refresh never re-submits the block.
	return c.Redirect(http.StatusSeeOther, "/rate?name="+url.QueryEscape(name))
}

// currentOrBegin fetches the session, starting one transparently when the
// participant followed a direct link.
func (h *RatingHandler) currentOrBegin(c echo.Context, name string) (*domain.SessionState, *domain.Block, error) {
	ctx := c.Request().Context()
	state, block, err := h.svc.Current(ctx, name)
	if errors.Is(err, domain.ErrSessionNotFound) {
		if _, err := h.svc.Begin(ctx, name); err != nil {
			return nil, nil, err
		}
		state, block, err = h.svc.Current(ctx, name)
		return state, block, err
	}
	return state, block, err
}

func (h *RatingHandler) formPage(state *domain.SessionState, block *domain.Block, name, warning string, form url.Values) formPage {
	scores := make(map[string]map[string]string, len(block.Items))
	comments := make(map[string]string, len(block.Items))
	for _, item := range block.Items {
		perItem := make(map[string]string, len(criteria))
		for _, crit := range criteria {
			perItem[crit.Key] = form.Get("score." + item.VariantID + "." + crit.Key)
		}
		scores[item.VariantID] = perItem
		comments[item.VariantID] = form.Get("comment." + item.VariantID)
	}
	return formPage{
		Study:       h.study,
		State:       state,
		Block:       block,
		NameQuery:   url.QueryEscape(name),
		Criteria:    criteria,
		ScoreValues: scoreValues,
		Scores:      scores,
		Comments:    comments,
		Warning:     warning,
	}
}

type donePage struct {
	Study     string
	State     *domain.SessionState
	NameQuery string
}

func (h *RatingHandler) donePage(state *domain.SessionState, name string) donePage {
	return donePage{Study: h.study, State: state, NameQuery: url.QueryEscape(name)}
}

func (h *RatingHandler) pageError(c echo.Context, err error) error {
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		return echo.NewHTTPError(http.StatusBadGateway, "result store unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// ratingsFromForm collects the per-variant scores and comments posted for
// the block. Unset radios stay nil so the service reports them as missing.
func ratingsFromForm(block *domain.Block, form url.Values) []service.VariantRating {
	ratings := make([]service.VariantRating, 0, len(block.Items))
	for _, item := range block.Items {
		r := service.VariantRating{
			VariantID: item.VariantID,
			Comment:   form.Get("comment." + item.VariantID),
		}
		r.Accuracy = formScore(form, item.VariantID, "accuracy")
		r.Completeness = formScore(form, item.VariantID, "completeness")
		r.Usefulness = formScore(form, item.VariantID, "usefulness")
		r.StyleTone = formScore(form, item.VariantID, "style_tone")
		ratings = append(ratings, r)
	}
	return ratings
}

func formScore(form url.Values, variantID, criterion string) *int {
	raw := form.Get("score." + variantID + "." + criterion)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

// ---- JSON API ----

// BeginSessionRequest represents the request to begin a rating session
type BeginSessionRequest struct {
	Name string `json:"name" validate:"required"`
}

// VariantRatingRequest carries one variant's scores in a submission
type VariantRatingRequest struct {
	VariantID    string `json:"variant_id" validate:"required"`
	Accuracy     *int   `json:"accuracy" validate:"required,min=1,max=5"`
	Completeness *int   `json:"completeness" validate:"required,min=1,max=5"`
	Usefulness   *int   `json:"usefulness" validate:"required,min=1,max=5"`
	StyleTone    *int   `json:"style_tone" validate:"required,min=1,max=5"`
	Comment      string `json:"comment"`
}

// SubmitRatingsRequest represents the request to save the current block
type SubmitRatingsRequest struct {
	Ratings []VariantRatingRequest `json:"ratings" validate:"required,min=1,dive"`
}

// BeginSession starts or resumes a session
func (h *RatingHandler) BeginSession(c echo.Context) error {
	var req BeginSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	state, err := h.svc.Begin(c.Request().Context(), req.Name)
	if err != nil {
		return h.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, state)
}

// GetSession returns the participant's session state
func (h *RatingHandler) GetSession(c echo.Context) error {
	state, _, err := h.svc.Current(c.Request().Context(), c.Param("name"))
	if err != nil {
		return h.apiError(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

// GetCurrentBlock returns the block the participant should rate next
func (h *RatingHandler) GetCurrentBlock(c echo.Context) error {
	state, block, err := h.svc.Current(c.Request().Context(), c.Param("name"))
	if err != nil {
		return h.apiError(c, err)
	}
	if block == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"complete": true,
			"session":  state,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"complete": false,
		"session":  state,
		"block":    block,
	})
}

// SubmitRatings saves the current block's ratings and advances the session
func (h *RatingHandler) SubmitRatings(c echo.Context) error {
	var req SubmitRatingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
	}

	ratings := make([]service.VariantRating, 0, len(req.Ratings))
	for _, r := range req.Ratings {
		ratings = append(ratings, service.VariantRating{
			VariantID:    r.VariantID,
			Accuracy:     r.Accuracy,
			Completeness: r.Completeness,
			Usefulness:   r.Usefulness,
			StyleTone:    r.StyleTone,
			Comment:      r.Comment,
		})
	}

	state, err := h.svc.Submit(c.Request().Context(), c.Param("name"), ratings)
	if err != nil {
		return h.apiError(c, err)
	}
	return c.JSON(http.StatusCreated, state)
}

// DownloadResults streams every row the participant has saved as CSV
func (h *RatingHandler) DownloadResults(c echo.Context) error {
	name := c.Param("name")
	events, err := h.svc.Results(c.Request().Context(), name)
	if err != nil {
		return h.apiError(c, err)
	}

	filename := fmt.Sprintf("results_%s.csv", domain.NormalizeParticipant(name))
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().WriteHeader(http.StatusOK)

	w := csv.NewWriter(c.Response())
	if err := w.Write(resultsHeader); err != nil {
		return err
	}
	for _, ev := range events {
		record := []string{
			ev.Timestamp.UTC().Format(time.RFC3339),
			ev.Participant,
			ev.BaseID,
			ev.VariantID,
			ev.QuestionText,
			ev.VariantLabel,
			strconv.Itoa(ev.Scores.Accuracy),
			strconv.Itoa(ev.Scores.Completeness),
			strconv.Itoa(ev.Scores.Usefulness),
			strconv.Itoa(ev.Scores.StyleTone),
			ev.Comment,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (h *RatingHandler) apiError(c echo.Context, err error) error {
	var validationErr *domain.ValidationError
	var storeErr *domain.StoreError
	switch {
	case errors.Is(err, service.ErrNameRequired):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrSessionComplete):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrUnknownVariant):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.As(err, &validationErr):
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "incomplete ratings",
			"missing": validationErr.Missing,
		})
	case errors.As(err, &storeErr):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "saving failed, please retry"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
