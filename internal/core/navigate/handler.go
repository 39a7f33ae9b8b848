package navigate

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"navigator/internal/core/job"
	"navigator/internal/core/nav"
	"navigator/internal/utils/parser"
)

type Handler struct {
	service *Service
	jobs    *job.JobService
}

func NewHandler(service *Service, jobs *job.JobService) *Handler {
	return &Handler{service: service, jobs: jobs}
}

type errorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Failure *nav.Failure `json:"failure,omitempty"`
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(errorResponse{Error: msg})
}

type CreateResponse struct {
	Success bool        `json:"success"`
	JobID   string      `json:"job_id"`
	Goal    nav.Goal    `json:"goal"`
	Result  *nav.Result `json:"result,omitempty"`
}

// goal parses the body into a validated goal. A non-nil errorResponse is
// meant for a 400.
func (h *Handler) goal(c *fiber.Ctx) (Request, nav.Goal, *errorResponse) {
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return req, nav.Goal{}, &errorResponse{Error: "invalid body"}
	}
	g, err := h.service.Goal(req)
	if err != nil {
		var f *nav.Failure
		if errors.As(err, &f) {
			return req, nav.Goal{}, &errorResponse{Error: f.Detail, Failure: f}
		}
		return req, nav.Goal{}, &errorResponse{Error: err.Error()}
	}
	return req, g, nil
}

// HandleCreate queues a navigation, or runs it inline when sync is set.
func (h *Handler) HandleCreate(c *fiber.Ctx) error {
	req, g, bad := h.goal(c)
	if bad != nil {
		return c.Status(fiber.StatusBadRequest).JSON(bad)
	}
	if req.Sync {
		res := h.service.Run(c.UserContext(), uuid.NewString(), g)
		return c.JSON(CreateResponse{Success: res.Succeeded(), JobID: res.GoalID, Goal: g, Result: res})
	}
	id, err := h.service.Enqueue(c.UserContext(), g)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	g.ID = id
	return c.Status(fiber.StatusAccepted).JSON(CreateResponse{Success: true, JobID: id, Goal: g})
}

type StatusResponse struct {
	Success bool        `json:"success"`
	JobID   string      `json:"job_id"`
	Status  job.Status  `json:"status"`
	Goal    *nav.Goal   `json:"goal,omitempty"`
	Result  *nav.Result `json:"result,omitempty"`
}

func (h *Handler) HandleGet(c *fiber.Ctx) error {
	id := c.Params("jobId")
	j, err := h.jobs.GetJobStatus(c.UserContext(), id)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "not_found")
	}
	resp := StatusResponse{Success: true, JobID: id, Status: j.Status, Goal: j.Goal}
	if !j.Status.Terminal() {
		return c.Status(fiber.StatusAccepted).JSON(resp)
	}
	resp.Result = j.Result
	return c.JSON(resp)
}

type planQuery struct {
	Query    string   `form:"query"`
	Text     string   `form:"text"`
	Sites    []string `form:"sites"`
	MaxPrice *float64 `form:"max_price"`
	MinPrice *float64 `form:"min_price"`
	Currency string   `form:"currency"`
}

// HandlePlan answers with the opening actions per site without navigating.
func (h *Handler) HandlePlan(c *fiber.Ctx) error {
	var q planQuery
	if err := parser.ParseQuery(c, &q); err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	g, err := h.service.Goal(Request{
		Query: q.Query,
		Text:  q.Text,
		Sites: q.Sites,
		Constraints: nav.Constraints{
			MaxPrice: q.MaxPrice,
			MinPrice: q.MinPrice,
			Currency: q.Currency,
		},
	})
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	plan, err := h.service.Plan(g)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "goal": g, "plan": plan})
}

func (h *Handler) HandleMetrics(c *fiber.Ctx) error {
	return c.JSON(h.service.Metrics())
}

type historyQuery struct {
	Limit int `form:"limit"`
}

func (h *Handler) HandleHistory(c *fiber.Ctx) error {
	q := historyQuery{Limit: 20}
	if err := parser.ParseQuery(c, &q); err != nil {
		return fail(c, fiber.StatusBadRequest, "limit must be a number")
	}
	if q.Limit < 1 || q.Limit > 500 {
		return fail(c, fiber.StatusBadRequest, "limit must be between 1 and 500")
	}
	entries, err := h.service.History(c.UserContext(), q.Limit)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true, "history": entries})
}

func (h *Handler) HandleClearHistory(c *fiber.Ctx) error {
	if err := h.service.ClearHistory(c.UserContext()); err != nil {
		return fail(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"success": true})
}
