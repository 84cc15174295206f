package jobs

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/hbomb79/batchconv/internal/activity"
	"github.com/labstack/echo/v4"
)

// ErrUnknownJob is returned by a Canceller when no job
// with the ID given is running.
var ErrUnknownJob = errors.New("job not found")

type (
	Store interface {
		Latest() (activity.JobSnapshot, bool)
		Job(uuid.UUID) (activity.JobSnapshot, bool)
	}

	// Canceller requests cooperative cancellation of the job with the ID given.
	Canceller func(uuid.UUID) error

	Controller struct {
		store     Store
		cancelJob Canceller
	}
)

func New(store Store, cancelJob Canceller) *Controller {
	return &Controller{store: store, cancelJob: cancelJob}
}

func (controller *Controller) SetRoutes(eg *echo.Group) {
	eg.GET("/", controller.latest)
	eg.GET("/:id/", controller.get)
	eg.POST("/:id/cancel/", controller.cancel)
}

func (controller *Controller) latest(ec echo.Context) error {
	snapshot, ok := controller.store.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "No job has been started")
	}

	return ec.JSON(http.StatusOK, snapshot)
}

func (controller *Controller) get(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Job ID is not a valid UUID")
	}

	snapshot, ok := controller.store.Job(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "Job not found")
	}

	return ec.JSON(http.StatusOK, snapshot)
}

func (controller *Controller) cancel(ec echo.Context) error {
	id, err := uuid.Parse(ec.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Job ID is not a valid UUID")
	}

	if err := controller.cancelJob(id); err != nil {
		if errors.Is(err, ErrUnknownJob) {
			return echo.NewHTTPError(http.StatusNotFound, "Job not found or not running")
		}

		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return ec.NoContent(http.StatusAccepted)
}
