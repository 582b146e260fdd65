package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/use-agent/browserfetch/cleaner"
	"github.com/use-agent/browserfetch/models"
	"github.com/use-agent/browserfetch/webhook"
)

// PostFetchAsync returns a handler for POST /api/v1/fetch/async.
// The fetch runs in the background; the client polls GET /api/v1/fetch/:id
// or receives a webhook.
func PostFetchAsync(f Fetcher, cl *cleaner.Cleaner, store *JobStore, s Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AsyncFetchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewFetchError(models.ErrCodeInvalidInput, err.Error(), err), models.TimingInfo{})
			return
		}
		req.Defaults()

		jobID := uuid.NewString()
		accepted := models.AsyncFetchResponse{ID: jobID, Status: models.JobProcessing, URL: req.URL}
		store.put(accepted)

		// The request context ends with this handler; the job must not.
		fut := f.SubmitHTML(context.Background(), req.URL, fetchOptions(&req.FetchRequest, s)...)
		submitted := time.Now()
		go finishJob(fut.Wait, cl, store, &req, jobID, submitted)

		c.JSON(http.StatusAccepted, accepted)
	}
}

// GetFetchJob returns a handler for GET /api/v1/fetch/:id.
func GetFetchJob(store *JobStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		j, ok := store.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewFetchError(models.ErrCodeNotFound, "job not found", nil), models.TimingInfo{})
			return
		}
		c.JSON(http.StatusOK, j)
	}
}

func finishJob(wait func(context.Context) (string, bool), cl *cleaner.Cleaner, store *JobStore,
	req *models.AsyncFetchRequest, jobID string, submitted time.Time) {
	html, ok := wait(context.Background())
	fetchMs := time.Since(submitted).Milliseconds()

	result := models.AsyncFetchResponse{ID: jobID, URL: req.URL}
	event := webhook.EventFetchCompleted

	var resp *models.FetchResponse
	var err error
	if !ok {
		err = models.NewFetchError(models.ErrCodeFetchFailed, "could not fetch "+req.URL, nil)
	} else {
		resp, err = format(cl, html, &req.FetchRequest, fetchMs)
	}

	if err != nil {
		var fe *models.FetchError
		if !errors.As(err, &fe) {
			fe = models.NewFetchError(models.ErrCodeInternal, err.Error(), err)
		}
		result.Status = models.JobFailed
		result.Error = fe.ToDetail()
		event = webhook.EventFetchFailed
	} else {
		resp.Timing.TotalMs = time.Since(submitted).Milliseconds()
		result.Status = models.JobCompleted
		result.Result = resp
	}
	store.put(result)

	slog.Info("fetch job finished", "job_id", jobID, "url", req.URL, "status", result.Status)

	if req.WebhookURL != "" {
		webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, webhook.NewEvent(event, jobID, result))
	}
}
