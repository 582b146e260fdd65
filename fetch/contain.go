package fetch

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/use-agent/browserfetch/models"
)

// contain runs fn, turning a panic into an INTERNAL_ERROR. Every failure is
// logged with op and url.
func contain(logger *slog.Logger, op, url string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewFetchError(models.ErrCodeInternal, fmt.Sprintf("panic: %v", r), nil)
			logger.Error("fetch panicked", "op", op, "url", url, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err = fn(); err != nil {
		code := models.ErrCodeFetchFailed
		var fe *models.FetchError
		if errors.As(err, &fe) {
			code = fe.Code
		}
		logger.Error("fetch failed", "op", op, "url", url, "code", code, "error", err)
	}
	return err
}
