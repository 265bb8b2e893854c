package services

import (
	"context"
	"fmt"
	"reflect"

	log "github.com/sirupsen/logrus"

	"texttools/internal/models"
)

// HandlerDispatcher calls every result handler in order. A failing or panicking
// handler is logged and does not stop the ones after it.
type HandlerDispatcher struct {
	handlers []ResultHandler
}

func NewHandlerDispatcher(handlers ...ResultHandler) *HandlerDispatcher {
	return &HandlerDispatcher{handlers: handlers}
}

// Len returns the number of registered handlers.
func (d *HandlerDispatcher) Len() int { return len(d.handlers) }

// Dispatch returns the handler errors for observability only.
func (d *HandlerDispatcher) Dispatch(ctx context.Context, results *models.BatchResults) []error {
	var errs []error
	for _, h := range d.handlers {
		if err := d.invoke(ctx, h, results); err != nil {
			log.WithFields(log.Fields{
				"job_name": results.JobName,
				"handler":  handlerName(h),
			}).Errorf("Result handler failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errs
}

func (d *HandlerDispatcher) invoke(ctx context.Context, h ResultHandler, results *models.BatchResults) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &models.HandlerError{Handler: handlerName(h), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if herr := h.Handle(ctx, results); herr != nil {
		return &models.HandlerError{Handler: handlerName(h), Err: herr}
	}
	return nil
}

// Named is implemented by handlers that want a readable name in logs.
type Named interface {
	Name() string
}

func handlerName(h ResultHandler) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return reflect.TypeOf(h).String()
}
