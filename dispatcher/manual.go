package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
)

// Manual runs the controller of a request's already selected route in
// process, without any HTTP round trip.
type Manual struct {
	logger types.Logger
}

var _ types.Dispatcher = (*Manual)(nil)

func NewManual(logger types.Logger) *Manual {
	return &Manual{logger: logger}
}

// Dispatch freezes the request and invokes its route controller.
func (m *Manual) Dispatch(ctx context.Context, req *types.Request) error {
	route := req.Route()
	if route == nil {
		return types.Errorf(types.ErrRouteNotFound, "request %s has no route", req.Path())
	}
	if route.Controller == nil {
		return types.Errorf(types.ErrRouteHasNoHandler, "route: %s", route.ID)
	}

	req.Freeze()

	start := time.Now()
	if err := route.Controller(ctx, req); err != nil {
		return types.WrapError(err, "route "+route.ID+" of "+req.ComponentName())
	}

	m.logger.Debug("Route dispatched",
		zap.String("component", req.ComponentName()),
		zap.String("route", route.ID),
		zap.Duration("duration", time.Since(start)))

	return nil
}
