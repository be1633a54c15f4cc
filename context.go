package sessiongate

import (
	"context"

	"github.com/disappointingsupernova/sessiongate/device"
)

type deviceContextKey struct{}
type authResultContextKey struct{}

// WithDevice attaches a validated device context to ctx, typically by the
// HTTP layer after parsing edge-proxy headers.
func WithDevice(ctx context.Context, dev device.Context) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, dev)
}

// DeviceFromContext returns the device context stored by [WithDevice].
func DeviceFromContext(ctx context.Context) (device.Context, bool) {
	if ctx == nil {
		return device.Context{}, false
	}
	dev, ok := ctx.Value(deviceContextKey{}).(device.Context)
	return dev, ok
}

// WithAuthResult attaches the result of [Engine.Authorize] to ctx.
func WithAuthResult(ctx context.Context, res AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

func AuthResultFromContext(ctx context.Context) (AuthResult, bool) {
	if ctx == nil {
		return AuthResult{}, false
	}
	res, ok := ctx.Value(authResultContextKey{}).(AuthResult)
	return res, ok
}
