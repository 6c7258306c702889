package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-render/types"
	"github.com/saiset-co/sai-render/uimessages"
	"github.com/saiset-co/sai-render/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	DefaultMetricsPath     = "/metrics"
	DefaultSessionCookie   = "sai_session"
	DefaultShutdownTimeout = 5
	CompressionThreshold   = 1024
	encodingBrotli         = "br"
)

// Renderer serves one top-level page into w.
type Renderer interface {
	Serve(ctx context.Context, req *types.Request, w io.Writer) (bool, error)
}

type FastHTTPServer struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	renderer        Renderer
	resolver        types.IntentResolver
	server          *fasthttp.Server
	listener        net.Listener
	httpConfig      *types.ServerConfig
	metricsHandler  fasthttp.RequestHandler
	name            string
	startTime       time.Time
	healthChecks    map[string]types.LifecycleManager
	healthMu        sync.RWMutex
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewHTTPServer(
	ctx context.Context,
	config types.ConfigManager,
	logger types.Logger,
	metrics types.MetricsManager,
	renderer Renderer,
	resolver types.IntentResolver) (*FastHTTPServer, error) {
	httpConfig := config.GetConfig().Server
	if httpConfig == nil {
		return nil, types.Errorf(types.ErrConfigNotFound, "server")
	}

	if renderer == nil || resolver == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "renderer and resolver are required")
	}

	serverCtx, cancel := context.WithCancel(ctx)

	server := &FastHTTPServer{
		ctx:             serverCtx,
		cancel:          cancel,
		logger:          logger,
		metrics:         metrics,
		renderer:        renderer,
		resolver:        resolver,
		httpConfig:      httpConfig,
		shutdownTimeout: DefaultShutdownTimeout * time.Second,
		name:            config.GetConfig().Name,
		startTime:       time.Now(),
		healthChecks:    make(map[string]types.LifecycleManager),
	}

	if httpConfig.ShutdownTimeout > 0 {
		server.shutdownTimeout = time.Duration(httpConfig.ShutdownTimeout) * time.Second
	}

	if httpConfig.MetricsPath == "" {
		httpConfig.MetricsPath = DefaultMetricsPath
	}

	if httpConfig.HealthPath == "" {
		httpConfig.HealthPath = DefaultHealthPath
	}

	if metrics != nil {
		server.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	}

	server.state.Store(StateStopped)

	return server, nil
}

func (h *FastHTTPServer) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", h.httpConfig.Host, h.httpConfig.Port))
	if err != nil {
		return types.WrapError(err, "HTTP listener failed")
	}

	return h.Serve(listener)
}

// Serve runs the server on an existing listener in the background.
func (h *FastHTTPServer) Serve(listener net.Listener) error {
	if !h.transitionState(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	h.listener = listener
	h.server = &fasthttp.Server{
		Handler:               h.Handler(),
		ReadTimeout:           time.Duration(h.httpConfig.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(h.httpConfig.WriteTimeout) * time.Second,
		TCPKeepalive:          true,
		CloseOnShutdown:       true,
		NoDefaultServerHeader: true,
	}

	go func() {
		if err := h.server.Serve(listener); err != nil {
			h.logger.Error("HTTP server failed", zap.Error(err))
			if !h.transitionState(StateRunning, StateStopped) {
				h.transitionState(StateStarting, StateStopped)
			}
		}
	}()

	if !h.transitionState(StateStarting, StateRunning) {
		return types.Errorf(types.ErrServerNotRunning, "HTTP server exited while starting on %s", listener.Addr())
	}
	h.logger.Info("HTTP server started successfully", zap.String("address", listener.Addr().String()))

	return nil
}

func (h *FastHTTPServer) Stop() error {
	if !h.transitionState(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		h.state.Store(StateStopped)
		h.cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()

	if err := h.server.ShutdownWithContext(ctx); err != nil {
		h.logger.Warn("Server stop timeout, some connections may not have closed gracefully", zap.Error(err))
		return nil
	}

	h.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (h *FastHTTPServer) IsRunning() bool {
	return h.getState() == StateRunning
}

func (h *FastHTTPServer) getState() State {
	return h.state.Load().(State)
}

func (h *FastHTTPServer) transitionState(from, to State) bool {
	return h.state.CompareAndSwap(from, to)
}

// Handler resolves the request path to a component and renders it.
func (h *FastHTTPServer) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		defer h.logResponse(ctx, start)
		defer h.recoverPanic(ctx)

		path := string(ctx.Path())

		switch {
		case h.metricsHandler != nil && path == h.httpConfig.MetricsPath:
			h.metricsHandler(ctx)
			return
		case path == h.httpConfig.HealthPath:
			h.serveHealth(ctx)
			return
		}

		req, err := h.resolver.Resolve(h.ctx, path)
		if err != nil {
			h.writeError(ctx, err)
			return
		}

		if err = req.SetMethod(string(ctx.Method())); err != nil {
			h.writeError(ctx, err)
			return
		}

		renderCtx := uimessages.WithSession(h.ctx, string(ctx.Request.Header.Cookie(DefaultSessionCookie)))

		var body bytes.Buffer
		hit, err := h.renderer.Serve(renderCtx, req, &body)
		if err != nil {
			h.writeError(ctx, err)
			return
		}

		ctx.SetContentType("text/html; charset=utf-8")
		if hit {
			ctx.Response.Header.Set("X-Cache", "HIT")
		} else {
			ctx.Response.Header.Set("X-Cache", "MISS")
		}

		h.writeBody(ctx, body.Bytes())
	}
}

func (h *FastHTTPServer) writeBody(ctx *fasthttp.RequestCtx, body []byte) {
	if !h.httpConfig.Compression || len(body) < CompressionThreshold || !utils.AcceptsEncoding(ctx, encodingBrotli) {
		ctx.SetBody(body)
		return
	}

	var compressed bytes.Buffer
	writer := brotli.NewWriterLevel(&compressed, h.compressionLevel())

	if _, err := writer.Write(body); err != nil {
		h.logger.Error("Brotli compression failed", zap.Error(err))
		ctx.SetBody(body)
		return
	}

	if err := writer.Close(); err != nil {
		h.logger.Error("Brotli compression failed", zap.Error(err))
		ctx.SetBody(body)
		return
	}

	ctx.Response.Header.Set("Content-Encoding", encodingBrotli)
	ctx.Response.Header.Add("Vary", "Accept-Encoding")
	ctx.SetBody(compressed.Bytes())
}

func (h *FastHTTPServer) compressionLevel() int {
	if h.httpConfig.CompressionLvl <= 0 {
		return brotli.DefaultCompression
	}
	return h.httpConfig.CompressionLvl
}

func (h *FastHTTPServer) writeError(ctx *fasthttp.RequestCtx, err error) {
	status := statusFor(err)

	if status >= fasthttp.StatusInternalServerError {
		h.logger.ErrorWithErrStack("Render failed", err,
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("path", ctx.Path()))
	} else {
		h.logger.Debug("Request rejected",
			zap.ByteString("path", ctx.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}

	utils.CreateErrorResponse(ctx, status, fasthttp.StatusMessage(status))
}

func (h *FastHTTPServer) logResponse(ctx *fasthttp.RequestCtx, start time.Time) {
	fields := []zap.Field{
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.Int("status", ctx.Response.StatusCode()),
		zap.Duration("duration", time.Since(start)),
		zap.Int("size", len(ctx.Response.Body())),
	}

	if requestID := ctx.Request.Header.Peek("X-Request-ID"); len(requestID) > 0 {
		fields = append(fields, zap.ByteString("request_id", requestID))
	}

	h.logger.Debug("Request completed", fields...)

	if h.metrics != nil {
		h.metrics.Counter("http_requests_total", map[string]string{
			"status": strconv.Itoa(ctx.Response.StatusCode()),
		}).Inc()
	}
}

func (h *FastHTTPServer) recoverPanic(ctx *fasthttp.RequestCtx) {
	rec := recover()
	if rec == nil {
		return
	}

	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)

	h.logger.Error("Recovered from panic",
		zap.Any("panic", rec),
		zap.ByteString("method", ctx.Method()),
		zap.ByteString("path", ctx.Path()),
		zap.String("stack", utils.BytesToString(buf[:n])))

	utils.CreateErrorResponse(ctx, fasthttp.StatusInternalServerError, "Internal Server Error")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrIntentUnresolved),
		errors.Is(err, types.ErrRouteNotFound),
		errors.Is(err, types.ErrComponentNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, types.ErrInvalidParameter):
		return fasthttp.StatusBadRequest
	default:
		return fasthttp.StatusInternalServerError
	}
}
