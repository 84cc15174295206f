package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/hbomb79/batchconv/internal/api/jobs"
	"github.com/hbomb79/batchconv/internal/http/websocket"
	"github.com/hbomb79/batchconv/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	// RestConfig configures the activity monitor. An empty HostAddr
	// disables the monitor entirely.
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"BATCHCONV_MONITOR_ADDR" validate:"omitempty,hostname_port"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// The RestGateway is a thin-wrapper around the Echo HTTP router. It's sole responsibility
	// is to expose the state of the running jobs, and to manage the activity web socket
	// over which job updates are pushed.
	RestGateway struct {
		*broadcaster
		config        *RestConfig
		ec            *echo.Echo
		socket        *websocket.SocketHub
		jobController controller
		listener      net.Listener
		ready         chan struct{}
	}
)

// NewRestGateway constructs the Echo router and populates it with the monitor routes.
// The gateway is also a broadcaster, which should be registered with the activity service
// so that job updates are pushed to socket clients.
func NewRestGateway(config *RestConfig, store jobs.Store, cancelJob jobs.Canceller) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	socket.BindCommand(COMMAND_CANCEL, handleCancelCommand(cancelJob))
	socket.WithConnectionCallback(func() map[string]any {
		if snapshot, ok := store.Latest(); ok {
			return map[string]any{"job": snapshot}
		}

		return nil
	})

	gateway := &RestGateway{
		broadcaster:   newBroadcaster(socket),
		config:        config,
		ec:            ec,
		socket:        socket,
		jobController: jobs.New(store, cancelJob),
		ready:         make(chan struct{}),
	}

	ec.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Emit(logger.VERBOSE, "%s %s -> %d\n", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/batchconv/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	jobGroup := ec.Group("/api/batchconv/v1/job")
	gateway.jobController.SetRoutes(jobGroup)

	return gateway
}

// Addr returns the address the gateway is listening on. Blocks until
// the gateway has started listening, or the context provided is cancelled.
func (gateway *RestGateway) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-gateway.ready:
		if gateway.listener == nil {
			return nil, errors.New("gateway failed to start")
		}

		return gateway.listener.Addr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run starts the HTTP server and the socket hub, blocking until the context
// is cancelled or the server fails.
func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	defer ctxCancel(nil)

	listener, err := net.Listen("tcp", gateway.config.HostAddr)
	if err != nil {
		close(gateway.ready)
		return err
	}
	gateway.listener = listener
	gateway.ec.Listener = listener

	wg := &sync.WaitGroup{}

	// Start websocket first so that clients connecting as soon as the
	// server is listening are not turned away
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctxCancel(err)
		}
	}()

	log.Emit(logger.INFO, "Activity monitor listening on %s\n", listener.Addr())
	close(gateway.ready)

	<-ctx.Done()
	gateway.ec.Close()
	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); !errors.Is(cause, parentCtx.Err()) && cause != nil {
		return cause
	}

	return nil
}
