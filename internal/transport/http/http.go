package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/order"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/models/orderevent"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/services/ordersvc"
	"github.com/IsVohi/OrderFlow-sub000/internal/service/statemachine"
	createorder "github.com/IsVohi/OrderFlow-sub000/internal/transport/http/create_order"
	getorder "github.com/IsVohi/OrderFlow-sub000/internal/transport/http/get_order"
	listorders "github.com/IsVohi/OrderFlow-sub000/internal/transport/http/list_orders"
	orderevents "github.com/IsVohi/OrderFlow-sub000/internal/transport/http/order_events"
	"github.com/IsVohi/OrderFlow-sub000/internal/transport/http/respond"
	transitionorder "github.com/IsVohi/OrderFlow-sub000/internal/transport/http/transition_order"
	"github.com/IsVohi/OrderFlow-sub000/pkg/http/middleware/ratelimit"
	"github.com/IsVohi/OrderFlow-sub000/pkg/http/middleware/trace"
	"github.com/IsVohi/OrderFlow-sub000/pkg/logger"
)

type service interface {
	CreateOrder(ctx context.Context, cmd order.CreateOrderCommand) (order.Order, bool, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	ListOrders(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, int, error)
	ListOrderEvents(ctx context.Context, id string) ([]orderevent.OrderEvent, error)
	Confirm(ctx context.Context, id string, meta ordersvc.TransitionMeta) (order.Order, error)
	Pay(ctx context.Context, id string, meta ordersvc.TransitionMeta) (order.Order, error)
	Fulfill(ctx context.Context, id string, meta ordersvc.TransitionMeta) (order.Order, error)
	Cancel(ctx context.Context, id string, meta ordersvc.TransitionMeta) (order.Order, error)
}

type HTTPTransport struct {
	server  *http.Server
	router  *chi.Mux
	service service
}

func NewHTTPTransport(service service) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server:  server,
		router:  router,
		service: service,
	}
}

// Run serves until Shutdown is called.
func (h *HTTPTransport) Run() error {
	if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Handler exposes the router.
func (h *HTTPTransport) Handler() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	h.router.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/events", h.listOrderEvents)
			r.Post("/confirm", h.transition(statemachine.ActionConfirm))
			r.Post("/pay", h.transition(statemachine.ActionPay))
			r.Post("/fulfill", h.transition(statemachine.ActionFulfill))
			r.Post("/cancel", h.transition(statemachine.ActionCancel))
		})
	})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.service)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.service)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.service)
}

func (h *HTTPTransport) listOrderEvents(w http.ResponseWriter, r *http.Request) {
	orderevents.ListOrderEvents(w, r, h.service)
}

func (h *HTTPTransport) transition(action statemachine.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transitionorder.Transition(w, r, h.service, action)
	}
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(respond.EchoCorrelationID)
	router.Use(ratelimit.NewRateLimitMiddleware(
		viper.GetFloat64("server.http.rate_limit.rps"),
		viper.GetInt("server.http.rate_limit.burst"),
	))

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:              "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
