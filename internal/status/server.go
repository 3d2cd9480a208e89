package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	jww "github.com/spf13/jwalterweatherman"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"vendor-chat/internal/notify"
	"vendor-chat/internal/observability"
)

// Options configures the router.
type Options struct {
	Token    string
	Debug    bool
	Notifier notify.Notifier
}

// NewRouter builds the status server router for session.
func NewRouter(session Session, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("vendor-chat"))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(RequestID())

	handler := NewHandler(session)
	router.GET("/healthz", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/", TokenAuth(opts.Token))
	api.GET("/chats", handler.ListChats)
	api.GET("/chats/unread", handler.Unread)
	api.GET("/chats/:counterpart/messages", handler.GetMessages)
	api.POST("/chats/:counterpart/messages", handler.PostMessage)
	api.PUT("/chats/:counterpart/read", handler.MarkRead)
	api.DELETE("/chats/:counterpart", handler.DeleteChat)
	api.PUT("/presence", handler.SetPresence)
	RegisterDebugRoutes(api, opts.Notifier, opts.Debug)
	return router
}

// Serve runs handler on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		jww.INFO.Printf("status server listening addr=%s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "status server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "status server shutdown")
		}
		return nil
	}
}
