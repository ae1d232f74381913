package logger

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/fatih/color"
	"github.com/go-chi/chi/v5/middleware"
)

func New(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		log := log.Component("middleware/logger")

		log.Info("logger middleware enabled")

		fn := func(w http.ResponseWriter, r *http.Request) {
			entry := log.With(
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			defer func() {
				entry.Info(fmt.Sprintf("%s %s - %s", r.Method, r.URL.Path, statusColor(ww.Status())),
					slog.String("remote_addr", r.RemoteAddr),
					slog.Int("bytes", ww.BytesWritten()),
					slog.String("duration", time.Since(t1).String()),
				)
			}()

			next.ServeHTTP(ww, r)
		}

		return http.HandlerFunc(fn)
	}
}

func statusColor(status int) string {
	var c *color.Color
	switch {
	case status < 200:
		c = color.New(color.FgBlue)
	case status < 300:
		c = color.New(color.FgGreen)
	case status < 400:
		c = color.New(color.FgCyan)
	case status < 500:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgRed)
	}
	return c.Sprintf("%03d", status)
}
