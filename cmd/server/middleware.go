package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	cidpkg "parley/internal/cid"
)

// cidMiddleware tags every request with a correlation id. An incoming
// X-Parley-CID header is preserved; otherwise a fresh ksuid is generated.
// The id is echoed on the response and stored on the request context.
func (s *Server) cidMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(cidpkg.HeaderName)
		if id == "" {
			id = ksuid.New().String()
		}
		c.Writer.Header().Set(cidpkg.HeaderName, id)
		c.Request = c.Request.WithContext(cidpkg.WithCID(c.Request.Context(), id))
		c.Next()
	}
}

// otelMiddleware opens a span per request with basic HTTP attributes and the
// correlation id when present.
func (s *Server) otelMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("parley/server")
	return func(c *gin.Context) {
		name := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		ctx, span := tracer.Start(c.Request.Context(), name)
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.target", c.Request.URL.Path),
		)
		if id := cidpkg.CIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String(cidpkg.AttributeName, id))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}
