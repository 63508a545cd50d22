package handler

import (
	"strings"

	"kairos/internal/logger"

	"github.com/gin-gonic/gin"
)

// RequestIo is what a ServiceFunc sees of the HTTP request. Body is filled
// by binding; the raw bytes are kept for handlers that need them.
type RequestIo[T any] struct {
	Body        T
	RawBody     []byte
	RequestID   string
	PathParams  map[string]string
	QueryParams map[string]string
}

type HandlerDependencies struct {
	Logger logger.Logger
}

func BuildRequestIo[T any](c *gin.Context) *RequestIo[T] {
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}

	query := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	return &RequestIo[T]{
		RequestID:   c.Writer.Header().Get(RequestIDHeader),
		PathParams:  params,
		QueryParams: query,
	}
}

// PathParam returns the trimmed path parameter, or "" when absent
func (r *RequestIo[T]) PathParam(name string) string {
	return strings.TrimSpace(r.PathParams[name])
}
