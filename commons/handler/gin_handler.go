package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"kairos/commons/error_handler"
	"kairos/commons/response"
	"kairos/internal/logger"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes caps request bodies; schedule payloads are small JSON documents
const maxBodyBytes = 1 << 20

type ServiceFunc[InputDto any, OutputDto any] func(
	ctx context.Context,
	ioutil *RequestIo[InputDto],
) (OutputDto, *error_handler.ErrorCollection)

// HandleFunc adapts a ServiceFunc to gin. JSON bodies of POST, PUT and PATCH
// requests and the query string of GET requests are bound into InputDto.
func HandleFunc[InputDto any, OutputDto any](
	deps HandlerDependencies,
	serviceFunc ServiceFunc[InputDto, OutputDto],
) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := deps.Logger.WithContext(ctx)

		ioutil := BuildRequestIo[InputDto](c)

		bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			log.Error("unable to read request body", logger.Error(err))
			SendErrorResponse(c, *new(OutputDto), error_handler.NewErrorCollection().
				AddError(error_handler.CodeInternalServerError, "Unable to read request body", nil))
			return
		}
		if len(bodyBytes) > maxBodyBytes {
			SendErrorResponse(c, *new(OutputDto), error_handler.NewErrorCollection().
				AddError(error_handler.CodeValidationError, "request body too large", nil))
			return
		}

		ioutil.RawBody = bodyBytes

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if len(bodyBytes) == 0 {
				break
			}
			// Restore the body for ShouldBindJSON to read
			c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			if err := c.ShouldBindJSON(&ioutil.Body); err != nil {
				log.Warn("unable to bind request body",
					logger.Error(err),
					logger.String("raw_body", string(bodyBytes)))
				SendErrorResponse(c, *new(OutputDto), error_handler.NewErrorCollection().
					AddError(error_handler.CodeValidationError, err.Error(), nil))
				return
			}
		case http.MethodGet:
			if c.Request.URL.RawQuery == "" {
				break
			}
			if err := c.ShouldBindQuery(&ioutil.Body); err != nil {
				log.Warn("unable to bind query string",
					logger.Error(err),
					logger.String("query", c.Request.URL.RawQuery))
				SendErrorResponse(c, *new(OutputDto), error_handler.NewErrorCollection().
					AddError(error_handler.CodeValidationError, err.Error(), nil))
				return
			}
		}

		outputDto, errorCollection := serviceFunc(ctx, ioutil)

		if errorCollection != nil && errorCollection.HasErrors() {
			SendErrorResponse(c, outputDto, errorCollection)
		} else {
			SendSuccessResponse(c, outputDto)
		}
	}
}

func SendSuccessResponse[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, response.Success(data))
}

func SendErrorResponse[T any](c *gin.Context, data T, errorCollection *error_handler.ErrorCollection) {
	c.JSON(errorCollection.GetHTTPStatus(), response.Failure(data, errorCollection.GetErrors()))
}
