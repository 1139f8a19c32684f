package middleware

import (
	"bytes"
	"embed"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"ieltsprep/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// requestSchemas maps "METHOD /route" to the embedded schema validating its
// body. Routes use the gin pattern form, matched against c.FullPath().
var requestSchemas = map[string]string{
	"POST /v1/generate":     "generate_request.json",
	"POST /v1/api-keys":     "api_key_request.json",
	"PUT /v1/provider-key":  "provider_key_request.json",
	"POST /v1/provider-key": "provider_key_request.json",
}

var (
	compiledSchemas map[string]*gojsonschema.Schema
	compileOnce     sync.Once
	compileErr      error
)

func loadSchemas() (map[string]*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchemas = make(map[string]*gojsonschema.Schema)
		for _, name := range requestSchemas {
			if _, ok := compiledSchemas[name]; ok {
				continue
			}
			raw, err := schemaFS.ReadFile(path.Join("schemas", name))
			if err != nil {
				compileErr = err
				return
			}
			schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				compileErr = err
				return
			}
			compiledSchemas[name] = schema
		}
	})
	return compiledSchemas, compileErr
}

// RequestValidationMiddleware validates request bodies against the embedded
// JSON schemas before the handler sees them. Routes without a schema pass
// through untouched.
func RequestValidationMiddleware(logger *observability.Logger) gin.HandlerFunc {
	schemas, err := loadSchemas()
	if err != nil {
		// A broken embedded schema is a build defect, not a runtime condition.
		panic("failed to compile embedded request schemas: " + err.Error())
	}

	return func(c *gin.Context) {
		ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "request_validation")
		defer span.End()

		key := c.Request.Method + " " + c.FullPath()
		schemaName, ok := requestSchemas[key]
		if !ok {
			c.Next()
			return
		}

		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Failed to read request body",
				"code":  "INVALID_INPUT",
			})
			c.Abort()
			return
		}
		// Restore the body so the handler can bind it.
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		result, err := schemas[schemaName].Validate(gojsonschema.NewBytesLoader(body))
		if err != nil {
			logger.Warn(ctx, "Request body is not valid JSON", map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			})
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Request body must be valid JSON",
				"code":  "INVALID_INPUT",
			})
			c.Abort()
			return
		}

		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			logger.Warn(ctx, "Request validation failed", map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"errors": strings.Join(details, "; "),
			})
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request data",
				"code":    "VALIDATION_FAILED",
				"details": details,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
