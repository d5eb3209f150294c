package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewRelic returns a gin middleware for New Relic tracing, or nil when app
// is nil.
func NewRelic(app *newrelic.Application) gin.HandlerFunc {
	if app == nil {
		return nil
	}
	return nrgin.Middleware(app)
}
