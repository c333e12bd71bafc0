// api/handlers/tenant_access.go
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/dataspace-backend/api/middleware"
	"github.com/Annany2002/dataspace-backend/internal/catalog"
	"github.com/Annany2002/dataspace-backend/internal/dialect"
	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/logger"
	"github.com/Annany2002/dataspace-backend/internal/session"
)

var (
	customLog = logger.NewLogger()
)

// TenantAccess opens engines on tenant databases with the service's admin
// MySQL login and runs catalog operations through them.
type TenantAccess struct {
	Connector catalog.Connector
	Catalog   *catalog.Catalog
	// Admin carries host, port and credentials; Database is set per account.
	Admin dialect.Params
	// BaseCtx outlives requests and bounds background preload jobs.
	BaseCtx context.Context
}

// Params returns the connection parameters for the tenant database name.
func (t *TenantAccess) Params(database string) dialect.Params {
	p := t.Admin
	p.Dialect = dialect.MySQL
	p.Database = database
	return p
}

func (t *TenantAccess) baseContext() context.Context {
	if t.BaseCtx == nil {
		return context.Background()
	}
	return t.BaseCtx
}

// startPreload loads the tenant's tables into state in the background.
func (t *TenantAccess) startPreload(state *session.State, database string) *session.PreloadJob {
	return state.StartPreload(t.baseContext(), t.Catalog.PreloadFunc(t.Connector, t.Params(database)))
}

// currentUser returns the ids AuthMiddleware stored on the context.
func currentUser(c *gin.Context) (string, string, bool) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		_ = c.Error(errs.Unauthorized("NOT_AUTHENTICATED", "Could not validate credentials."))
		return "", "", false
	}
	return userID, c.GetString(middleware.EmailKey), true
}

// bindError attaches a request binding failure for the error handler.
func bindError(c *gin.Context, route string, err error) {
	customLog.Warnf("%s binding error: %v", route, err)
	_ = c.Error(err).SetType(gin.ErrorTypeBind)
}
