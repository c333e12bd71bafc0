// api/handlers/database_handler.go
package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/Annany2002/dataspace-backend/api/models"
	"github.com/Annany2002/dataspace-backend/internal/catalog"
	"github.com/Annany2002/dataspace-backend/internal/core"
	"github.com/Annany2002/dataspace-backend/internal/dialect"
	"github.com/Annany2002/dataspace-backend/internal/domain"
	"github.com/Annany2002/dataspace-backend/internal/errs"
	"github.com/Annany2002/dataspace-backend/internal/session"
	"github.com/Annany2002/dataspace-backend/internal/storage"
)

// AccountLookup loads the caller's account record.
type AccountLookup interface {
	FindByID(ctx context.Context, userID string) (*domain.Account, error)
}

// DatabaseHandler serves connection and table catalog routes.
type DatabaseHandler struct {
	Accounts AccountLookup
	Sessions *session.Store
	Tenants  *TenantAccess
}

// NewDatabaseHandler creates a new DatabaseHandler.
func NewDatabaseHandler(accounts AccountLookup, sessions *session.Store, tenants *TenantAccess) *DatabaseHandler {
	return &DatabaseHandler{Accounts: accounts, Sessions: sessions, Tenants: tenants}
}

// ConnectDB opens a connection to a database of the caller's choosing and
// makes it the session's active engine.
func (h *DatabaseHandler) ConnectDB(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, "Connect", err)
		return
	}

	d, err := dialect.Parse(req.DBType)
	if err != nil {
		_ = c.Error(err)
		return
	}

	customLog.Printf("Attempting %s connection for user %s", d, userID)
	engine, err := h.Tenants.Connector.Connect(c.Request.Context(), dialect.Params{
		Dialect:  d,
		Host:     req.Host,
		Port:     req.Port,
		User:     req.User,
		Password: req.Password,
		Database: req.Database,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	tables, err := h.Tenants.Catalog.ListTables(c.Request.Context(), engine)
	if err != nil {
		_ = engine.Close()
		_ = c.Error(err)
		return
	}

	h.Sessions.Get(userID).SetEngine(engine)
	c.JSON(http.StatusOK, models.ConnectResponse{Status: "connected", DBType: string(d), Tables: tables})
}

// LoadTables fetches the named tables through the session's engine and
// returns a preview or an error string per table. Accepts either
// {"table_names": [...]} or a bare JSON array.
func (h *DatabaseHandler) LoadTables(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	names, err := bindTableNames(c)
	if err != nil {
		bindError(c, "Load tables", err)
		return
	}

	state := h.Sessions.Get(userID)
	engine := state.Engine()
	if engine == nil {
		_ = c.Error(errs.WithStatus(errs.Validation("NO_DATABASE_CONNECTED", "No personal database connected."), http.StatusBadRequest))
		return
	}

	loaded, err := h.Tenants.Catalog.LoadTables(c.Request.Context(), engine, names)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !state.ReplaceTablesFor(engine, catalog.Handles(loaded)) {
		customLog.Warnf("Load tables for %s: connection changed during load, results not kept in session", userID)
	}

	previews := make(map[string]any, len(loaded))
	for _, l := range loaded {
		if l.Err != nil {
			previews[l.Name] = "Error fetching data: " + l.Err.Error()
			continue
		}
		previews[l.Name] = l.Preview
	}
	c.JSON(http.StatusOK, models.LoadTablesResponse{Status: "tables loaded", Tables: names, Previews: previews})
}

func bindTableNames(c *gin.Context) ([]string, error) {
	var req models.LoadTablesRequest
	objErr := c.ShouldBindBodyWith(&req, binding.JSON)
	if objErr == nil {
		return req.TableNames, nil
	}

	var names []string
	if err := c.ShouldBindBodyWith(&names, binding.JSON); err != nil {
		return nil, objErr
	}
	if len(names) == 0 {
		return nil, errs.Validation("TABLE_NAMES_REQUIRED", "At least one table name is required.")
	}
	return names, nil
}

// LoadUserTablesWithPreview opens the caller's tenant database, loads the
// first rows (?limit=, default 20) of every table and installs the engine
// in the session.
func (h *DatabaseHandler) LoadUserTablesWithPreview(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	limit, err := core.ParsePreviewLimit(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(errs.Validation("INVALID_LIMIT", err.Error()))
		return
	}
	acct, ok := h.tenantAccount(c, userID)
	if !ok {
		return
	}

	engine, err := h.Tenants.Connector.Connect(c.Request.Context(), h.Tenants.Params(acct.TenantDB))
	if err != nil {
		customLog.Errorf("Tenant connection failed for %s: %v", acct.Email, err)
		_ = c.Error(errs.Internal("DB_CONNECTION_FAILED", "Database connection failed.", err))
		return
	}

	res, err := h.Tenants.Catalog.LoadWithPreview(c.Request.Context(), engine, limit)
	if err != nil {
		_ = engine.Close()
		_ = c.Error(err)
		return
	}

	state := h.Sessions.Get(userID)
	state.SetEngineWithTables(engine, res.Handles)

	tables := make([]models.TablePreview, len(res.Tables))
	for i, t := range res.Tables {
		tables[i] = models.TablePreview{TableName: t.Name, Preview: t.Records}
	}
	c.JSON(http.StatusOK, models.LoadWithPreviewResponse{
		Status:      "success",
		Tables:      tables,
		LoadTimeSec: math.Round(res.Elapsed.Seconds()*100) / 100,
	})
}

// DeleteTable drops a table from the caller's tenant database.
func (h *DatabaseHandler) DeleteTable(c *gin.Context) {
	userID, email, ok := currentUser(c)
	if !ok {
		return
	}
	tableName := c.Param("table_name")

	acct, ok := h.tenantAccount(c, userID)
	if !ok {
		return
	}

	engine, err := h.Tenants.Connector.Connect(c.Request.Context(), h.Tenants.Params(acct.TenantDB))
	if err != nil {
		_ = c.Error(errs.Internal("DB_CONNECTION_FAILED", "Failed to connect to database.", err))
		return
	}
	defer engine.Close()

	state, _ := h.Sessions.Peek(userID)
	if err := h.Tenants.Catalog.DeleteTable(c.Request.Context(), engine, state, tableName); err != nil {
		_ = c.Error(err)
		return
	}

	customLog.Printf("Table '%s' deleted for user %s", tableName, email)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Table '" + tableName + "' deleted from database."})
}

// Disconnect disposes the session's engine. It always succeeds.
func (h *DatabaseHandler) Disconnect(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}
	if state, found := h.Sessions.Peek(userID); found {
		h.Tenants.Catalog.Disconnect(state)
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

func (h *DatabaseHandler) tenantAccount(c *gin.Context, userID string) (*domain.Account, bool) {
	acct, err := h.Accounts.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			_ = c.Error(errs.Unauthorized("USER_NOT_FOUND", "Could not validate credentials."))
		} else {
			_ = c.Error(errs.Internal("ACCOUNT_LOOKUP_FAILED", "Failed to load account.", err))
		}
		return nil, false
	}
	if acct.TenantDB == "" {
		_ = c.Error(errs.NotFound("TENANT_DB_MISSING", "No database provisioned for this account."))
		return nil, false
	}
	return acct, true
}
