// api/models/database_models.go
package models

// ConnectRequest defines the body of POST /connect_db
type ConnectRequest struct {
	DBType   string `json:"db_type" binding:"required"`
	Host     string `json:"host" binding:"required"`
	Port     int    `json:"port" binding:"omitempty,min=1,max=65535"`
	User     string `json:"user" binding:"required"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// ConnectResponse lists the tables visible through the new connection
type ConnectResponse struct {
	Status string   `json:"status"`
	DBType string   `json:"db_type"`
	Tables []string `json:"tables"`
}

// LoadTablesRequest defines the body of POST /load_tables
type LoadTablesRequest struct {
	TableNames []string `json:"table_names" binding:"required,min=1,dive,required"`
}

// LoadTablesResponse maps each requested table to its preview or error string
type LoadTablesResponse struct {
	Status   string         `json:"status"`
	Tables   []string       `json:"tables"`
	Previews map[string]any `json:"previews"`
}

// TablePreview is one entry of the load-with-preview listing
type TablePreview struct {
	TableName string `json:"table_name"`
	Preview   any    `json:"preview"`
}

// LoadWithPreviewResponse is returned by GET /load_user_tables_with_preview
type LoadWithPreviewResponse struct {
	Status      string         `json:"status"`
	Tables      []TablePreview `json:"tables"`
	LoadTimeSec float64        `json:"load_time_sec"`
}

// ErrorResponse is the body written by the error handler
type ErrorResponse struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
