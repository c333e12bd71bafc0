// internal/dialect/dialect_test.go
package dialect

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/dataspace-backend/internal/errs"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"mysql", MySQL, false},
		{" MySQL ", MySQL, false},
		{"vertica", Vertica, false},
		{"postgresql", Postgres, false},
		{"postgres", Postgres, false},
		{"oracle", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Parse(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, errs.ErrUnsupportedDialect)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRegistry_UnknownDialect(t *testing.T) {
	r := NewRegistry(NewMySQL())

	_, err := r.Adapter(Vertica)
	assert.ErrorIs(t, err, errs.ErrUnsupportedDialect)

	a, err := r.Adapter(MySQL)
	require.NoError(t, err)
	assert.Equal(t, MySQL, a.Dialect())
}

func TestSelectAllQuery(t *testing.T) {
	mysqlQ, err := NewMySQL().SelectAllQuery("orders")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `orders`", mysqlQ)

	escaped, err := NewMySQL().SelectAllQuery("we`ird")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `we``ird`", escaped)

	verticaQ, err := NewVertica("").SelectAllQuery("sales.orders")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM sales.orders", verticaQ)
	assert.NotContains(t, verticaQ, "`")

	pgQ, err := NewPostgres().SelectAllQuery("public.orders")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM public.orders", pgQ)

	_, err = NewVertica("").SelectAllQuery("sales.orders; DROP TABLE x")
	assert.ErrorIs(t, err, errs.ErrValidation)

	limited, err := SelectLimitQuery(NewMySQL(), "orders", 20)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `orders` LIMIT 20", limited)
}

func TestDropTableQuery(t *testing.T) {
	q, err := NewMySQL().DropTableQuery("orders")
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE IF EXISTS `orders`", q)

	q, err = NewVertica("").DropTableQuery("sales.orders")
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE IF EXISTS sales.orders", q)
}

func TestMySQLDSN_ReservedCharacters(t *testing.T) {
	p := Params{
		Dialect:  MySQL,
		Host:     "db.internal",
		User:     "analyst",
		Password: "p@ss:w/rd",
		Database: "user_at_example_dot_com_db",
		Timeout:  3 * time.Second,
	}

	dsn, err := NewMySQL().DSN(p)
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "p@ss:w/rd", cfg.Passwd)
	assert.Equal(t, "db.internal:3306", cfg.Addr)
	assert.Equal(t, "user_at_example_dot_com_db", cfg.DBName)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestMySQLDSN_RequiresHost(t *testing.T) {
	_, err := NewMySQL().DSN(Params{User: "u"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestVerticaDSN_TLSDisabledByDefault(t *testing.T) {
	dsn, err := NewVertica("").DSN(Params{
		Host:     "vertica.local",
		User:     "dbadmin",
		Password: "se@cret/:pw",
		Database: "analytics",
	})
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	pw, _ := u.User.Password()
	assert.Equal(t, "se@cret/:pw", pw)
	assert.Equal(t, "vertica.local:5433", u.Host)
	assert.Equal(t, "/analytics", u.Path)
	assert.Equal(t, "none", u.Query().Get("tlsmode"))

	dsn, err = NewVertica("server").DSN(Params{Host: "h", Port: 6000})
	require.NoError(t, err)
	u, err = url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "server", u.Query().Get("tlsmode"))
	assert.Equal(t, "h:6000", u.Host)
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := NewPostgres().DSN(Params{Host: "pg", User: "u", Password: "a@b", Database: "d", Timeout: 5 * time.Second})
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	pw, _ := u.User.Password()
	assert.Equal(t, "a@b", pw)
	assert.Equal(t, "5", u.Query().Get("connect_timeout"))
}

func TestPostgresDSN_ConnectTimeoutRounding(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    string
	}{
		{200 * time.Millisecond, "1"},
		{time.Second, "1"},
		{1500 * time.Millisecond, "2"},
		{0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.timeout.String(), func(t *testing.T) {
			dsn, err := NewPostgres().DSN(Params{Host: "pg", User: "u", Database: "d", Timeout: tt.timeout})
			require.NoError(t, err)
			u, err := url.Parse(dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.Query().Get("connect_timeout"))
		})
	}
}

func TestMySQLListTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE()`)).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("customers").AddRow("orders"))

	tables, err := NewMySQL().ListTables(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerticaListTables_SkipsFailingSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT schema_name FROM v_catalog.schemata`)).
		WillReturnRows(sqlmock.NewRows([]string{"schema_name"}).AddRow("public").AddRow("broken").AddRow("sales"))

	tableQuery := regexp.QuoteMeta(`SELECT table_name FROM v_catalog.tables WHERE table_schema = ?`)
	mock.ExpectQuery(tableQuery).WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("events"))
	mock.ExpectQuery(tableQuery).WithArgs("broken").
		WillReturnError(errors.New("permission denied for schema broken"))
	mock.ExpectQuery(tableQuery).WithArgs("sales").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("refunds"))

	tables, err := NewVertica("").ListTables(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"public.events", "sales.orders", "sales.refunds"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerticaListTables_SchemaQueryFailsYieldsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT schema_name FROM v_catalog.schemata`)).
		WillReturnError(errors.New("boom"))

	tables, err := NewVertica("").ListTables(context.Background(), db)
	require.NoError(t, err)
	assert.NotNil(t, tables)
	assert.Empty(t, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM v_catalog.tables WHERE table_schema = ? AND table_name = ?`)).
		WithArgs("sales", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES`)).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ok, err := NewVertica("").TableExists(context.Background(), db, "sales.orders")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewMySQL().TableExists(context.Background(), db, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
