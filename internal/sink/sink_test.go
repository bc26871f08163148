package sink

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/sqlutil"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Account.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVSinkCountsRows(t *testing.T) {
	s := &CSVSink{}
	path := writeCSV(t, "Id,Name\n001,Acme\n002,Globex\n")

	rows, err := s.Store(context.Background(), "Account", path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
}

func TestCSVSinkEmptyFile(t *testing.T) {
	s := &CSVSink{}
	path := writeCSV(t, "")

	rows, err := s.Store(context.Background(), "Account", path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestNewSelectsConfiguredSink(t *testing.T) {
	s, err := New(context.Background(), config.OutputConfig{Sink: "csv"}, logger.NewDefault())
	require.NoError(t, err)
	assert.IsType(t, &CSVSink{}, s)

	_, err = New(context.Background(), config.OutputConfig{Sink: "s3"}, logger.NewDefault())
	assert.Error(t, err)
}

func TestDBSinkStoreMySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &DBSink{db: db, dialect: sqlutil.DialectMySQL, logger: logger.NewDefault()}
	path := writeCSV(t, "Id,Name\n001,Acme\n002,Globex\n")

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `Account` (`Id` TEXT, `Name` TEXT)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `Account`")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `Account` (`Id`, `Name`) VALUES (?, ?), (?, ?)")).
		WithArgs("001", "Acme", "002", "Globex").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	rows, err := s.Store(context.Background(), "Account", path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSinkStorePostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &DBSink{db: db, dialect: sqlutil.DialectPostgres, logger: logger.NewDefault()}
	path := writeCSV(t, "Id,Name\n001,Acme\n002,Globex\n")

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "Account" ("Id" TEXT, "Name" TEXT)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "Account"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "Account" ("Id", "Name") VALUES ($1, $2), ($3, $4)`)).
		WithArgs("001", "Acme", "002", "Globex").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	rows, err := s.Store(context.Background(), "Account", path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Re-running a job replaces the previous load instead of appending to it.
func TestDBSinkStoreOverwritesPreviousRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &DBSink{db: db, dialect: sqlutil.DialectMySQL, logger: logger.NewDefault()}
	path := writeCSV(t, "Id,Name\n001,Acme\n")

	for i := 0; i < 2; i++ {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `Account`")).
			WillReturnResult(sqlmock.NewResult(0, int64(i)))
		mock.ExpectExec("INSERT INTO").
			WithArgs("001", "Acme").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	for i := 0; i < 2; i++ {
		rows, err := s.Store(context.Background(), "Account", path)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rows)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBSinkRejectsUnsafeIdentifiers(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &DBSink{db: db, dialect: sqlutil.DialectMySQL, logger: logger.NewDefault()}
	path := writeCSV(t, "Id;DROP,Name\n001,Acme\n")

	_, err = s.Store(context.Background(), "Account", path)
	require.Error(t, err)

	var invalid *sqlutil.InvalidIdentifierError
	assert.ErrorAs(t, err, &invalid)
}

func TestDBSinkEmptyExport(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &DBSink{db: db, dialect: sqlutil.DialectMySQL, logger: logger.NewDefault()}
	path := writeCSV(t, "Id,Name\n")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	rows, err := s.Store(context.Background(), "Account", path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildDSN(t *testing.T) {
	mysql := config.DatabaseConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Database: "vault"}
	assert.Equal(t, "u:p@tcp(db:3306)/vault?parseTime=true&multiStatements=true", BuildDSN(mysql))

	pg := config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "vault"}
	assert.Equal(t, "postgres://u:p@db:5432/vault", BuildDSN(pg))
}
