package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	in := `create table t (id int);
insert into t values ('a;b');
-- trailing statement without semicolon
select 1`
	stmts := splitStatements(in)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[1], "'a;b'") {
		t.Fatalf("semicolon inside a quoted string must not split: %q", stmts[1])
	}
}

func TestCollectSQLSortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_second.up.sql", "0001_first.up.sql", "0001_first.down.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	files, err := collectSQL(dir, ".up.sql")
	if err != nil {
		t.Fatalf("collectSQL: %v", err)
	}
	if len(files) != 2 || files[0].Base != "0001_first.up.sql" || files[1].Base != "0002_second.up.sql" {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL(filepath.Join(t.TempDir(), "absent"), ".up.sql")
	if err != nil || files != nil {
		t.Fatalf("missing dir should be empty, got %v %v", files, err)
	}
}

func TestUpAppliesPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	dir := t.TempDir()
	migration := "create table widgets (id text primary key);\ninsert into widgets values ('seed');"
	if err := os.WriteFile(filepath.Join(dir, "0001_widgets.up.sql"), []byte(migration), 0o600); err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table widgets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into widgets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0001_widgets.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := NewManager(db, dir)
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpSkipsExecuted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0001_widgets.up.sql"), []byte("select 1;"), 0o600); err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_widgets.up.sql"))

	m := NewManager(db, dir)
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("an already applied migration must not re-run: %v", err)
	}
}

func TestDownRequiresHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations order by applied_at asc").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	m := NewManager(db, t.TempDir())
	if err := m.Down(context.Background()); err == nil {
		t.Fatal("Down with no history must fail")
	}
}

func TestWithTable(t *testing.T) {
	m := NewManager(nil, "", WithTable("custom_history"))
	if m.table != "custom_history" {
		t.Fatalf("table = %q", m.table)
	}
	m = NewManager(nil, "", WithTable(""))
	if m.table != defaultMigrationsTable {
		t.Fatalf("empty override must keep the default, got %q", m.table)
	}
}
