package servers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/usenetsync/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)INSERT INTO servers\b.*ON CONFLICT \(server_id\)\s*DO UPDATE SET\b`
	mock.ExpectExec(q).
		WithArgs("news.example:563", "news.example", 563, true, "u", "p", 8, 1, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.ServerDescriptor{
		ServerID: "news.example:563", Host: "news.example", Port: 563, TLS: true,
		Username: "u", Password: "p", MaxConnections: 8, Priority: 1, Enabled: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_ConflictKeepsStoredEnabled(t *testing.T) {
	// The DO UPDATE branch must not touch enabled; a disabled server stays
	// disabled when the config is re-synced at startup. Go's RE2 regexp has
	// no negative lookahead, so the clause is checked with a matcher func.
	matcher := sqlmock.QueryMatcherFunc(func(expectedSQL, actualSQL string) error {
		i := strings.Index(actualSQL, "DO UPDATE SET")
		if i < 0 {
			return fmt.Errorf("query missing DO UPDATE SET clause: %s", actualSQL)
		}
		if strings.Contains(actualSQL[i:], "enabled") {
			return fmt.Errorf("DO UPDATE SET clause must not touch enabled: %s", actualSQL)
		}
		return nil
	})
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	repo := NewPostgresRepository(db)
	defer db.Close()

	mock.ExpectExec(`DO UPDATE SET without enabled`).
		WithArgs("news.example:563", "news.example", 563, true, "u", "p", 8, 1, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), &models.ServerDescriptor{
		ServerID: "news.example:563", Host: "news.example", Port: 563, TLS: true,
		Username: "u", Password: "p", MaxConnections: 8, Priority: 1, Enabled: true,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestList_OrderedByPriority(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"server_id", "host", "port", "tls", "username", "password", "max_connections", "priority", "enabled"}).
		AddRow("a:119", "a", 119, false, "", "", 4, 1, true).
		AddRow("b:119", "b", 119, false, "", "", 4, 10, false)

	mock.ExpectQuery(`(?s)SELECT server_id, host, port, tls, username, password, max_connections, priority, enabled\s+FROM servers ORDER BY priority`).
		WillReturnRows(rows)

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ServerID != "a:119" || got[1].Enabled {
		t.Fatalf("unexpected servers: %+v", got)
	}
}

func TestSetEnabled_UnknownServer(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE servers SET enabled=\$2 WHERE server_id=\$1`).
		WithArgs("missing:119", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetEnabled(context.Background(), "missing:119", false)
	if err == nil || !regexp.MustCompile(`unexpected rows affected: 0`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
}

func TestList_QueryErr(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM servers ORDER BY priority`).
		WillReturnError(errors.New("db err"))

	_, err := repo.List(context.Background())
	if err == nil || !regexp.MustCompile(`failed to select servers: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped select error, got %v", err)
	}
}
