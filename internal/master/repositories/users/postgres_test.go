package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/master/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQ = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*first_name,\s*last_name,\s*auth_token,\s*email,\s*username,\s*active\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*RETURNING\s+member_since,\s*last_tos_signed\s*$`

var userCols = []string{"id", "first_name", "last_name", "auth_token", "email", "username", "active", "member_since", "last_tos_signed"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs(sqlmock.AnyArg(), "Ada", "Lovelace", "tok", "ada@example.com", "ada", true).
		WillReturnRows(sqlmock.NewRows([]string{"member_since", "last_tos_signed"}).AddRow(now, now))

	u := &models.User{FirstName: "Ada", LastName: "Lovelace", AuthToken: "tok", Email: "ada@example.com", Username: "ada", Active: true}
	got, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID == "" || !got.MemberSince.Equal(now) || !got.LastTOSSigned.Equal(now) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"users_email_key", common.ErrEmailUsed},
		{"users_username_key", common.ErrUsernameUsed},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(insertQ).WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			_, err := repo.Create(context.Background(), &models.User{Email: "a@b.c", Username: "a"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := "5f1c2a9e-0b7d-4c1a-9a51-3e2f7d9b8c10"
	now := time.Now()
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(id, "Ada", "Lovelace", "tok", "ada@example.com", "ada", false, now, now))

	got, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.Username != "ada" || got.Active {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := "5f1c2a9e-0b7d-4c1a-9a51-3e2f7d9b8c10"
	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users`).WithArgs(id).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByID_MalformedIDSkipsQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected query: %v", err)
	}
}

func TestFindByEmailOrUsername(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s+OR\s+username\s*=\s*\$2\s+ORDER\s+BY.*LIMIT\s+1\s*$`).
		WithArgs("ada@example.com", "ada").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("id-1", "Ada", "L", "t", "ada@example.com", "other", true, now, now))

	got, err := repo.FindByEmailOrUsername(context.Background(), "ada@example.com", "ada")
	if err != nil {
		t.Fatalf("FindByEmailOrUsername error: %v", err)
	}
	if got.Email != "ada@example.com" || got.Username != "other" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestFindByEmailOrUsername_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmailOrUsername(context.Background(), "x@y.z", "x")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	cols := append(append([]string{}, userCols...), "count")
	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+users\s+u\s+LEFT\s+JOIN\s+applications\s+a.*GROUP\s+BY\s+u\.id`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("id-1", "Ada", "Lovelace", "t", "ada@example.com", "ada", true, now, now, 2).
			AddRow("id-2", "Alan", "Turing", "t", "alan@example.com", "alan", true, now, now, 0))

	got, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 || got[0].AppCount != 2 || got[1].Username != "alan" {
		t.Fatalf("unexpected users: %+v", got)
	}
}

func TestList_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT`).WillReturnError(errors.New("boom"))

	_, err := repo.List(context.Background())
	if err == nil || !regexp.MustCompile(`db error: .*boom`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
