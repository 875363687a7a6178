package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/octobees/leadgen/internal/dto"
	"github.com/octobees/leadgen/internal/entity"
)

type stubPool struct {
	queryRowFunc func(ctx context.Context, query string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
}

func (s *stubPool) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if s.queryRowFunc != nil {
		return s.queryRowFunc(ctx, query, args...)
	}
	return &stubRow{scan: func(dest ...any) error { return nil }}
}

func (s *stubPool) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	if s.queryFunc != nil {
		return s.queryFunc(ctx, query, args...)
	}
	return nil, errors.New("query not implemented")
}

func (s *stubPool) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if s.execFunc != nil {
		return s.execFunc(ctx, query, args...)
	}
	return pgconn.CommandTag{}, errors.New("exec not implemented")
}

type stubRow struct {
	scan func(dest ...any) error
}

func (s *stubRow) Scan(dest ...any) error {
	if s.scan != nil {
		return s.scan(dest...)
	}
	return nil
}

type stubRows struct {
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (s *stubRows) Close() {}

func (s *stubRows) Err() error { return s.err }

func (s *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (s *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (s *stubRows) Next() bool {
	if s.err != nil {
		return false
	}
	if s.idx < len(s.scans) {
		s.idx++
		return true
	}
	return false
}

func (s *stubRows) Scan(dest ...any) error {
	if s.idx == 0 || s.idx > len(s.scans) {
		return errors.New("scan called out of order")
	}
	return s.scans[s.idx-1](dest...)
}

func (s *stubRows) Values() ([]any, error) { return nil, nil }

func (s *stubRows) RawValues() [][]byte { return nil }

func (s *stubRows) Conn() *pgx.Conn { return nil }

var (
	fixtureID    = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	fixtureRunID = uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	fixtureTime  = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

// prospectRowValues lists one value per selected column, in column order.
func prospectRowValues() []any {
	str := func(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }
	return []any{
		fixtureID, "acme-agency", "place-123", "Acme Plumbing",
		str("1 Main St, Austin, TX"), str("+15125550100"), str("https://acmeplumbing.com"),
		sql.NullFloat64{Float64: 4.2, Valid: true}, sql.NullInt64{Int64: 37, Valid: true},
		str("OPERATIONAL"), []string{"plumber"},
		sql.NullFloat64{Float64: 30.26, Valid: true}, sql.NullFloat64{Float64: -97.74, Valid: true},
		sql.NullInt64{Int64: 100, Valid: true}, []string{}, false,
		str("info@acmeplumbing.com"), []string{"info@acmeplumbing.com"},
		str("https://www.linkedin.com/company/acme-plumbing"), sql.NullString{}, sql.NullString{},
		str("WordPress"), true, false, true,
		sql.NullInt64{}, sql.NullInt64{Int64: 1998, Valid: true}, sql.NullInt64{Int64: 40, Valid: true},
		67, []string{"No website"}, []byte(`{"no_website":25}`),
		fixtureRunID, "plumber", "Austin", str("plumber"), 0, 3, fixtureTime,
		[]byte(`{"trust":{}}`), fixtureTime, fixtureTime,
	}
}

func scanInto(values []any) func(dest ...any) error {
	return func(dest ...any) error {
		if len(dest) != len(values) {
			return errors.New("column count mismatch")
		}
		for i, d := range dest {
			reflect.ValueOf(d).Elem().Set(reflect.ValueOf(values[i]))
		}
		return nil
	}
}

func TestPGXProspectsRepository_UpsertValidation(t *testing.T) {
	repo := &PGXProspectsRepository{pool: &stubPool{}}
	if err := repo.Upsert(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil prospect")
	}
	if err := repo.Upsert(context.Background(), &entity.Prospect{OrgID: "acme"}); err == nil {
		t.Fatalf("expected error for missing place id")
	}
}

func TestPGXProspectsRepository_Upsert(t *testing.T) {
	var (
		gotQuery string
		gotArgs  []any
	)
	repo := &PGXProspectsRepository{pool: &stubPool{
		execFunc: func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
			gotQuery = query
			gotArgs = args
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}}

	website := "https://acmeplumbing.com"
	empty := ""
	prospect := &entity.Prospect{
		OrgID:             "acme-agency",
		PlaceID:           "place-123",
		Name:              "Acme Plumbing",
		Website:           &website,
		Phone:             &empty,
		AutomationScore:   67,
		AutomationSignals: map[string]int{"no_phone": 8},
		RunID:             fixtureRunID,
		Query:             "plumber",
		City:              "Austin",
		DiscoveredAt:      fixtureTime,
	}
	if err := repo.Upsert(context.Background(), prospect); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(gotQuery, "ON CONFLICT (org_id, place_id)") {
		t.Fatalf("expected upsert keyed by organisation and place, got %s", gotQuery)
	}
	if len(gotArgs) != 38 {
		t.Fatalf("expected 38 args, got %d", len(gotArgs))
	}
	if gotArgs[0] != "acme-agency" || gotArgs[1] != "place-123" {
		t.Fatalf("unexpected key args: %v %v", gotArgs[0], gotArgs[1])
	}
	if gotArgs[4] != nil {
		t.Fatalf("expected empty phone to be stored as NULL, got %v", gotArgs[4])
	}
	if gotArgs[5] != website {
		t.Fatalf("expected website arg, got %v", gotArgs[5])
	}
	if types, ok := gotArgs[9].([]string); !ok || types == nil {
		t.Fatalf("expected empty types slice, got %#v", gotArgs[9])
	}
	if gotArgs[29] != `{"no_phone":8}` {
		t.Fatalf("unexpected signals json: %v", gotArgs[29])
	}
	if gotArgs[37] != "{}" {
		t.Fatalf("expected empty raw payload, got %v", gotArgs[37])
	}
}

func TestPGXProspectsRepository_UpsertWrapsError(t *testing.T) {
	repo := &PGXProspectsRepository{pool: &stubPool{
		execFunc: func(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("connection reset")
		},
	}}
	err := repo.Upsert(context.Background(), &entity.Prospect{OrgID: "a", PlaceID: "b"})
	if err == nil || !strings.Contains(err.Error(), "upsert prospect") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestPGXProspectsRepository_List(t *testing.T) {
	var (
		gotQuery string
		gotArgs  []any
	)
	minScore := 50
	runID := fixtureRunID
	repo := &PGXProspectsRepository{pool: &stubPool{
		queryFunc: func(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
			gotQuery = query
			gotArgs = args
			return &stubRows{scans: []func(dest ...any) error{scanInto(prospectRowValues())}}, nil
		},
	}}

	prospects, err := repo.List(context.Background(), dto.ProspectFilter{
		OrgID:    "acme-agency",
		City:     "Austin",
		RunID:    &runID,
		MinScore: &minScore,
		Page:     2,
		PerPage:  500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, clause := range []string{"org_id = $1", "LOWER(city) = LOWER($2)", "run_id = $3", "automation_score >= $4", "LIMIT $5 OFFSET $6"} {
		if !strings.Contains(gotQuery, clause) {
			t.Fatalf("expected query to contain %q, got %s", clause, gotQuery)
		}
	}
	if gotArgs[4] != 100 || gotArgs[5] != 100 {
		t.Fatalf("expected per_page capped at 100 with offset 100, got %v %v", gotArgs[4], gotArgs[5])
	}

	if len(prospects) != 1 {
		t.Fatalf("expected 1 prospect, got %d", len(prospects))
	}
	p := prospects[0]
	if p.ID != fixtureID || p.PlaceID != "place-123" || p.RunID != fixtureRunID {
		t.Fatalf("unexpected identity: %+v", p)
	}
	if p.Website == nil || *p.Website != "https://acmeplumbing.com" {
		t.Fatalf("expected website to be set")
	}
	if p.FacebookURL != nil || p.EmployeeCount != nil {
		t.Fatalf("expected null columns to stay nil")
	}
	if p.FoundedYear == nil || *p.FoundedYear != 1998 {
		t.Fatalf("expected founded year 1998")
	}
	if p.AutomationSignals["no_website"] != 25 {
		t.Fatalf("unexpected signals: %#v", p.AutomationSignals)
	}
	if string(p.Raw) != `{"trust":{}}` {
		t.Fatalf("unexpected raw payload: %s", string(p.Raw))
	}
	var decoded map[string]any
	if err := json.Unmarshal(p.Raw, &decoded); err != nil {
		t.Fatalf("raw payload should be valid json: %v", err)
	}
}

func TestPGXProspectsRepository_GetNotFound(t *testing.T) {
	repo := &PGXProspectsRepository{pool: &stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row {
			return &stubRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}}
	if _, err := repo.Get(context.Background(), "acme", "missing"); !errors.Is(err, ErrProspectNotFound) {
		t.Fatalf("expected ErrProspectNotFound, got %v", err)
	}
}

func TestPGXProspectsRepository_Get(t *testing.T) {
	var gotArgs []any
	repo := &PGXProspectsRepository{pool: &stubPool{
		queryRowFunc: func(ctx context.Context, query string, args ...any) pgx.Row {
			gotArgs = args
			return &stubRow{scan: scanInto(prospectRowValues())}
		},
	}}
	p, err := repo.Get(context.Background(), "acme-agency", "place-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "acme-agency" || gotArgs[1] != "place-123" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
	if p.CMS == nil || *p.CMS != "WordPress" || !p.HasContactForm || !p.HasBooking {
		t.Fatalf("unexpected intelligence fields: %+v", p)
	}
}
