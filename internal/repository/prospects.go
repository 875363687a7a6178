package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/leadgen/internal/dto"
	"github.com/octobees/leadgen/internal/entity"
)

// ProspectsRepository describes persistence operations for prospects.
type ProspectsRepository interface {
	Upsert(ctx context.Context, prospect *entity.Prospect) error
	List(ctx context.Context, filter dto.ProspectFilter) ([]entity.Prospect, error)
	Get(ctx context.Context, orgID, placeID string) (*entity.Prospect, error)
}

// ErrProspectNotFound indicates no prospect exists for the organisation and place.
var ErrProspectNotFound = errors.New("prospect not found")

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGXProspectsRepository implements ProspectsRepository using pgx.
type PGXProspectsRepository struct {
	pool pgxPool
}

// NewPGXProspectsRepository wires a pgx backed repository.
func NewPGXProspectsRepository(pool *pgxpool.Pool) *PGXProspectsRepository {
	return &PGXProspectsRepository{pool: pool}
}

var _ pgxPool = (*pgxpool.Pool)(nil)

const prospectColumns = `
            id, org_id, place_id, name, address, phone, website, rating, reviews,
            business_status, types, latitude, longitude,
            trust_score, trust_flags, is_likely_spam,
            best_email, emails, linkedin_url, facebook_url, instagram_url,
            cms, has_contact_form, has_live_chat, has_booking, employee_count, founded_year, completeness,
            automation_score, automation_reasons, automation_signals,
            run_id, query, city, category, page_index, rank, discovered_at,
            raw, created_at, updated_at`

const upsertProspectSQL = `
        INSERT INTO prospects (
            org_id, place_id, name, address, phone, website, rating, reviews,
            business_status, types, latitude, longitude,
            trust_score, trust_flags, is_likely_spam,
            best_email, emails, linkedin_url, facebook_url, instagram_url,
            cms, has_contact_form, has_live_chat, has_booking, employee_count, founded_year, completeness,
            automation_score, automation_reasons, automation_signals,
            run_id, query, city, category, page_index, rank, discovered_at,
            raw, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8,
            $9, $10, $11, $12,
            $13, $14, $15,
            $16, $17, $18, $19, $20,
            $21, $22, $23, $24, $25, $26, $27,
            $28, $29, $30::jsonb,
            $31, $32, $33, $34, $35, $36, $37,
            $38::jsonb, NOW()
        )
        ON CONFLICT (org_id, place_id) DO UPDATE SET
            name = EXCLUDED.name,
            address = EXCLUDED.address,
            phone = EXCLUDED.phone,
            website = EXCLUDED.website,
            rating = EXCLUDED.rating,
            reviews = EXCLUDED.reviews,
            business_status = EXCLUDED.business_status,
            types = EXCLUDED.types,
            latitude = EXCLUDED.latitude,
            longitude = EXCLUDED.longitude,
            trust_score = EXCLUDED.trust_score,
            trust_flags = EXCLUDED.trust_flags,
            is_likely_spam = EXCLUDED.is_likely_spam,
            best_email = COALESCE(EXCLUDED.best_email, prospects.best_email),
            emails = EXCLUDED.emails,
            linkedin_url = COALESCE(EXCLUDED.linkedin_url, prospects.linkedin_url),
            facebook_url = COALESCE(EXCLUDED.facebook_url, prospects.facebook_url),
            instagram_url = COALESCE(EXCLUDED.instagram_url, prospects.instagram_url),
            cms = EXCLUDED.cms,
            has_contact_form = EXCLUDED.has_contact_form,
            has_live_chat = EXCLUDED.has_live_chat,
            has_booking = EXCLUDED.has_booking,
            employee_count = EXCLUDED.employee_count,
            founded_year = EXCLUDED.founded_year,
            completeness = EXCLUDED.completeness,
            automation_score = EXCLUDED.automation_score,
            automation_reasons = EXCLUDED.automation_reasons,
            automation_signals = EXCLUDED.automation_signals,
            run_id = EXCLUDED.run_id,
            query = EXCLUDED.query,
            city = EXCLUDED.city,
            category = EXCLUDED.category,
            page_index = EXCLUDED.page_index,
            rank = EXCLUDED.rank,
            discovered_at = EXCLUDED.discovered_at,
            raw = EXCLUDED.raw,
            updated_at = NOW();
    `

// Upsert inserts or updates a prospect keyed by (org_id, place_id).
func (r *PGXProspectsRepository) Upsert(ctx context.Context, p *entity.Prospect) error {
	if p == nil {
		return fmt.Errorf("prospect payload is nil")
	}
	if strings.TrimSpace(p.OrgID) == "" || strings.TrimSpace(p.PlaceID) == "" {
		return fmt.Errorf("prospect requires org_id and place_id")
	}

	raw := p.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	signals := p.AutomationSignals
	if signals == nil {
		signals = map[string]int{}
	}
	signalsJSON, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("marshal automation signals: %w", err)
	}

	_, err = r.pool.Exec(ctx, upsertProspectSQL,
		p.OrgID,
		p.PlaceID,
		p.Name,
		stringOrNil(p.Address),
		stringOrNil(p.Phone),
		stringOrNil(p.Website),
		floatOrNil(p.Rating),
		intOrNil(p.Reviews),
		stringOrNil(p.BusinessStatus),
		stringSliceOrEmpty(p.Types),
		floatOrNil(p.Latitude),
		floatOrNil(p.Longitude),
		intOrNil(p.TrustScore),
		stringSliceOrEmpty(p.TrustFlags),
		p.IsLikelySpam,
		stringOrNil(p.BestEmail),
		stringSliceOrEmpty(p.Emails),
		stringOrNil(p.LinkedInURL),
		stringOrNil(p.FacebookURL),
		stringOrNil(p.InstagramURL),
		stringOrNil(p.CMS),
		p.HasContactForm,
		p.HasLiveChat,
		p.HasBooking,
		intOrNil(p.EmployeeCount),
		intOrNil(p.FoundedYear),
		intOrNil(p.Completeness),
		p.AutomationScore,
		stringSliceOrEmpty(p.AutomationReasons),
		string(signalsJSON),
		p.RunID,
		p.Query,
		p.City,
		stringOrNil(p.Category),
		p.PageIndex,
		p.Rank,
		p.DiscoveredAt,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("upsert prospect: %w", err)
	}
	return nil
}

// List retrieves prospects matching the filter, highest automation score first.
func (r *PGXProspectsRepository) List(ctx context.Context, filter dto.ProspectFilter) ([]entity.Prospect, error) {
	query := strings.Builder{}
	query.WriteString("SELECT")
	query.WriteString(prospectColumns)
	query.WriteString("\n        FROM prospects")

	var (
		clauses []string
		args    []any
		idx     = 1
	)
	if filter.OrgID != "" {
		clauses = append(clauses, fmt.Sprintf("org_id = $%d", idx))
		args = append(args, filter.OrgID)
		idx++
	}
	if filter.City != "" {
		clauses = append(clauses, fmt.Sprintf("LOWER(city) = LOWER($%d)", idx))
		args = append(args, filter.City)
		idx++
	}
	if filter.Category != "" {
		clauses = append(clauses, fmt.Sprintf("LOWER(category) = LOWER($%d)", idx))
		args = append(args, filter.Category)
		idx++
	}
	if filter.RunID != nil {
		clauses = append(clauses, fmt.Sprintf("run_id = $%d", idx))
		args = append(args, *filter.RunID)
		idx++
	}
	if filter.MinScore != nil {
		clauses = append(clauses, fmt.Sprintf("automation_score >= $%d", idx))
		args = append(args, *filter.MinScore)
		idx++
	}
	if len(clauses) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(clauses, " AND "))
	}
	query.WriteString(" ORDER BY automation_score DESC, updated_at DESC, name ASC")

	page, perPage := filter.Bounds()
	query.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1))
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list prospects: %w", err)
	}
	defer rows.Close()

	var prospects []entity.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		prospects = append(prospects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prospects: %w", err)
	}
	return prospects, nil
}

// Get returns one prospect by organisation and place id.
func (r *PGXProspectsRepository) Get(ctx context.Context, orgID, placeID string) (*entity.Prospect, error) {
	query := "SELECT" + prospectColumns + "\n        FROM prospects WHERE org_id = $1 AND place_id = $2"
	p, err := scanProspect(r.pool.QueryRow(ctx, query, orgID, placeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProspectNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProspect(row pgx.Row) (entity.Prospect, error) {
	var (
		p              entity.Prospect
		address        sql.NullString
		phone          sql.NullString
		website        sql.NullString
		rating         sql.NullFloat64
		reviews        sql.NullInt64
		businessStatus sql.NullString
		latitude       sql.NullFloat64
		longitude      sql.NullFloat64
		trustScore     sql.NullInt64
		bestEmail      sql.NullString
		linkedIn       sql.NullString
		facebook       sql.NullString
		instagram      sql.NullString
		cms            sql.NullString
		employeeCount  sql.NullInt64
		foundedYear    sql.NullInt64
		completeness   sql.NullInt64
		signalsJSON    []byte
		category       sql.NullString
		raw            []byte
	)

	err := row.Scan(
		&p.ID, &p.OrgID, &p.PlaceID, &p.Name, &address, &phone, &website, &rating, &reviews,
		&businessStatus, &p.Types, &latitude, &longitude,
		&trustScore, &p.TrustFlags, &p.IsLikelySpam,
		&bestEmail, &p.Emails, &linkedIn, &facebook, &instagram,
		&cms, &p.HasContactForm, &p.HasLiveChat, &p.HasBooking, &employeeCount, &foundedYear, &completeness,
		&p.AutomationScore, &p.AutomationReasons, &signalsJSON,
		&p.RunID, &p.Query, &p.City, &category, &p.PageIndex, &p.Rank, &p.DiscoveredAt,
		&raw, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan prospect: %w", err)
	}

	p.Address = nullStringToPtr(address)
	p.Phone = nullStringToPtr(phone)
	p.Website = nullStringToPtr(website)
	p.BusinessStatus = nullStringToPtr(businessStatus)
	p.BestEmail = nullStringToPtr(bestEmail)
	p.LinkedInURL = nullStringToPtr(linkedIn)
	p.FacebookURL = nullStringToPtr(facebook)
	p.InstagramURL = nullStringToPtr(instagram)
	p.CMS = nullStringToPtr(cms)
	p.Category = nullStringToPtr(category)
	p.Rating = nullFloatToPtr(rating)
	p.Latitude = nullFloatToPtr(latitude)
	p.Longitude = nullFloatToPtr(longitude)
	p.Reviews = nullIntToPtr(reviews)
	p.TrustScore = nullIntToPtr(trustScore)
	p.EmployeeCount = nullIntToPtr(employeeCount)
	p.FoundedYear = nullIntToPtr(foundedYear)
	p.Completeness = nullIntToPtr(completeness)

	if len(signalsJSON) > 0 {
		if err := json.Unmarshal(signalsJSON, &p.AutomationSignals); err != nil {
			return p, fmt.Errorf("unmarshal automation signals: %w", err)
		}
	}
	if len(raw) > 0 {
		p.Raw = json.RawMessage(raw)
	} else {
		p.Raw = json.RawMessage("{}")
	}
	return p, nil
}

func nullStringToPtr(value sql.NullString) *string {
	if value.Valid {
		val := value.String
		return &val
	}
	return nil
}

func nullFloatToPtr(value sql.NullFloat64) *float64 {
	if value.Valid {
		val := value.Float64
		return &val
	}
	return nil
}

func nullIntToPtr(value sql.NullInt64) *int {
	if value.Valid {
		val := int(value.Int64)
		return &val
	}
	return nil
}

func stringOrNil(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}

func floatOrNil(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func intOrNil(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringSliceOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
