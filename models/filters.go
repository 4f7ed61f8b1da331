package models

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smartsetter/ssot_backend/utils"
	"gorm.io/gorm"
)

// PortalFilter is one clause of an agent search expression. Clauses combine
// with AND; Value carries a string, a list, or (for the within_polygon
// pseudo-field) a GeoJSON geometry.
type PortalFilter struct {
	Field string `json:"field" binding:"required"`
	Type  string `json:"type" binding:"required"`
	Value any    `json:"value"`
}

const (
	FilterIs          = "is"
	FilterIsNot       = "is_not"
	FilterIsOneOf     = "is_one_of"
	FilterIsNoneOf    = "is_none_of"
	FilterContains    = "contains"
	FilterNotContains = "not_contains"
	FilterGreaterThan = "gt"
	FilterLessThan    = "lt"
	FilterExists      = "exists"
	FilterNotExists   = "not_exists"

	filterFieldMLSID         = "mls_id"
	filterFieldWithinPolygon = "within_polygon"
)

// allowedFilterFields whitelists queryable columns; text fields get
// case-insensitive comparison.
var allowedFilterFields = map[string]bool{
	"name":                       true,
	"email":                      true,
	"phone":                      true,
	"city":                       true,
	"state":                      true,
	"zipcode":                    true,
	"status":                     true,
	"role":                       true,
	"office_name":                true,
	"office_id":                  true,
	"brand_id":                   false,
	"mls_id":                     true,
	"most_transacted_city":       true,
	"years_in_business":          false,
	"total_transactions_count":   false,
	"listing_transactions_count": false,
	"selling_transactions_count": false,
	"total_production":           false,
	"listing_production":         false,
	"selling_production":         false,
	"tenure_days":                false,
	"likelihood_to_move":         false,
	"last_activity_date":         false,
	"tenure_start_date":          false,
}

// SortFilters orders clauses so the mls_id clause comes first; the rest keep
// their relative order. The mls_id clause selects the partition the remaining
// clauses run against, so expressions are order-independent for callers.
func SortFilters(filters []PortalFilter) []PortalFilter {
	sorted := make([]PortalFilter, len(filters))
	copy(sorted, filters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Field == filterFieldMLSID && sorted[j].Field != filterFieldMLSID
	})
	return sorted
}

// FilterClause translates one clause to a SQL condition and its arguments.
// within_polygon is a pseudo-field: its value is a GeoJSON geometry tested
// against the agent location, whatever the clause type says.
func FilterClause(field, ftype string, value any) (string, []any, error) {
	if field == filterFieldWithinPolygon {
		geojson, err := utils.MarshalToJSON(value)
		if err != nil {
			return "", nil, err
		}
		return "ST_Intersects(location, ST_SetSRID(ST_GeomFromGeoJSON(?), 4326))",
			[]any{geojson}, nil
	}

	isText, ok := allowedFilterFields[field]
	if !ok {
		return "", nil, fmt.Errorf("unknown filter field %q", field)
	}

	column := field
	if isText {
		column = fmt.Sprintf("LOWER(%s)", field)
	}

	switch ftype {
	case FilterIs, FilterIsNot:
		op := "="
		if ftype == FilterIsNot {
			op = "<>"
		}
		return fmt.Sprintf("%s %s ?", column, op), []any{normalizeFilterValue(value, isText)}, nil

	case FilterIsOneOf, FilterIsNoneOf:
		values, err := filterValueList(value, isText)
		if err != nil {
			return "", nil, err
		}
		op := "IN"
		if ftype == FilterIsNoneOf {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s ?", column, op), []any{values}, nil

	case FilterContains, FilterNotContains:
		s, ok := value.(string)
		if !ok {
			return "", nil, fmt.Errorf("filter %q on %q needs a string value", ftype, field)
		}
		op := "ILIKE"
		if ftype == FilterNotContains {
			op = "NOT ILIKE"
		}
		return fmt.Sprintf("%s %s ?", field, op), []any{"%" + s + "%"}, nil

	case FilterGreaterThan:
		return fmt.Sprintf("%s > ?", field), []any{value}, nil

	case FilterLessThan:
		return fmt.Sprintf("%s < ?", field), []any{value}, nil

	case FilterExists:
		if isText {
			return fmt.Sprintf("%s IS NOT NULL AND %s <> ''", field, field), nil, nil
		}
		return fmt.Sprintf("%s IS NOT NULL", field), nil, nil

	case FilterNotExists:
		if isText {
			return fmt.Sprintf("(%s IS NULL OR %s = '')", field, field), nil, nil
		}
		return fmt.Sprintf("%s IS NULL", field), nil, nil

	default:
		return "", nil, fmt.Errorf("unknown filter type %q", ftype)
	}
}

func normalizeFilterValue(value any, isText bool) any {
	if !isText {
		return value
	}
	if s, ok := value.(string); ok {
		return strings.ToLower(s)
	}
	return value
}

func filterValueList(value any, isText bool) ([]any, error) {
	raw, ok := value.([]any)
	if !ok {
		if strs, ok := value.([]string); ok {
			raw = make([]any, len(strs))
			for i, s := range strs {
				raw[i] = s
			}
		} else {
			return nil, fmt.Errorf("list filter needs a list value")
		}
	}
	values := make([]any, len(raw))
	for i, v := range raw {
		values[i] = normalizeFilterValue(v, isText)
	}
	return values, nil
}

// ApplyAgentFilters turns a filter expression into an agent query. A leading
// mls_id "is" clause switches the query to that MLS's materialized view; all
// other clauses become WHERE conditions on the selected table.
func ApplyAgentFilters(ctx context.Context, db *gorm.DB, filters []PortalFilter) (*gorm.DB, error) {
	tx := db.WithContext(ctx).Table(Agent{}.TableName())

	for _, filter := range SortFilters(filters) {
		if filter.Field == filterFieldMLSID && filter.Type == FilterIs {
			mlsID, _ := filter.Value.(string)
			mls := GetByIDOrNone[MLS](ctx, mlsID)
			if mls == nil {
				return nil, utils.ErrorRecordNotFound
			}
			tx = db.WithContext(ctx).Table(mls.AgentMatviewTableName())
			continue
		}
		condition, args, err := FilterClause(filter.Field, filter.Type, filter.Value)
		if err != nil {
			return nil, err
		}
		tx = tx.Where(condition, args...)
	}
	return tx, nil
}

// SearchAgents runs a filter expression and returns up to limit agents.
func SearchAgents(ctx context.Context, filters []PortalFilter, limit int) ([]Agent, error) {
	db := dbOrNil()
	if db == nil {
		return nil, utils.ErrorRecordNotFound
	}
	tx, err := ApplyAgentFilters(ctx, db, filters)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var agents []Agent
	if err := tx.Limit(limit).Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}
