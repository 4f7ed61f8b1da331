package models

import (
	"context"
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Source systems for the Reality DB feed.
const (
	SourceReality       = "reality"
	SourceConstellation = "constellation"
)

const StatusActive = "Active"

// Reality DB source tables, one per entity kind.
const (
	RealityTableOffices      = "tblOffices"
	RealityTableAgents       = "tblAgents"
	RealityTableTransactions = "tblTransactions"
)

// BulkBatchSize bounds feed chunks, bulk inserts and stats batches alike.
const BulkBatchSize = 1000

// JSONMap stores the raw source payload as a jsonb column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
}

func (JSONMap) GormDataType() string {
	return "jsonb"
}

// StringList is a jsonb-backed list of lowercase text marks.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(l))
}

func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported StringList source type %T", value)
	}
}

func (StringList) GormDataType() string {
	return "jsonb"
}

// Point is a WGS84 geometry(Point,4326) column. Values are written as EWKT
// and read back from the hex EWKB Postgres returns.
type Point struct {
	Lng float64
	Lat float64
}

func (p Point) Value() (driver.Value, error) {
	return fmt.Sprintf("SRID=4326;POINT(%v %v)", p.Lng, p.Lat), nil
}

func (p *Point) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("unsupported Point source type %T", value)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.Contains(strings.ToUpper(raw), "POINT") {
		return p.scanWKT(raw)
	}
	return p.scanEWKBHex(raw)
}

func (p *Point) scanWKT(raw string) error {
	open := strings.Index(raw, "(")
	closing := strings.Index(raw, ")")
	if open < 0 || closing <= open {
		return fmt.Errorf("malformed point text %q", raw)
	}
	parts := strings.Fields(raw[open+1 : closing])
	if len(parts) != 2 {
		return fmt.Errorf("malformed point text %q", raw)
	}
	lng, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return err
	}
	lat, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return err
	}
	p.Lng, p.Lat = lng, lat
	return nil
}

func (p *Point) scanEWKBHex(raw string) error {
	data, err := hex.DecodeString(raw)
	if err != nil {
		return err
	}
	if len(data) < 21 {
		return errors.New("ewkb point too short")
	}
	var order binary.ByteOrder = binary.BigEndian
	if data[0] == 1 {
		order = binary.LittleEndian
	}
	geomType := order.Uint32(data[1:5])
	offset := 5
	if geomType&0x20000000 != 0 { // SRID flag
		offset += 4
	}
	if geomType&0xFF != 1 {
		return fmt.Errorf("unexpected geometry type %d", geomType&0xFF)
	}
	if len(data) < offset+16 {
		return errors.New("ewkb point too short")
	}
	p.Lng = math.Float64frombits(order.Uint64(data[offset : offset+8]))
	p.Lat = math.Float64frombits(order.Uint64(data[offset+8 : offset+16]))
	return nil
}

func (Point) GormDataType() string {
	return "geometry(Point,4326)"
}

// RealityRow is one raw feed row keyed by the source system's field names.
type RealityRow map[string]any

// String coerces a field to text; absent and NULL values become "".
func (r RealityRow) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format("2006-01-02")
	default:
		return fmt.Sprint(s)
	}
}

// Int64 parses a field as an integer; nil when absent or unparseable.
func (r RealityRow) Int64(key string) *int64 {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case int64:
		return &n
	case int:
		converted := int64(n)
		return &converted
	case float64:
		converted := int64(n)
		return &converted
	default:
		parsed, err := strconv.ParseInt(strings.TrimSpace(r.String(key)), 10, 64)
		if err != nil {
			return nil
		}
		return &parsed
	}
}

// Int is Int64 narrowed to int.
func (r RealityRow) Int(key string) *int {
	v := r.Int64(key)
	if v == nil {
		return nil
	}
	converted := int(*v)
	return &converted
}

// Date parses a field as a calendar date; nil when absent or unparseable.
func (r RealityRow) Date(key string) *time.Time {
	v, ok := r[key]
	if !ok || v == nil {
		return nil
	}
	if t, ok := v.(time.Time); ok {
		return &t
	}
	raw := strings.TrimSpace(r.String(key))
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// GetByIDOrNone fetches an entity by canonical id, returning nil when the id
// is empty or no row exists. Most call sites want the "or none" behavior;
// hard-existence lookups use GORM directly.
func GetByIDOrNone[T any](ctx context.Context, id string) *T {
	if id == "" {
		return nil
	}
	db := config.GetDB()
	if db == nil {
		return nil
	}
	var result T
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&result).Error; err != nil {
		return nil
	}
	return &result
}

// UpsertByID creates the entity or overwrites the stored fields of the row
// with the same canonical id. Repeated imports of the same source row are
// therefore idempotent.
func UpsertByID[T any](ctx context.Context, entity *T) error {
	db := config.GetDB()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(entity).Error
}

// BulkCreateWithFallback inserts the whole batch in one statement for
// throughput. When any row collides on a unique key, it falls back to
// row-by-row inserts and skips the rows that still collide, so one duplicate
// never sinks the rest of the batch. Returns the number of rows persisted.
func BulkCreateWithFallback[T any](ctx context.Context, items []*T) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	db := config.GetDB().WithContext(ctx)

	created := 0
	for _, group := range utils.Chunk(items, BulkBatchSize) {
		err := db.Create(&group).Error
		if err == nil {
			created += len(group)
			continue
		}
		if !utils.IsDuplicateKey(err) {
			return created, err
		}
		for _, item := range group {
			if rowErr := db.Create(item).Error; rowErr != nil {
				if utils.IsDuplicateKey(rowErr) {
					continue
				}
				return created, rowErr
			}
			created++
		}
	}
	return created, nil
}

// commonRealityProps holds the address block shared by entity rows.
type commonRealityProps struct {
	Address *string
	City    *string
	Zipcode *string
	Phone   *string
	State   *string
	Status  *string
	MLS     *MLS
}

func commonRealityPropsFromRow(ctx context.Context, row RealityRow, phoneField, zipcodeField string) commonRealityProps {
	props := commonRealityProps{
		Address: emptyToNil(row.String("Address")),
		City:    emptyToNil(row.String("City")),
		Zipcode: emptyToNil(row.String(zipcodeField)),
		State:   emptyToNil(row.String("State")),
		Status:  emptyToNil(row.String("Status")),
	}
	if phoneField != "" {
		props.Phone = utils.FormatPhoneOrNil(row.String(phoneField))
	}
	props.MLS = GetByIDOrNone[MLS](ctx, row.String("MLSID"))
	return props
}

func emptyToNil(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	trimmed := strings.TrimSpace(s)
	return &trimmed
}

// canonicalID joins a source-scoped id with the MLS id of the row. Empty
// source ids stay empty so weak references can be skipped.
func canonicalID(row RealityRow, idField string) string {
	sourceID := row.String(idField)
	if sourceID == "" {
		return ""
	}
	return sourceID + "__" + row.String("MLSID")
}

func dbOrNil() *gorm.DB {
	return config.GetDB()
}

func sourceOrDefault(source string) string {
	if source == "" {
		return SourceConstellation
	}
	return source
}

func stringPtr(s string) *string {
	return &s
}
