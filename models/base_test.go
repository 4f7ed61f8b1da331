package models_test

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"testing"
	"time"

	"github.com/smartsetter/ssot_backend/models"
)

func TestPointValueIsEWKT(t *testing.T) {
	p := models.Point{Lng: -97.7431, Lat: 30.2672}
	v, err := p.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != "SRID=4326;POINT(-97.7431 30.2672)" {
		t.Fatalf("got %v", v)
	}
}

func TestPointScanWKT(t *testing.T) {
	var p models.Point
	if err := p.Scan("POINT(-97.7431 30.2672)"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if p.Lng != -97.7431 || p.Lat != 30.2672 {
		t.Fatalf("got %+v", p)
	}

	var fromEWKT models.Point
	if err := fromEWKT.Scan([]byte("SRID=4326;POINT(1.5 2.5)")); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if fromEWKT.Lng != 1.5 || fromEWKT.Lat != 2.5 {
		t.Fatalf("got %+v", fromEWKT)
	}
}

func TestPointScanEWKBHex(t *testing.T) {
	// Little-endian EWKB point with SRID 4326, as Postgres returns it.
	buf := make([]byte, 25)
	buf[0] = 1
	binary.LittleEndian.PutUint32(buf[1:5], 0x20000001)
	binary.LittleEndian.PutUint32(buf[5:9], 4326)
	binary.LittleEndian.PutUint64(buf[9:17], math.Float64bits(-97.7431))
	binary.LittleEndian.PutUint64(buf[17:25], math.Float64bits(30.2672))

	var p models.Point
	if err := p.Scan(hex.EncodeToString(buf)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if p.Lng != -97.7431 || p.Lat != 30.2672 {
		t.Fatalf("got %+v", p)
	}
}

func TestPointScanNil(t *testing.T) {
	var p models.Point
	if err := p.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if err := p.Scan(""); err != nil {
		t.Fatalf("Scan(\"\"): %v", err)
	}
}

func TestRealityRowString(t *testing.T) {
	when := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	row := models.RealityRow{
		"text":  "hello",
		"bytes": []byte("raw"),
		"date":  when,
		"null":  nil,
	}

	if row.String("text") != "hello" {
		t.Fatalf("got %q", row.String("text"))
	}
	if row.String("bytes") != "raw" {
		t.Fatalf("got %q", row.String("bytes"))
	}
	if row.String("date") != "2026-02-03" {
		t.Fatalf("got %q", row.String("date"))
	}
	if row.String("null") != "" || row.String("absent") != "" {
		t.Fatal("nil and absent fields must read as empty strings")
	}
}

func TestRealityRowInt64(t *testing.T) {
	row := models.RealityRow{
		"int":    int64(42),
		"string": "450000",
		"float":  float64(12),
		"junk":   "n/a",
		"null":   nil,
	}

	if v := row.Int64("int"); v == nil || *v != 42 {
		t.Fatalf("got %v", v)
	}
	if v := row.Int64("string"); v == nil || *v != 450000 {
		t.Fatalf("got %v", v)
	}
	if v := row.Int64("float"); v == nil || *v != 12 {
		t.Fatalf("got %v", v)
	}
	if row.Int64("junk") != nil || row.Int64("null") != nil || row.Int64("absent") != nil {
		t.Fatal("unparseable fields must read as nil")
	}
}

func TestRealityRowDate(t *testing.T) {
	when := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	row := models.RealityRow{
		"native": when,
		"text":   "2026-02-03",
		"stamp":  "2026-02-03 14:30:00",
		"junk":   "soon",
	}

	for _, key := range []string{"native", "text"} {
		v := row.Date(key)
		if v == nil || !v.Equal(when) {
			t.Fatalf("%s: got %v", key, v)
		}
	}
	if v := row.Date("stamp"); v == nil || v.Format("2006-01-02") != "2026-02-03" {
		t.Fatalf("got %v", v)
	}
	if row.Date("junk") != nil || row.Date("absent") != nil {
		t.Fatal("unparseable dates must read as nil")
	}
}
