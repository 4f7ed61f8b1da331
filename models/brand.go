package models

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/utils"
)

// Brand is a normalization dictionary entry: a canonical display name plus
// the lowercase marks (aliases) that identify it inside free-text office and
// agent names.
type Brand struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"size:64;uniqueIndex" json:"name"`
	Code       string     `gorm:"size:64;uniqueIndex" json:"code"`
	Marks      StringList `json:"marks"`
	IconObject string     `gorm:"size:256" json:"icon_object"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// BrandCache is a process-wide read-through cache of the brand dictionary.
// It is invalidated only by an explicit rebuild; stale marks between rebuilds
// are accepted.
type BrandCache struct {
	mu     sync.RWMutex
	brands []Brand
	loaded bool
}

// Brands is the default cache instance injected into mappers and workers.
var Brands = &BrandCache{}

func (c *BrandCache) Get(ctx context.Context) ([]Brand, error) {
	c.mu.RLock()
	if c.loaded {
		brands := c.brands
		c.mu.RUnlock()
		return brands, nil
	}
	c.mu.RUnlock()

	db := config.GetDB()
	if db == nil {
		return nil, nil
	}
	var brands []Brand
	if err := db.WithContext(ctx).Order("name").Find(&brands).Error; err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.brands = brands
	c.loaded = true
	c.mu.Unlock()
	return brands, nil
}

func (c *BrandCache) Invalidate() {
	c.mu.Lock()
	c.brands = nil
	c.loaded = false
	c.mu.Unlock()
}

// RebuildBrandsFromMappingSheet replaces the brand dictionary from the
// brand-code mapping sheet in object storage and invalidates the cache. The
// sheet carries (code, mark, canonical name) triples below two header rows.
func RebuildBrandsFromMappingSheet(ctx context.Context, cache *BrandCache) error {
	rows, err := utils.DownloadCSV(ctx, "brand-code-mapping-v2.csv")
	if err != nil {
		return err
	}
	if len(rows) > 2 {
		rows = rows[2:]
	} else {
		rows = nil
	}

	type brandInfo struct {
		name  string
		marks []string
	}
	order := []string{}
	byCode := map[string]*brandInfo{}
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		code := strings.TrimSpace(row[1])
		mark := strings.ToLower(strings.TrimSpace(strings.Trim(row[2], `"`)))
		name := strings.TrimSpace(strings.Trim(row[3], `"`))
		if code == "" || mark == "" {
			continue
		}
		info, ok := byCode[code]
		if !ok {
			info = &brandInfo{name: name}
			byCode[code] = info
			order = append(order, code)
		}
		info.marks = append(info.marks, mark)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("1 = 1").Delete(&Brand{}).Error; err != nil {
		return err
	}

	brands := make([]*Brand, 0, len(order))
	for _, code := range order {
		info := byCode[code]
		name := info.name
		if name == "" {
			name = code
		}
		brands = append(brands, &Brand{
			Code:  code,
			Name:  name,
			Marks: info.marks,
		})
	}
	if _, err := BulkCreateWithFallback(ctx, brands); err != nil {
		return err
	}

	if cache != nil {
		cache.Invalidate()
	}
	return nil
}

// BrandFixedOfficeName rewrites the first brand mark found in the office name
// with that brand's canonical name. Brands are tried in dictionary order;
// within a brand the first matching mark wins and the remaining marks are
// skipped. Running the fix twice is a no-op because a canonical name maps to
// itself.
func BrandFixedOfficeName(name string, brands []Brand) string {
	if name == "" {
		return name
	}
	for _, brand := range brands {
		lower := strings.ToLower(name)
		for _, mark := range brand.Marks {
			if mark == "" {
				continue
			}
			if idx := strings.Index(lower, mark); idx >= 0 {
				name = name[:idx] + brand.Name + name[idx+len(mark):]
				break
			}
		}
	}
	return name
}

// MatchBrand returns the first brand having a mark contained in any of the
// supplied texts (case-insensitive), or nil.
func MatchBrand(brands []Brand, texts ...string) *Brand {
	lowered := make([]string, 0, len(texts))
	for _, t := range texts {
		if t != "" {
			lowered = append(lowered, strings.ToLower(t))
		}
	}
	for i := range brands {
		for _, mark := range brands[i].Marks {
			if mark == "" {
				continue
			}
			for _, text := range lowered {
				if strings.Contains(text, mark) {
					return &brands[i]
				}
			}
		}
	}
	return nil
}
