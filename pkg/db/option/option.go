package option

import (
	"time"

	"github.com/openfleet/tally/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm query before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

// ApplyPagination decodes the cursor token and limits the result set to
// pageSize+1 rows so callers can detect a next page.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		pageSize := p.PageSize
		if pageSize <= 0 {
			pageSize = 10
		}

		if p.PageToken != "" {
			cursor, err := pagination.DecodeCursor(p.PageToken)
			if err == nil && cursor != nil && cursor.CreatedAt != "" {
				if at, err := time.Parse(time.RFC3339, cursor.CreatedAt); err == nil {
					db = db.Where("created_at < ?", at)
				}
			}
		}

		return db.Limit(pageSize + 1)
	})
}

type QuerySortBy struct {
	Allow   map[string]bool
	Column  string
	Desc    bool
	Default string
}

// WithSortBy orders by an allow-listed column, falling back to the default.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := sort.Column
		if column == "" || !sort.Allow[column] {
			column = sort.Default
		}
		if column == "" {
			for allowed := range sort.Allow {
				column = allowed
				break
			}
		}
		if column == "" {
			return db
		}
		order := column
		if sort.Desc {
			order += " DESC"
		}
		return db.Order(order)
	})
}

// WithTimeRange restricts a timestamp column to [from, to]; nil bounds are open.
func WithTimeRange(column string, from, to *time.Time) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if column == "" {
			return db
		}
		if from != nil {
			db = db.Where(column+" >= ?", from.UTC())
		}
		if to != nil {
			db = db.Where(column+" <= ?", to.UTC())
		}
		return db
	})
}
