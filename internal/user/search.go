package user

import (
	"strings"

	"gorm.io/gorm"
)

// ListParams narrows an admin account listing.
type ListParams struct {
	Query   string
	Status  string // "active", "inactive" or empty for both
	Page    int
	Limit   int
	SortBy  string
	OrderBy string
}

func (p *ListParams) normalize() {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
}

func applyFilters(query *gorm.DB, params ListParams) *gorm.DB {
	switch params.Status {
	case "active":
		query = query.Where("active = ?", true)
	case "inactive":
		query = query.Where("active = ?", false)
	}

	q := strings.ToLower(strings.TrimSpace(params.Query))
	if q == "" {
		return query
	}
	pattern := "%" + escapeLike(q) + "%"
	if query.Dialector.Name() == "postgres" {
		return query.Where("(email ILIKE ? OR name ILIKE ?)", pattern, pattern)
	}
	return query.Where("(LOWER(email) LIKE ? ESCAPE '\\' OR LOWER(name) LIKE ? ESCAPE '\\')", pattern, pattern)
}

func applySorting(query *gorm.DB, params ListParams) *gorm.DB {
	orderBy := strings.ToLower(params.OrderBy)
	if orderBy != "asc" && orderBy != "desc" {
		orderBy = "asc"
	}

	switch params.SortBy {
	case "created_at":
		return query.Order("created_at " + orderBy).Order("id " + orderBy)
	case "email":
		return query.Order("email " + orderBy)
	case "name":
		return query.Order("name " + orderBy).Order("id " + orderBy)
	default:
		return query.Order("id " + orderBy)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
