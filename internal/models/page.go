package models

import "math"

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxPage keeps (MaxPage-1)*MaxLimit inside int64.
	MaxPage = math.MaxInt64 / MaxLimit
)

// Page selects one window of a newest-first listing.
type Page struct {
	Number int64
	Limit  int64
}

func (p Page) Skip() int64 {
	return (p.Number - 1) * p.Limit
}

type PageInfo struct {
	CurrentPage int64 `json:"currentPage"`
	TotalPages  int64 `json:"totalPages"`
	TotalOrders int64 `json:"totalOrders"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

// NewPageInfo derives the pagination envelope from a page and the total match count.
func NewPageInfo(p Page, total int64) PageInfo {
	var pages int64
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return PageInfo{
		CurrentPage: p.Number,
		TotalPages:  pages,
		TotalOrders: total,
		HasNext:     p.Number < pages,
		HasPrev:     p.Number > 1,
	}
}

// OrderFilter narrows admin listings.
type OrderFilter struct {
	Status *OrderStatus
}
