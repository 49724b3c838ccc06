// Package table filters and paginates records for the data table view.
package table

import "github.com/afroash/serverroom-monitor/internal/models"

// DefaultPerPage matches the table's page size
const DefaultPerPage = 10

// Filter keeps records whose date lies in [start, end]. An empty bound is
// open. Dates compare as YYYY-MM-DD strings.
func Filter(records []*models.MonitoringRecord, start, end string) []*models.MonitoringRecord {
	if start == "" && end == "" {
		return records
	}

	out := make([]*models.MonitoringRecord, 0, len(records))
	for _, r := range records {
		if start != "" && r.Date < start {
			continue
		}
		if end != "" && r.Date > end {
			continue
		}
		out = append(out, r)
	}
	return out
}

// PageLink is one entry of the pager. Ellipsis entries carry no page number.
type PageLink struct {
	Page     int  `json:"page,omitempty"`
	Current  bool `json:"current,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
}

// Page is one page of a record list
type Page struct {
	Records    []*models.MonitoringRecord `json:"records"`
	Page       int                        `json:"page"`
	PerPage    int                        `json:"per_page"`
	TotalItems int                        `json:"total_items"`
	TotalPages int                        `json:"total_pages"`
	FirstIndex int                        `json:"first_index"` // 1-based row number of Records[0]
	HasPrev    bool                       `json:"has_prev"`
	HasNext    bool                       `json:"has_next"`
	Links      []PageLink                 `json:"links"`
}

// Paginate slices records into the requested page. Pages outside the valid
// range clamp to the first or last page.
func Paginate(records []*models.MonitoringRecord, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	total := len(records)
	totalPages := (total + perPage - 1) / perPage
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := min(start+perPage, total)

	firstIndex := start + 1
	if total == 0 {
		firstIndex = 0
	}

	return Page{
		Records:    records[start:end],
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
		FirstIndex: firstIndex,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
		Links:      Links(page, totalPages),
	}
}

// Links builds the pager window: first and last page, the current page and
// its neighbours, and an ellipsis two pages away from the current one. A
// single page needs no pager.
func Links(current, totalPages int) []PageLink {
	if totalPages <= 1 {
		return nil
	}

	links := make([]PageLink, 0, 7)
	for i := 1; i <= totalPages; i++ {
		switch {
		case i == 1 || i == totalPages || (i >= current-1 && i <= current+1):
			links = append(links, PageLink{Page: i, Current: i == current})
		case i == current-2 || i == current+2:
			links = append(links, PageLink{Ellipsis: true})
		}
	}
	return links
}
