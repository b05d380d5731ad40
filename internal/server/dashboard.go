package server

import (
	"net/http"
	"strconv"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

const defaultPageSize = 25

type pagination struct {
	Number   int
	Pages    int
	Total    int64
	Previous int
	Next     int
}

func (p pagination) HasPrevious() bool { return p.Number > 1 }
func (p pagination) HasNext() bool     { return p.Number < p.Pages }

// paginate clamps the requested page into range. Anything unparseable is
// page 1 and anything past the end is the last page.
func paginate(raw string, total int64, size int) pagination {
	pages := int((total + int64(size) - 1) / int64(size))
	if pages < 1 {
		pages = 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		n = 1
	}
	if n > pages {
		n = pages
	}
	return pagination{Number: n, Pages: pages, Total: total, Previous: n - 1, Next: n + 1}
}

type dashboardData struct {
	Overview   *analytics.Overview
	Activities []model.Activity
	Page       pagination
	Ranges     []int
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overview, err := s.analytics.Overview(ctx)
	if err != nil {
		s.serverError(w, r, "build overview", err)
		return
	}
	total, err := s.store.CountActivities(ctx, analytics.ActivityFilter{})
	if err != nil {
		s.serverError(w, r, "count activities", err)
		return
	}
	size := s.cfg.AuditPageSize
	if size <= 0 {
		size = defaultPageSize
	}
	page := paginate(r.URL.Query().Get("page"), total, size)
	activities, err := s.store.ListActivities(ctx, (page.Number-1)*size, size)
	if err != nil {
		s.serverError(w, r, "list activities", err)
		return
	}
	s.render(w, r, http.StatusOK, "quality", "Quality dashboard", dashboardData{
		Overview:   overview,
		Activities: activities,
		Page:       page,
		Ranges:     analytics.Ranges,
	})
}
