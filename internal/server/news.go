package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
	"github.com/samvad-hq/samvad-news-feed/internal/refresh"
)

const (
	filterAll   = "ALL"
	sampleLimit = 5
)

type plainText struct {
	PlainText string `json:"plainText"`
}

type imageRef struct {
	URL *string `json:"url"`
}

type newsNode struct {
	ID           string    `json:"id"`
	ArticleTitle plainText `json:"articleTitle"`
	Text         plainText `json:"text"`
	Image        imageRef  `json:"image"`
	Byline       *string   `json:"byline"`
	Date         time.Time `json:"date"`
	ExternalURL  *string   `json:"externalUrl"`
	Category     string    `json:"category"`
	Country      string    `json:"country"`
	Language     string    `json:"language"`
}

type newsEdge struct {
	Node newsNode `json:"node"`
}

type newsResponse struct {
	Data struct {
		News struct {
			Edges []newsEdge `json:"edges"`
		} `json:"news"`
	} `json:"data"`
}

func toNode(rec domain.ArticleRecord) newsNode {
	return newsNode{
		ID:           rec.ID,
		ArticleTitle: plainText{PlainText: rec.Title},
		Text:         plainText{PlainText: rec.BodyText},
		Image:        imageRef{URL: rec.ImageURL},
		Byline:       rec.Byline,
		Date:         rec.DisplayDate(),
		ExternalURL:  rec.ExternalURL,
		Category:     rec.Category,
		Country:      rec.Country,
		Language:     rec.Language,
	}
}

// parseFilter maps query params to a filter. Empty and ALL do not constrain.
func parseFilter(c echo.Context) domain.Filter {
	return domain.Filter{
		Category: filterValue(c.QueryParam("category")),
		Country:  filterValue(c.QueryParam("country")),
		Language: languageValue(c.QueryParam("language")),
	}
}

func filterValue(raw string) string {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == filterAll {
		return ""
	}
	return v
}

func languageValue(raw string) string {
	v := strings.TrimSpace(raw)
	if strings.EqualFold(v, filterAll) {
		return ""
	}
	return v
}

// parseLimit returns 0 (unbounded) for absent, malformed or non-positive values.
func parseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func (s *Server) listNews(c echo.Context) error {
	ctx := c.Request().Context()
	f := parseFilter(c)
	limit := parseLimit(c.QueryParam("first"))

	decision, err := s.refresher.EnsureFresh(ctx, f)
	if err != nil {
		return s.newsFailure(c, f, err)
	}

	records, err := s.store.Query(ctx, f, limit)
	if err != nil {
		return s.newsFailure(c, f, err)
	}

	var resp newsResponse
	resp.Data.News.Edges = make([]newsEdge, 0, len(records))
	for _, rec := range records {
		resp.Data.News.Edges = append(resp.Data.News.Edges, newsEdge{Node: toNode(rec)})
	}
	s.log.DebugObj("news served", "news_read", map[string]any{
		"category": f.Category,
		"country":  f.Country,
		"language": f.Language,
		"limit":    limit,
		"decision": string(decision),
		"returned": len(records),
	})
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) newsFailure(c echo.Context, f domain.Filter, err error) error {
	s.log.ErrorObj("news read failed", "news_read", map[string]any{
		"category": f.Category,
		"country":  f.Country,
		"error":    err.Error(),
	})
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   "Failed to fetch news",
		"details": err.Error(),
	})
}

type fetchResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Stats   *domain.RefreshStats `json:"stats,omitempty"`
	Error   string               `json:"error,omitempty"`
	Details string               `json:"details,omitempty"`
}

func (s *Server) fetchNews(c echo.Context) error {
	stats, err := s.refresher.RefreshNow(c.Request().Context(), refresh.TriggerManual)
	switch {
	case errors.Is(err, refresh.ErrRefreshInProgress):
		return c.JSON(http.StatusConflict, fetchResponse{
			Error:   "Refresh already in progress",
			Details: err.Error(),
		})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, fetchResponse{
			Error:   "Failed to fetch and store news",
			Details: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, fetchResponse{
		Success: true,
		Message: "News fetched and stored successfully",
		Stats:   &stats,
	})
}

type recordSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Category      string    `json:"category"`
	Country       string    `json:"country"`
	CreatedAt     time.Time `json:"createdAt"`
	LastFetchedAt time.Time `json:"lastFetchedAt"`
}

func summarize(rec domain.ArticleRecord) recordSummary {
	return recordSummary{
		ID:            rec.ID,
		Title:         rec.Title,
		Category:      rec.Category,
		Country:       rec.Country,
		CreatedAt:     rec.CreatedAt,
		LastFetchedAt: rec.LastFetchedAt,
	}
}

type debugDatabase struct {
	TotalArticles  int             `json:"totalArticles"`
	ByCategory     map[string]int  `json:"byCategory"`
	ByCountry      map[string]int  `json:"byCountry"`
	MostRecent     *recordSummary  `json:"mostRecent"`
	LastFetchedAt  *time.Time      `json:"lastFetchedAt"`
	SampleArticles []recordSummary `json:"sampleArticles"`
}

type debugResponse struct {
	Success     bool          `json:"success"`
	Database    debugDatabase `json:"database"`
	Refresh     refresh.State `json:"refresh"`
	Environment Environment   `json:"environment"`
}

func (s *Server) debug(c echo.Context) error {
	ctx := c.Request().Context()
	fail := func(err error) error {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}

	total, err := s.store.Count(ctx, domain.Filter{})
	if err != nil {
		return fail(err)
	}
	db := debugDatabase{
		TotalArticles:  total,
		ByCategory:     make(map[string]int, len(s.cfg.Categories)),
		ByCountry:      make(map[string]int, len(s.cfg.Countries)),
		SampleArticles: []recordSummary{},
	}
	for _, cat := range s.cfg.Categories {
		n, err := s.store.Count(ctx, domain.Filter{Category: cat})
		if err != nil {
			return fail(err)
		}
		db.ByCategory[cat] = n
	}
	for _, country := range s.cfg.Countries {
		n, err := s.store.Count(ctx, domain.Filter{Country: country})
		if err != nil {
			return fail(err)
		}
		db.ByCountry[country] = n
	}

	latest, ok, err := s.store.MostRecentFetch(ctx, domain.Filter{})
	if err != nil {
		return fail(err)
	}
	if ok {
		db.LastFetchedAt = &latest
	}

	samples, err := s.store.Query(ctx, domain.Filter{}, sampleLimit)
	if err != nil {
		return fail(err)
	}
	for _, rec := range samples {
		db.SampleArticles = append(db.SampleArticles, summarize(rec))
	}
	if len(samples) > 0 {
		first := summarize(samples[0])
		db.MostRecent = &first
	}

	return c.JSON(http.StatusOK, debugResponse{
		Success:     true,
		Database:    db,
		Refresh:     s.refresher.Snapshot(),
		Environment: s.cfg.Environment,
	})
}

func (s *Server) health(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
