package berlinale_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfead/berlinale/internal/berlinale"
	"github.com/drewfead/berlinale/internal/config"
	"github.com/drewfead/berlinale/internal/scraping"
)

type programmeSite struct {
	mu       sync.Mutex
	requests []*http.Request
	failing  map[string]int
}

func (p *programmeSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.requests = append(p.requests, r)
	p.mu.Unlock()

	page := r.URL.Query().Get("page")
	if code, ok := p.failing[page]; ok {
		http.Error(w, "maintenance", code)
		return
	}
	body, err := os.ReadFile(filepath.Join(fixtureDir, fmt.Sprintf("programme_page%s.html", page)))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

func (p *programmeSite) pages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, r := range p.requests {
		out = append(out, r.URL.Query().Get("page"))
	}
	return out
}

func newScraper(t *testing.T, site *programmeSite) *berlinale.Scraper {
	t.Helper()
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.BaseURL = srv.URL
	cfg.Delay = 0
	require.NoError(t, cfg.Validate())
	return berlinale.New(cfg)
}

func Test_Unit_PageURL(t *testing.T) {
	s := berlinale.New(config.Default())
	raw, err := s.PageURL(4)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "www.berlinale.de", u.Host)
	assert.Equal(t, "/en/programme/programme/berlinale-programme.html", u.Path)
	assert.Equal(t, url.Values{
		"page":        {"4"},
		"film_nums":   {"377"},
		"section_id":  {"0"},
		"country_id":  {"0"},
		"order_by":    {"1"},
		"documentary": {""},
		"screenings":  {"efm_festival"},
	}, u.Query())
}

func Test_Unit_Programme_AllPages(t *testing.T) {
	site := &programmeSite{}
	res, err := newScraper(t, site).Programme(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, site.pages())
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 3, res.Processed)
	assert.Empty(t, res.Skipped)

	require.Len(t, res.Screenings, 5)
	var codes []string
	for _, s := range res.Screenings {
		codes = append(codes, s.TicketCode)
	}
	assert.Equal(t, []string{"1001", "1002", "2001", "1003", "3001"}, codes)

	assert.Len(t, res.Movies, 3)
	assert.Equal(t, "First Film", res.Movies[1].Title)
	assert.Equal(t, res.Screenings[0].Movie, res.Movies[1])
	assert.Equal(t, "2020-02-29T23:45:00Z+01", res.Screenings[4].Time)
	assert.Equal(t, "/tickets/3001", res.Screenings[4].Ticket)
}

func Test_Unit_Programme_RequestShape(t *testing.T) {
	site := &programmeSite{}
	s := newScraper(t, site)
	s.MaxPages = 1
	_, err := s.Programme(context.Background())
	require.NoError(t, err)

	require.Len(t, site.requests, 1)
	r := site.requests[0]
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, config.Default().ProgrammePath, r.URL.Path)
	assert.Equal(t, "efm_festival", r.URL.Query().Get("screenings"))
	assert.True(t, r.URL.Query().Has("documentary"))
	assert.Equal(t, config.Default().UserAgent, r.Header.Get("User-Agent"))
	assert.Equal(t, s.BaseURL+s.ProgrammePath, r.Header.Get("Referer"))
}

func Test_Unit_Programme_MaxPages(t *testing.T) {
	site := &programmeSite{}
	s := newScraper(t, site)
	s.MaxPages = 1

	res, err := s.Programme(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, site.pages())
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 1, res.Processed)
	assert.Len(t, res.Screenings, 2)
	assert.Len(t, res.Movies, 1)
}

func Test_Unit_Programme_SkipsFailedPage(t *testing.T) {
	site := &programmeSite{failing: map[string]int{"2": http.StatusServiceUnavailable}}
	res, err := newScraper(t, site).Programme(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, site.pages())
	assert.Equal(t, []int{2}, res.Skipped)
	assert.Equal(t, 2, res.Processed)
	assert.Len(t, res.Screenings, 3)
	assert.Len(t, res.Movies, 2)
}

func Test_Unit_Programme_FirstPageFails(t *testing.T) {
	site := &programmeSite{failing: map[string]int{"1": http.StatusInternalServerError}}
	_, err := newScraper(t, site).Programme(context.Background())
	require.Error(t, err)

	var statusErr *scraping.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "maintenance")
}

func Test_Unit_Programme_Cancelled(t *testing.T) {
	site := &programmeSite{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newScraper(t, site).Programme(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, site.pages())
}
