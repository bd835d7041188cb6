package berlinale

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/drewfead/berlinale/internal/config"
	"github.com/drewfead/berlinale/internal/core"
	"github.com/drewfead/berlinale/internal/scraping"
)

type Scraper struct {
	Parser
	ProgrammePath string
	Query         map[string]string
	UserAgent     string
	Delay         time.Duration
	MaxPages      int
}

// Result is the outcome of one pass over the programme listing.
type Result struct {
	Screenings []core.Screening
	Movies     core.Movies
	Pages      int
	Processed  int
	Skipped    []int
}

func New(cfg *config.Config) *Scraper {
	return &Scraper{
		Parser: Parser{
			BaseURL:        cfg.BaseURL,
			Year:           cfg.Year,
			UTCOffsetHours: cfg.UTCOffsetHours,
		},
		ProgrammePath: cfg.ProgrammePath,
		Query:         cfg.Query,
		UserAgent:     cfg.UserAgent,
		Delay:         cfg.Delay,
		MaxPages:      cfg.MaxPages,
	}
}

func (s *Scraper) PageURL(page int) (string, error) {
	u, err := url.Parse(s.BaseURL + s.ProgrammePath)
	if err != nil {
		return "", fmt.Errorf("programme url: %w", err)
	}
	q := url.Values{}
	for k, v := range s.Query {
		q.Set(k, v)
	}
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Scraper) FetchPage(ctx context.Context, page int) (*goquery.Document, error) {
	ctx, span := otel.Tracer("berlinale.scraper").Start(ctx, "fetch_page")
	defer span.End()
	span.SetAttributes(attribute.Int("page", page))

	pageURL, err := s.PageURL(page)
	if err != nil {
		return nil, err
	}

	options := []colly.CollectorOption{colly.MaxBodySize(0)}
	if s.UserAgent != "" {
		options = append(options, colly.UserAgent(s.UserAgent))
	}
	return scraping.GetDocument(
		ctx,
		pageURL,
		map[string]string{"Referer": s.BaseURL + s.ProgrammePath},
		options...,
	)
}

// Programme fetches the first listing page, discovers the page count and
// walks every page (or the first MaxPages) in order, pausing Delay between
// fetches. The first page is required; a later page that fails to fetch is
// logged and skipped. Markup errors abort the whole run.
func (s *Scraper) Programme(ctx context.Context) (*Result, error) {
	ctx, span := otel.Tracer("berlinale.scraper").Start(ctx, "programme")
	defer span.End()

	limiter := rate.NewLimiter(rate.Every(s.Delay), 1)
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}
	firstPage, err := s.FetchPage(ctx, 1)
	if err != nil {
		logFetchFailure(1, err)
		return nil, fmt.Errorf("fetching first page: %w", err)
	}
	total, err := PageCount(firstPage)
	if err != nil {
		return nil, fmt.Errorf("discovering page count: %w", err)
	}

	pages := total
	if s.MaxPages > 0 && s.MaxPages < pages {
		pages = s.MaxPages
	}
	if pages < 1 {
		pages = 1
	}

	res := &Result{
		Screenings: make([]core.Screening, 0),
		Movies:     make(core.Movies),
		Pages:      total,
	}
	for page := 1; page <= pages; page++ {
		zap.L().Info("processing page", zap.Int("page", page), zap.Int("of", pages))

		doc := firstPage
		if page > 1 {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			doc, err = s.FetchPage(ctx, page)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logFetchFailure(page, err)
				res.Skipped = append(res.Skipped, page)
				continue
			}
		}

		screenings, err := s.ParsePage(doc, res.Movies)
		if err != nil {
			return nil, fmt.Errorf("parsing page %d: %w", page, err)
		}
		res.Screenings = append(res.Screenings, screenings...)
		res.Processed++
	}

	span.SetAttributes(
		attribute.Int("pages", res.Processed),
		attribute.Int("movies", len(res.Movies)),
		attribute.Int("screenings", len(res.Screenings)),
	)
	return res, nil
}

func logFetchFailure(page int, err error) {
	var statusErr *scraping.StatusError
	if errors.As(err, &statusErr) {
		zap.L().Warn("failed to fetch page",
			zap.Int("page", page),
			zap.Int("status", statusErr.StatusCode),
			zap.String("body", statusErr.Body),
		)
		return
	}
	zap.L().Warn("failed to fetch page", zap.Int("page", page), zap.Error(err))
}
