package scraping

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("got status code %d from %s", e.StatusCode, e.URL)
}

// GetDocument fetches url once with a fresh synchronous collector and parses
// the body. There is no retry; a failed fetch returns a *StatusError or the
// transport error.
func GetDocument(
	ctx context.Context,
	url string,
	requestHeaders map[string]string,
	options ...colly.CollectorOption,
) (*goquery.Document, error) {
	ctx, span := otel.Tracer("scraping").Start(ctx, "get_document")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(options...)
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true

	var (
		doc     *goquery.Document
		failure error
	)
	c.OnRequest(InjectRequestHeaders(requestHeaders))
	c.OnRequest(AbortWhenDone(ctx))
	c.OnResponse(LogResponses(c))
	c.OnResponse(ReportBadResponses(url, &failure))
	c.OnResponse(func(r *colly.Response) {
		if failure != nil {
			return
		}
		doc, failure = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	})

	if err := c.Visit(url); err != nil && failure == nil {
		failure = fmt.Errorf("fetching %s: %w", url, err)
	}
	if failure == nil && doc == nil {
		failure = ctx.Err()
		if failure == nil {
			failure = fmt.Errorf("no response from %s", url)
		}
	}
	if failure != nil {
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Error())
		return nil, failure
	}
	return doc, nil
}

// Collect applies transform to every match of selector below sel, in document
// order. The first transform error stops the walk.
func Collect[OUT any](
	sel *goquery.Selection,
	selector string,
	transform func(*goquery.Selection) (OUT, error),
) ([]OUT, error) {
	matches := sel.Find(selector)
	out := make([]OUT, 0, matches.Length())
	var err error
	matches.EachWithBreak(func(i int, s *goquery.Selection) bool {
		hit, terr := transform(s)
		if terr != nil {
			err = fmt.Errorf("%s #%d: %w", selector, i+1, terr)
			return false
		}
		out = append(out, hit)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func ReportBadResponses(url string, failure *error) func(r *colly.Response) {
	return func(r *colly.Response) {
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			*failure = &StatusError{URL: url, StatusCode: r.StatusCode, Body: string(r.Body)}
		}
	}
}

func LogResponses(c *colly.Collector) func(r *colly.Response) {
	return func(r *colly.Response) {
		cookies := c.Cookies(r.Request.URL.String())
		zap.L().Debug("response",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Int("bytes", len(r.Body)),
			zap.Any("cookies", cookies),
		)
	}
}

func InjectRequestHeaders(headers map[string]string) func(r *colly.Request) {
	return func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	}
}

func AbortWhenDone(ctx context.Context) func(r *colly.Request) {
	return func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	}
}
