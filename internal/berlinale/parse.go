package berlinale

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/drewfead/berlinale/internal/core"
	"github.com/drewfead/berlinale/internal/scraping"
)

const (
	entrySelector      = "section.film-entry"
	screeningSelector  = "section.screening"
	rowSelector        = "div.row"
	imageWrapSelector  = "div.fe__image-wrap"
	sectionTagSelector = "span.section-tag"
	titleLinkSelector  = "a.film-title-wrap"
	metaSelector       = "div.film-meta-wrap"
	paginationSelector = "ul.pagination"
	separatorSelector  = "li.pg__separator"
	dayClass           = "span.scr__day"
	clockClass         = "span.scr__time"
	venueSelector      = "div.scr__info"
	icalSelector       = "a.scr__ical"
	ticketSelector     = "a.scr__ticket-btn"
	disabledClass      = "disabled"
)

// Parser turns programme markup into records. BaseURL is prefixed to the
// site-relative image and detail links.
type Parser struct {
	BaseURL        string
	Year           int
	UTCOffsetHours int
}

// PageCount reads the total number of listing pages from the pagination
// control: the page link that follows the separator item.
func PageCount(doc *goquery.Document) (int, error) {
	pagination, err := first(doc.Selection, paginationSelector)
	if err != nil {
		return 0, err
	}
	separator, err := first(pagination, separatorSelector)
	if err != nil {
		return 0, err
	}
	last := separator.Next()
	if last.Length() == 0 {
		return 0, missing(separatorSelector + " + li")
	}
	text, err := requiredText(last, "a")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return n, nil
}

// ParsePage extracts every film entry of doc. Each movie is stored in movies
// under its id, replacing any earlier record, and every screening of the
// entry is returned in document order carrying a copy of that movie.
func (p *Parser) ParsePage(doc *goquery.Document, movies core.Movies) ([]core.Screening, error) {
	out := make([]core.Screening, 0)
	var err error
	doc.Find(entrySelector).EachWithBreak(func(i int, entry *goquery.Selection) bool {
		movie, merr := p.Movie(entry)
		if merr != nil {
			err = fmt.Errorf("film entry #%d: %w", i+1, merr)
			return false
		}
		movies[movie.ID] = movie

		screenings, serr := scraping.Collect(entry, screeningSelector, func(s *goquery.Selection) (core.Screening, error) {
			return p.Screening(s, movie)
		})
		if serr != nil {
			err = fmt.Errorf("film %d: %w", movie.ID, serr)
			return false
		}
		out = append(out, screenings...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Parser) Movie(entry *goquery.Selection) (core.Movie, error) {
	var m core.Movie

	rows := entry.ChildrenFiltered(rowSelector)
	if rows.Length() < 2 {
		return m, missing(entrySelector + " > " + rowSelector)
	}
	head := rows.Eq(0)

	imageWrap, err := first(head, imageWrapSelector)
	if err != nil {
		return m, err
	}
	imageLink, err := first(imageWrap, "a")
	if err != nil {
		return m, err
	}
	src, err := requiredAttr(imageLink, "img", "src")
	if err != nil {
		return m, err
	}
	m.Image = p.BaseURL + src
	if m.Section, err = requiredText(imageWrap, sectionTagSelector); err != nil {
		return m, err
	}

	titleLink, err := first(head, titleLinkSelector)
	if err != nil {
		return m, err
	}
	href, ok := titleLink.Attr("href")
	if !ok {
		return m, missing(titleLinkSelector + "[href]")
	}
	m.URL = p.BaseURL + href
	if m.ID, err = filmID(m.URL); err != nil {
		return m, err
	}
	if err := applyFields(titleLink, &m, titleFields); err != nil {
		return m, err
	}

	meta, err := first(head, metaSelector)
	if err != nil {
		return m, err
	}
	if err := applyFields(meta, &m, metaFields); err != nil {
		return m, err
	}

	if m.Description, err = requiredText(rows.Eq(1), "p"); err != nil {
		return m, err
	}
	return m, nil
}

func (p *Parser) Screening(sel *goquery.Selection, movie core.Movie) (core.Screening, error) {
	s := core.Screening{Movie: movie}

	day, err := requiredText(sel, dayClass)
	if err != nil {
		return s, err
	}
	clock, err := requiredText(sel, clockClass)
	if err != nil {
		return s, err
	}
	if s.Start, err = ScreeningTime(day, clock, p.Year, p.location()); err != nil {
		return s, err
	}
	s.Time = FormatTimestamp(s.Start, p.UTCOffsetHours)

	venue, err := first(sel, venueSelector)
	if err != nil {
		return s, err
	}
	if err := applyFields(venue, &s, venueFields); err != nil {
		return s, err
	}
	if href, ok := venue.Find(icalSelector).First().Attr("href"); ok {
		s.ICal = href
	}

	ticket, err := first(sel, ticketSelector)
	if err != nil {
		return s, err
	}
	s.TicketInfo = strings.TrimSpace(ticket.Text())
	if !ticket.HasClass(disabledClass) {
		s.Ticket, _ = ticket.Attr("href")
	}
	return s, nil
}

func (p *Parser) location() *time.Location {
	return festivalZone(p.UTCOffsetHours)
}
