package berlinale

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/charmap"

	"github.com/drewfead/berlinale/internal/core"
)

var (
	ErrMissingElement    = errors.New("missing element")
	ErrMissingFilmID     = errors.New("no film_id in detail url")
	ErrMissingTicketCode = errors.New("no ticket code in code element")
)

const misencodedQuote = "â€™"

var (
	filmIDPattern      = regexp.MustCompile(`film_id=(\d+)`)
	countryYearPattern = regexp.MustCompile(`^(.+?)\s+(\d{4})\s*`)
	ticketCodePattern  = regexp.MustCompile(`\d{4,8}`)
)

// field binds one selector, relative to an enclosing element, to a setter on
// T. Optional fields whose element is absent are skipped.
type field[T any] struct {
	name     string
	selector string
	required bool
	apply    func(*T, string) error
}

func applyFields[T any](sel *goquery.Selection, target *T, fields []field[T]) error {
	for _, f := range fields {
		match := sel.Find(f.selector).First()
		if match.Length() == 0 {
			if f.required {
				return missing(f.selector)
			}
			continue
		}
		if err := f.apply(target, strings.TrimSpace(match.Text())); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}

var titleFields = []field[core.Movie]{
	{name: "title", selector: "h2.ft__title", required: true, apply: func(m *core.Movie, v string) error {
		m.Title = v
		return nil
	}},
	{name: "title2", selector: "span.ft__other-title", apply: func(m *core.Movie, v string) error {
		m.Title2 = v
		return nil
	}},
}

var metaFields = []field[core.Movie]{
	{name: "staff", selector: "span.staff", apply: func(m *core.Movie, v string) error {
		m.Staff = v
		return nil
	}},
	{name: "country", selector: "span.country", apply: setCountry},
	{name: "lang", selector: "span.lang", apply: func(m *core.Movie, v string) error {
		m.Lang = v
		return nil
	}},
	{name: "info", selector: "span.info", apply: func(m *core.Movie, v string) error {
		m.Info = v
		return nil
	}},
	{name: "event", selector: "span.event", apply: func(m *core.Movie, v string) error {
		m.Event = v
		return nil
	}},
	{name: "length", selector: "span.filmlength", apply: setLength},
}

var venueFields = []field[core.Screening]{
	{name: "location", selector: "h3.scr__location", required: true, apply: func(s *core.Screening, v string) error {
		s.Location = v
		return nil
	}},
	{name: "info", selector: "p.scr__info-icon", apply: func(s *core.Screening, v string) error {
		s.Info = v
		return nil
	}},
	{name: "ticket_code", selector: "p.scr__code", apply: func(s *core.Screening, v string) error {
		code := ticketCodePattern.FindString(v)
		if code == "" {
			return fmt.Errorf("%w: %q", ErrMissingTicketCode, v)
		}
		s.TicketCode = code
		return nil
	}},
}

func setCountry(m *core.Movie, v string) error {
	m.Country = v
	match := countryYearPattern.FindStringSubmatch(v)
	if match == nil {
		return nil
	}
	year, err := strconv.Atoi(match[2])
	if err != nil {
		return err
	}
	m.Country = strings.TrimSpace(match[1])
	m.Year = &year
	return nil
}

func setLength(m *core.Movie, v string) error {
	cleaned := strings.NewReplacer(misencodedQuote, "", "’", "").Replace(repairMojibake(v))
	minutes, err := strconv.Atoi(strings.TrimSpace(cleaned))
	if err != nil {
		return err
	}
	m.Length = &minutes
	return nil
}

// repairMojibake undoes UTF-8 text that was decoded as Windows-1252, which is
// how the runtime's trailing ’ arrives as "â€™". Text that does not round-trip
// is returned unchanged.
func repairMojibake(s string) string {
	if !strings.Contains(s, "â€") {
		return s
	}
	raw, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil || !utf8.ValidString(raw) {
		return s
	}
	return raw
}

func filmID(detailURL string) (int, error) {
	match := filmIDPattern.FindStringSubmatch(detailURL)
	if match == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingFilmID, detailURL)
	}
	return strconv.Atoi(match[1])
}

func missing(selector string) error {
	return fmt.Errorf("%w: %s", ErrMissingElement, selector)
}

func first(sel *goquery.Selection, selector string) (*goquery.Selection, error) {
	match := sel.Find(selector).First()
	if match.Length() == 0 {
		return nil, missing(selector)
	}
	return match, nil
}

func requiredAttr(sel *goquery.Selection, selector, attr string) (string, error) {
	match, err := first(sel, selector)
	if err != nil {
		return "", err
	}
	v, ok := match.Attr(attr)
	if !ok {
		return "", missing(fmt.Sprintf("%s[%s]", selector, attr))
	}
	return v, nil
}

func requiredText(sel *goquery.Selection, selector string) (string, error) {
	match, err := first(sel, selector)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(match.Text()), nil
}
