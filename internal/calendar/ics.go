package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/drewfead/berlinale/internal/core"
)

const (
	productID       = "-//berlinale-programme//EN"
	defaultDuration = 2 * time.Hour
	maxLineOctets   = 75
)

// Write renders screenings as a single VCALENDAR with one VEVENT each.
// stamp becomes every event's DTSTAMP.
func Write(w io.Writer, screenings []core.Screening, stamp time.Time) error {
	var ics strings.Builder

	writeLine(&ics, "BEGIN:VCALENDAR")
	writeLine(&ics, "VERSION:2.0")
	writeLine(&ics, "PRODID:"+productID)
	writeLine(&ics, "CALSCALE:GREGORIAN")
	writeLine(&ics, "METHOD:PUBLISH")

	for _, s := range screenings {
		if s.Start.IsZero() {
			return fmt.Errorf("screening of %q at %s has no start time", s.Movie.Title, s.Location)
		}
		end := s.Start.Add(defaultDuration)
		if s.Movie.Length != nil && *s.Movie.Length > 0 {
			end = s.Start.Add(time.Duration(*s.Movie.Length) * time.Minute)
		}

		writeLine(&ics, "BEGIN:VEVENT")
		writeLine(&ics, "UID:"+EventUID(s))
		writeLine(&ics, "DTSTAMP:"+formatICSTime(stamp))
		writeLine(&ics, "DTSTART:"+formatICSTime(s.Start))
		writeLine(&ics, "DTEND:"+formatICSTime(end))
		writeLine(&ics, "SUMMARY:"+escapeICS(s.Movie.Title))
		writeLine(&ics, "LOCATION:"+escapeICS(s.Location))
		writeLine(&ics, "DESCRIPTION:"+escapeICS(description(s)))
		link := s.Ticket
		if link == "" {
			link = s.Movie.URL
		}
		if link != "" {
			writeLine(&ics, "URL:"+link)
		}
		writeLine(&ics, "END:VEVENT")
	}

	writeLine(&ics, "END:VCALENDAR")

	_, err := io.WriteString(w, ics.String())
	return err
}

// EventUID is stable across runs for the same movie, time and venue.
func EventUID(s core.Screening) string {
	key := strings.Join([]string{s.Movie.URL, s.Time, s.Location}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String() + "@berlinale-programme"
}

func description(s core.Screening) string {
	parts := []string{s.Movie.Section}
	if s.Movie.Title2 != "" {
		parts = append(parts, s.Movie.Title2)
	}
	if s.Info != "" {
		parts = append(parts, s.Info)
	}
	if s.TicketCode != "" {
		parts = append(parts, "Ticket code: "+s.TicketCode)
	}
	parts = append(parts, s.TicketInfo)
	if s.Movie.Description != "" {
		parts = append(parts, "", s.Movie.Description)
	}
	return strings.Join(parts, "\n")
}

func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes TEXT values per RFC 5545 section 3.3.11.
func escapeICS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// writeLine folds content lines longer than 75 octets without splitting a
// UTF-8 sequence.
func writeLine(b *strings.Builder, line string) {
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}
