package core

import "time"

type Movie struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Title2      string `json:"title2,omitempty"`
	Section     string `json:"section"`
	Staff       string `json:"staff,omitempty"`
	Country     string `json:"country,omitempty"`
	Year        *int   `json:"year,omitempty"`
	Lang        string `json:"lang,omitempty"`
	Info        string `json:"info,omitempty"`
	Event       string `json:"event,omitempty"`
	Length      *int   `json:"length,omitempty"`
	Description string `json:"description"`
	Image       string `json:"image"`
	URL         string `json:"url"`
}

// Screening is one scheduled showing. Movie is embedded by value so every
// screening serializes with the full movie record.
type Screening struct {
	Movie      Movie  `json:"movie"`
	Time       string `json:"time"`
	Location   string `json:"location"`
	Info       string `json:"info,omitempty"`
	TicketCode string `json:"ticket_code,omitempty"`
	ICal       string `json:"ical,omitempty"`
	TicketInfo string `json:"ticket_info"`
	Ticket     string `json:"ticket,omitempty"`

	Start time.Time `json:"-"`
}

// Movies maps movie id to the most recently extracted record.
type Movies map[int]Movie
