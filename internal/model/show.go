package model

import "time"

// Show is a scraped event listing. Openers ride in the Openers slice; the
// headliner is the Artist field.
type Show struct {
	ID       string    `json:"id"`
	Artist   string    `json:"artist"`
	Openers  []string  `json:"openers,omitempty"`
	Venue    string    `json:"venue"`
	City     string    `json:"city,omitempty"`
	Date     time.Time `json:"date"`
	VideoID  *string   `json:"video_id,omitempty"`
	ImageURL string    `json:"image_url,omitempty"`
}

// Billing flattens a show into (name, role) pairs, headliner first.
func (s *Show) Billing() []BillingEntry {
	entries := make([]BillingEntry, 0, 1+len(s.Openers))
	entries = append(entries, BillingEntry{Name: s.Artist, Role: RoleHeadliner})
	for _, op := range s.Openers {
		entries = append(entries, BillingEntry{Name: op, Role: RoleOpener})
	}
	return entries
}

// BillingEntry is one artist slot on a show.
type BillingEntry struct {
	Name string
	Role Role
}
