package filing

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// atomFeed mirrors the subset of the Atom index schema we consume.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Updated string `xml:"updated"`
	Links   []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
	Content struct {
		AccessionNumber string `xml:"accession-number"`
		FilingDate      string `xml:"filing-date"`
	} `xml:"content"`
	ID string `xml:"id"`
}

// ParseAtomIndex extracts index entries from an Atom feed.
func ParseAtomIndex(data []byte) ([]IndexEntry, error) {
	var feed atomFeed
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&feed); err != nil {
		return nil, fmt.Errorf("atom index: %w", err)
	}

	entries := make([]IndexEntry, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		entry := IndexEntry{
			Accession:   e.Content.AccessionNumber,
			FilingDate:  e.Content.FilingDate,
			CompanyName: companyFromTitle(e.Title),
		}
		if entry.Accession == "" {
			entry.Accession = accessionFromID(e.ID)
		}
		if entry.FilingDate == "" && len(e.Updated) >= 10 {
			entry.FilingDate = e.Updated[:10]
		}
		for _, l := range e.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				entry.FilingHref = l.Href
				break
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// companyFromTitle extracts the company name from entry titles of the form
// "10-K - Acme Inc (0001234567) (Filer)".
func companyFromTitle(title string) string {
	parts := strings.SplitN(title, " - ", 2)
	if len(parts) != 2 {
		return strings.TrimSpace(title)
	}
	name := parts[1]
	if i := strings.Index(name, " ("); i > 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// accessionFromID extracts the accession number from entry IDs of the form
// "urn:tag:sec.gov,2008:accession-number=0001234567-25-000123".
func accessionFromID(id string) string {
	const marker = "accession-number="
	if i := strings.Index(id, marker); i >= 0 {
		return id[i+len(marker):]
	}
	return ""
}
