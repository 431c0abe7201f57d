package filing

import (
	"bytes"
	"strings"
)

// ParseDocument extracts facts from a fetched filing document, selecting the
// sub-parser by content type, falling back to content sniffing.
func ParseDocument(f *Filing, data []byte, contentType string) (*ParseResult, error) {
	switch {
	case strings.Contains(contentType, "json") || sniffJSON(data):
		return ParseXBRLJSON(f, data)
	case strings.Contains(contentType, "xml") || sniffXML(data):
		return ParseXBRLXML(f, data)
	default:
		return HTMLTableFacts(f.FilingID, data)
	}
}

func sniffJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func sniffXML(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<xbrl"))
}
