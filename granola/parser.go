package granola

import (
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// MeetingRecord is one meeting extracted from a Granola payload.  Content is
// derived: notes if present, otherwise the trimmed inner text of the record.
type MeetingRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Date      string   `json:"date"`
	Attendees []string `json:"attendees"`
	Notes     string   `json:"notes"`
	Content   string   `json:"content"`
}

// strategies are the parse attempts in decreasing order of confidence.
// Each is pure; the next one is only tried if the previous produced zero
// records.
var strategies = []func(string) []MeetingRecord{
	parseSoup,
	parseBlocks,
	parseTags,
}

// ParseMeetings extracts meeting records from a free-text payload.  The
// payload is expected to be pseudo-XML but the format is not contractually
// guaranteed: well-formed XML, tag soup and minimal attribute-only tags have
// all been observed.  ParseMeetings never fails; on a completely hopeless
// input it returns an empty slice.
func ParseMeetings(text string) []MeetingRecord {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, parse := range strategies {
		if mm := parse(text); len(mm) > 0 {
			return mm
		}
	}
	return nil
}

// ─── strategy 1: tag-soup parse ───────────────────────────────────────────────

// parseSoup wraps the payload in a synthetic root element and runs it
// through the HTML parser, which is permissive of unbalanced and interleaved
// tags.  Attribute and child-element representations of the same field are
// both accepted.
func parseSoup(text string) []MeetingRecord {
	doc, err := html.Parse(strings.NewReader("<root>" + text + "</root>"))
	if err != nil {
		slog.Warn("granola: soup parse failed", "error", err)
		return nil
	}
	var mm []MeetingRecord
	for _, el := range findAll(doc, "meeting") {
		mm = append(mm, recordFromNode(el))
	}
	return mm
}

func recordFromNode(el *html.Node) MeetingRecord {
	title := attr(el, "title")
	if title == "" {
		title = childText(el, "title")
	}
	if title == "" {
		title = "Untitled Meeting"
	}
	date := attr(el, "date")
	if date == "" {
		date = attr(el, "meeting_date")
	}
	if date == "" {
		date = childText(el, "date")
	}

	var attendees []string
	if container := findFirst(el, "attendees"); container != nil {
		for _, a := range findAll(container, "attendee") {
			if name := strings.TrimSpace(innerText(a)); name != "" {
				attendees = append(attendees, name)
			}
		}
	} else if attrs := attr(el, "attendees"); attrs != "" {
		for _, name := range strings.Split(attrs, ",") {
			attendees = append(attendees, strings.TrimSpace(name))
		}
	}

	var notes string
	for _, tag := range []string{"notes", "enhanced_notes", "summary", "summary_text"} {
		if notes = childText(el, tag); notes != "" {
			break
		}
	}
	privateNotes := childText(el, "private_notes")

	content := notes
	if content == "" {
		content = privateNotes
	}
	if content == "" {
		content = strings.TrimSpace(innerText(el))
	}
	if notes == "" {
		notes = privateNotes
	}

	return MeetingRecord{
		ID:        attr(el, "id"),
		Title:     title,
		Date:      date,
		Attendees: attendees,
		Notes:     notes,
		Content:   strings.TrimSpace(content),
	}
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// findAll collects all descendant elements with the given tag name.
func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, c)
		}
		out = append(out, findAll(c, tag)...)
	}
	return out
}

// findFirst returns the first descendant element with the given tag name.
func findFirst(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// childText returns the trimmed inner text of the first descendant element
// with the given tag name, or "".
func childText(n *html.Node, tag string) string {
	el := findFirst(n, tag)
	if el == nil {
		return ""
	}
	return strings.TrimSpace(innerText(el))
}

// innerText concatenates all text nodes under n.
func innerText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// ─── strategy 2: regex block parse ────────────────────────────────────────────

var (
	reMeetingBlock = regexp.MustCompile(`(?is)<meeting\s+([^>]+)>(.*?)</meeting>`)
	reIDAttr       = regexp.MustCompile(`id="([^"]*)"`)
	reTitleAttr    = regexp.MustCompile(`title="([^"]*)"`)
	reDateAttr     = regexp.MustCompile(`date="([^"]*)"`)
)

// parseBlocks scans for <meeting ...>...</meeting> blocks with a tolerant
// regex.  The whole block body becomes the notes; attendees are unknown at
// this confidence level.
func parseBlocks(text string) []MeetingRecord {
	var mm []MeetingRecord
	for _, m := range reMeetingBlock.FindAllStringSubmatch(text, -1) {
		attrs, body := m[1], strings.TrimSpace(m[2])
		mm = append(mm, MeetingRecord{
			ID:      submatch(reIDAttr, attrs),
			Title:   defaulted(submatch(reTitleAttr, attrs), "Meeting"),
			Date:    submatch(reDateAttr, attrs),
			Notes:   body,
			Content: body,
		})
	}
	return mm
}

// ─── strategy 3: minimal tag parse ────────────────────────────────────────────

var reMeetingTag = regexp.MustCompile(`(?i)<meeting[^>]*id="[^"]*"[^>]*title="[^"]*"[^>]*/?>`)

// parseTags scans for self-closing or attribute-only meeting tags bearing at
// minimum an id and a title.  Lowest confidence: notes, content and
// attendees are left empty.
func parseTags(text string) []MeetingRecord {
	var mm []MeetingRecord
	for _, tag := range reMeetingTag.FindAllString(text, -1) {
		mm = append(mm, MeetingRecord{
			ID:    submatch(reIDAttr, tag),
			Title: defaulted(submatch(reTitleAttr, tag), "Meeting"),
		})
	}
	return mm
}

var reBareID = regexp.MustCompile(`id="([^"]+)"`)

// scrapeIDs is the last-ditch extraction used by the meetings session when
// no strategy produced records but the payload still mentions ids.
func scrapeIDs(text string) []string {
	var ids []string
	for _, m := range reBareID.FindAllStringSubmatch(text, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

func submatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

func defaulted(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
