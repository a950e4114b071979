// Package catalog parses the mean-element text catalog: plain text, either
// two-line or three-line NORAD element sets, one catalog entry per record.
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kartikkumar/d2d-go/internal/meanelem"
)

// MalformedCatalogError reports a structural violation in the catalog text:
// an unexpected leading character, or a truncated record.
type MalformedCatalogError struct {
	Line   int
	Reason string
}

func (e *MalformedCatalogError) Error() string {
	return fmt.Sprintf("catalog: malformed catalog at line %d: %s", e.Line, e.Reason)
}

// Entry binds a parsed mean-element set to its catalog identity.
type Entry struct {
	ID       int
	Name     string
	Elements meanelem.MeanElements
}

// Parse reads a catalog from r. Detection rule: if the first character of
// the first line is '0', the catalog is three-line (name + two TLE lines
// per entry); if '1', two-line (TLE lines only, no display name); any other
// leading character is malformed.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("catalog: reading input: %w", err)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	if lines[0] == "" {
		return nil, &MalformedCatalogError{Line: 1, Reason: "empty first line"}
	}

	switch lines[0][:1] {
	case "0":
		return parseThreeLine(lines)
	case "1":
		return parseTwoLine(lines)
	default:
		return nil, &MalformedCatalogError{Line: 1, Reason: "first character must be '0' (three-line) or '1' (two-line)"}
	}
}

func parseThreeLine(lines []string) ([]Entry, error) {
	var entries []Entry
	for i := 0; i+2 < len(lines)+1 && i < len(lines); i += 3 {
		if i+2 >= len(lines) {
			return nil, &MalformedCatalogError{Line: i + 1, Reason: "truncated three-line record"}
		}
		name := strings.TrimPrefix(strings.TrimSpace(lines[i]), "0 ")
		line1, line2 := lines[i+1], lines[i+2]
		if !strings.HasPrefix(line1, "1") {
			return nil, &MalformedCatalogError{Line: i + 2, Reason: "expected TLE line 1"}
		}
		if !strings.HasPrefix(line2, "2") {
			return nil, &MalformedCatalogError{Line: i + 3, Reason: "expected TLE line 2"}
		}
		el, err := meanelem.ParseLines(line1, line2)
		if err != nil {
			return nil, &MalformedCatalogError{Line: i + 2, Reason: err.Error()}
		}
		entries = append(entries, Entry{ID: el.NoradID, Name: name, Elements: el})
	}
	return entries, nil
}

func parseTwoLine(lines []string) ([]Entry, error) {
	var entries []Entry
	for i := 0; i+1 < len(lines)+1 && i < len(lines); i += 2 {
		if i+1 >= len(lines) {
			return nil, &MalformedCatalogError{Line: i + 1, Reason: "truncated two-line record"}
		}
		line1, line2 := lines[i], lines[i+1]
		if !strings.HasPrefix(line1, "1") {
			return nil, &MalformedCatalogError{Line: i + 1, Reason: "expected TLE line 1"}
		}
		if !strings.HasPrefix(line2, "2") {
			return nil, &MalformedCatalogError{Line: i + 2, Reason: "expected TLE line 2"}
		}
		el, err := meanelem.ParseLines(line1, line2)
		if err != nil {
			return nil, &MalformedCatalogError{Line: i + 1, Reason: err.Error()}
		}
		entries = append(entries, Entry{ID: el.NoradID, Elements: el})
	}
	return entries, nil
}

// WriteThreeLine writes entries back out in three-line format, the shape
// the catalog pruner emits.
func WriteThreeLine(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		name := e.Name
		if !strings.HasPrefix(name, "0 ") {
			name = "0 " + name
		}
		line1, line2, err := e.Elements.Lines()
		if err != nil {
			return fmt.Errorf("catalog: serializing entry %d: %w", e.ID, err)
		}
		if _, err := fmt.Fprintln(bw, name); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(bw, line1); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(bw, line2); err != nil {
			return err
		}
	}
	return bw.Flush()
}
