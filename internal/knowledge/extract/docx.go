package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DOCX extracts heading-delimited sections from a WordprocessingML package.
type DOCX struct{}

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

type paragraph struct {
	style string
	text  string
}

func (DOCX) Extract(data []byte) ([]Section, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening docx: %w", err)
	}
	var body io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("opening document part: %w", err)
			}
			break
		}
	}
	if body == nil {
		return nil, errors.New("docx has no word/document.xml part")
	}
	defer body.Close()

	paragraphs, err := readParagraphs(body)
	if err != nil {
		return nil, err
	}
	return groupSections(paragraphs), nil
}

// groupSections starts a new section at every heading paragraph. Body
// paragraphs are appended to the running section on a new line. A section
// is emitted only when it has content; the trailing one is always flushed.
func groupSections(paragraphs []paragraph) []Section {
	var sections []Section
	current := Section{}
	for _, p := range paragraphs {
		if isHeading(p.style) {
			if current.Content != "" {
				sections = append(sections, current)
			}
			current = Section{Content: p.text, Heading: p.text}
			continue
		}
		current.Content += "\n" + p.text
	}
	if current.Content != "" {
		sections = append(sections, current)
	}
	return sections
}

// isHeading matches both the style display names ("Heading 1") and the
// style ids Word writes into document.xml ("Heading1"), plus Title.
func isHeading(style string) bool {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.HasPrefix(s, "heading") || s == "title"
}

func readParagraphs(r io.Reader) ([]paragraph, error) {
	dec := xml.NewDecoder(r)
	var (
		out    []paragraph
		cur    *paragraph
		text   strings.Builder
		inText bool
		pDepth int
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing document part: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				pDepth++
				if pDepth == 1 {
					cur = &paragraph{}
					text.Reset()
				}
			case "pStyle":
				if cur != nil {
					cur.style = attr(t, "val")
				}
			case "t":
				inText = true
			case "tab":
				if cur != nil {
					text.WriteByte('\t')
				}
			case "br", "cr":
				if cur != nil {
					text.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				pDepth--
				if pDepth == 0 && cur != nil {
					cur.text = text.String()
					out = append(out, *cur)
					cur = nil
				}
			}
		case xml.CharData:
			if inText && cur != nil {
				text.Write(t)
			}
		}
	}
	return out, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
