package reports

import (
	"os"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/reportbuilder/internal/unit"
)

// Summary describes a unit for listings.
type Summary struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Built bool   `json:"built"`
}

// List returns every unit with the title of its built html page, falling
// back to the unit name.
func (s *Service) List() ([]Summary, error) {
	names, err := s.roots.List()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(names))
	for _, name := range names {
		l := s.roots.Layout(name)
		sum := Summary{Name: name, Title: name}
		if title, ok := pageTitle(s.mainFile(l, unit.KindHTML)); ok {
			sum.Built = true
			if title != "" {
				sum.Title = title
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// pageTitle returns the text of the first <title> element of the page at
// path. ok is false when the page cannot be read.
func pageTitle(path string) (string, bool) {
	// #nosec G304 -- path is the html output of a managed unit
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer func() { _ = f.Close() }()
	doc, err := html.Parse(f)
	if err != nil {
		return "", true
	}
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "title" {
			return strings.Join(strings.Fields(extractText(n)), " ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := find(c); t != "" {
				return t
			}
		}
		return ""
	}
	return find(doc), true
}

func extractText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(extractText(c))
	}
	return b.String()
}
