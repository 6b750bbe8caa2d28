// Package unit manages report units on disk: the fixed directory skeleton,
// provisioning of new units, and versioned builds of their outputs.
package unit

import (
	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
)

// Kind is a supported render target.
type Kind string

const (
	KindHTML  Kind = "html"
	KindLaTeX Kind = "latex"
	KindPDF   Kind = "pdf"
)

// AllKinds lists the output kinds in skeleton order.
var AllKinds = []Kind{KindHTML, KindLaTeX, KindPDF}

// ParseKind resolves s to a Kind. Unknown kinds are rejected rather than
// defaulted.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindHTML, KindLaTeX, KindPDF:
		return k, nil
	default:
		return "", derrors.ConfigError("unknown output kind").
			WithContext("kind", s).
			Build()
	}
}

// ParseKinds resolves each entry of names.
func ParseKinds(names []string) ([]Kind, error) {
	out := make([]Kind, 0, len(names))
	for _, n := range names {
		k, err := ParseKind(n)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func (k Kind) String() string { return string(k) }

// MainFile is the name of the primary artifact a build of k produces for
// the given master document.
func (k Kind) MainFile(master string) string {
	switch k {
	case KindLaTeX:
		return master + ".tex"
	case KindPDF:
		return master + ".pdf"
	default:
		return master + ".html"
	}
}
