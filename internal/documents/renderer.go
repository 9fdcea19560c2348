package documents

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-distribution/report"
)

// New returns the renderer selected by kind: "gotenberg" or "maroto".
func New(kind, gotenbergURL string) (Renderer, error) {
	switch strings.ToLower(kind) {
	case "", "gotenberg":
		if gotenbergURL == "" {
			return nil, fmt.Errorf("documents: GOTENBERG_URL is required for the gotenberg renderer")
		}
		r, err := NewGotenbergRenderer(report.NewClient(gotenbergURL))
		if err != nil {
			return nil, err
		}
		return Dedup(r), nil
	case "maroto":
		return Dedup(NewMarotoRenderer()), nil
	}
	return nil, fmt.Errorf("documents: unknown renderer %q", kind)
}
