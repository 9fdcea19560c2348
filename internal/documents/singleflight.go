package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/sync/singleflight"
)

// Deduplicated collapses concurrent renders of the same document into one call.
type Deduplicated struct {
	next  Renderer
	group singleflight.Group
}

func Dedup(next Renderer) *Deduplicated {
	return &Deduplicated{next: next}
}

// RenderPDF implements Renderer.
func (d *Deduplicated) RenderPDF(ctx context.Context, tmpl Template, doc Document) ([]byte, error) {
	key, err := renderKey(tmpl, doc)
	if err != nil {
		return d.next.RenderPDF(ctx, tmpl, doc)
	}
	v, err, _ := d.group.Do(key, func() (any, error) {
		return d.next.RenderPDF(ctx, tmpl, doc)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func renderKey(tmpl Template, doc Document) (string, error) {
	doc.PrintedAt = doc.PrintedAt.Truncate(0)
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return string(tmpl) + ":" + hex.EncodeToString(sum[:]), nil
}
