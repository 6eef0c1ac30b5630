package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mediabridge/asset-gateway/internal/domain/assets"
	"github.com/mediabridge/asset-gateway/internal/domain/queries"
)

// PathFunc renders the public path of an asset inside a generated
// document. Injected so the manifest layout is testable and carries no
// global routing state.
type PathFunc func(id assets.ID) string

type manifestItem struct {
	ID        string `json:"id"`
	Family    string `json:"family"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

type manifestDoc struct {
	Type     string         `json:"type"`
	Query    string         `json:"query"`
	Customer int            `json:"customer"`
	Items    []manifestItem `json:"items"`
}

// ManifestGenerator builds the composite document for a named-query result
// set. Items follow the result ordering, so an unchanged result set
// reproduces the same bytes.
func ManifestGenerator(result *queries.Result, pathFor PathFunc) GenerateFunc {
	return func(ctx context.Context, w io.Writer) error {
		if len(result.Matches) == 0 {
			return ErrNoProjectionSource
		}
		doc := manifestDoc{
			Type:     "Manifest",
			Query:    result.Query.Name,
			Customer: result.Query.Customer,
			Items:    make([]manifestItem, 0, len(result.Matches)),
		}
		for _, m := range result.Matches {
			doc.Items = append(doc.Items, manifestItem{
				ID:        pathFor(m.AssetID()),
				Family:    m.Family,
				Width:     m.Width,
				Height:    m.Height,
				MediaType: m.MediaType,
			})
		}
		enc := json.NewEncoder(w)
		if err := enc.Encode(&doc); err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		return nil
	}
}
