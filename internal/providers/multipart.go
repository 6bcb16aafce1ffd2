package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// supportedImageTypes are the mime types every vendor adapter can inline.
var supportedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// resultPart is one resolved piece of a multipart tool result: either text
// or an inline base64 image.
type resultPart struct {
	Text     string
	MimeType string
	Data     string // base64, set for images only
}

func (p resultPart) isImage() bool { return p.Data != "" }

func (p resultPart) dataURL() string {
	return "data:" + p.MimeType + ";base64," + p.Data
}

// resolveResultParts expands a tool result into text and image parts. Images
// that cannot be loaded or have an unsupported type become placeholder text
// so the request stays valid.
func resolveResultParts(ctx context.Context, resolver schema.ArtifactResolver, m schema.Message) []resultPart {
	var parts []resultPart
	if m.Content != "" {
		parts = append(parts, resultPart{Text: m.Content})
	}
	for _, it := range m.Items {
		switch it.Type {
		case schema.ItemText:
			if it.Text != "" {
				parts = append(parts, resultPart{Text: it.Text})
			}
		case schema.ItemImage:
			parts = append(parts, resolveImage(ctx, resolver, it))
		default:
			slog.Debug("skipping unknown tool result item", "type", it.Type)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, resultPart{Text: emptyResultText})
	}
	return parts
}

func resolveImage(ctx context.Context, resolver schema.ArtifactResolver, it schema.ContentItem) resultPart {
	label := artifactLabel(it)
	if !supportedImageTypes[it.MimeType] {
		return resultPart{Text: fmt.Sprintf("[unsupported image type %s: %s]", it.MimeType, label)}
	}
	if it.Artifact == nil || resolver == nil {
		return resultPart{Text: fmt.Sprintf("[image unavailable: %s]", label)}
	}
	data, err := resolver.ReadArtifact(ctx, *it.Artifact)
	if err != nil {
		if !errors.Is(err, schema.ErrArtifactNotFound) {
			slog.Warn("failed to read tool result image", "artifact", label, "err", err)
		}
		return resultPart{Text: fmt.Sprintf("[image unavailable: %s]", label)}
	}
	return resultPart{MimeType: it.MimeType, Data: base64.StdEncoding.EncodeToString(data)}
}

func artifactLabel(it schema.ContentItem) string {
	if it.Artifact == nil {
		return "(no artifact)"
	}
	return it.Artifact.RelPath
}

// hasImageItems reports whether a result carries image items.
func hasImageItems(m schema.Message) bool {
	for _, it := range m.Items {
		if it.Type == schema.ItemImage {
			return true
		}
	}
	return false
}
