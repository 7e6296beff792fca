package fitz

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	gofitz "github.com/gen2brain/go-fitz"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

// DefaultDPI renders pages at their natural size (identity transform).
const DefaultDPI = 72.0

// Renderer rasterizes the first pages of stored PDFs to base64 PNG with MuPDF.
type Renderer struct {
	storage ports.ObjectStorage
	dpi     float64
}

func NewRenderer(storage ports.ObjectStorage, dpi float64) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Renderer{storage: storage, dpi: dpi}
}

func (r *Renderer) Render(ctx context.Context, filePath string, maxPages int) domain.ImageRendering {
	if maxPages <= 0 {
		maxPages = domain.DefaultMaxRenderPages
	}

	raw, err := r.read(ctx, filePath)
	if err != nil {
		return domain.ImageRendering{Error: "Failed to download file from storage: " + err.Error()}
	}

	doc, err := gofitz.NewFromMemory(raw)
	if err != nil {
		if errors.Is(err, gofitz.ErrNeedsPassword) || strings.Contains(strings.ToLower(err.Error()), "password") {
			return domain.ImageRendering{Error: "PDF is password-protected and cannot be rendered to images"}
		}
		return domain.ImageRendering{Error: "Failed to open PDF for image conversion: " + err.Error()}
	}
	defer doc.Close()

	total := doc.NumPage()
	limit := min(total, maxPages)
	images := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			break
		}
		png, err := doc.ImagePNG(i, r.dpi)
		if err != nil {
			slog.Warn("pdf_page_render_failed", "path", filePath, "page", i+1, "error", err)
			continue
		}
		images = append(images, base64.StdEncoding.EncodeToString(png))
	}

	if len(images) == 0 {
		return domain.ImageRendering{
			PageCount: total,
			Error:     "Failed to render any pages from the PDF",
		}
	}
	return domain.ImageRendering{
		Images:    images,
		PageCount: total,
		Success:   true,
	}
}

func (r *Renderer) read(ctx context.Context, key string) ([]byte, error) {
	reader, err := r.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, nil
}
