package openai

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

const pdfMimeType = "application/pdf"

// pageRenderer turns a PDF into page images
type pageRenderer func(data []byte, maxPages int) ([]image.Image, error)

// renderPDF renders up to maxPages pages of a PDF with mupdf
func renderPDF(data []byte, maxPages int) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if maxPages > 0 && count > maxPages {
		count = maxPages
	}

	pages := make([]image.Image, 0, count)
	for i := 0; i < count; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// expandPages replaces every PDF with its rendered JPEG pages, keeping images as they are.
// At most maxPages images are returned.
func expandPages(images []port.ReceiptImage, render pageRenderer, maxPages int, logger *zap.Logger) ([]port.ReceiptImage, error) {
	out := make([]port.ReceiptImage, 0, len(images))

	for _, img := range images {
		if maxPages > 0 && len(out) >= maxPages {
			break
		}
		if img.MimeType != pdfMimeType {
			out = append(out, img)
			continue
		}

		remaining := 0
		if maxPages > 0 {
			remaining = maxPages - len(out)
		}
		pages, err := render(img.Data, remaining)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", img.Name, err)
		}
		logger.Debug("Rendered PDF pages", zap.String("name", img.Name), zap.Int("pages", len(pages)))

		for i, page := range pages {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, page, &jpeg.Options{Quality: 90}); err != nil {
				return nil, fmt.Errorf("failed to encode page %d of %s: %w", i, img.Name, err)
			}
			out = append(out, port.ReceiptImage{
				Name:     fmt.Sprintf("%s#%d", img.Name, i+1),
				MimeType: "image/jpeg",
				Data:     buf.Bytes(),
			})
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no pages to read")
	}
	return out, nil
}
