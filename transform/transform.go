// Package transform maps raw ERP payloads into the candidate values that
// flow through change detection. Transforms are pure per family, except
// product transformation which also reads the current price cache
// snapshot via the cache layer (so it is not hermetic — see spec.md §4.7).
package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"erpcache.eve.dev/cache"
	"erpcache.eve.dev/common"
	"erpcache.eve.dev/erp"

	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
)

// maxInlineDimension bounds the longest side of an inlined image so a
// single hero/bundle asset can't blow up the hash payload.
const maxInlineDimension = 1024

// Transformer produces candidate values for each family.
type Transformer struct {
	fetcher erp.Fetcher
	prices  *cache.Layer
	log     *common.ContextLogger
}

// NewTransformer builds a Transformer. prices is consulted for the
// per-variant price lookup product transformation depends on.
func NewTransformer(fetcher erp.Fetcher, prices *cache.Layer, log *common.ContextLogger) *Transformer {
	if log == nil {
		log = common.NewContextLogger(nil, map[string]interface{}{"component": "transform"})
	}
	return &Transformer{fetcher: fetcher, prices: prices, log: log}
}

// Product enriches an ERP product payload with the current retail/
// wholesale price of each variant, read from the price simple key rather
// than re-fetched from ERP.
func (t *Transformer) Product(ctx context.Context, erpProduct map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(erpProduct))
	for k, v := range erpProduct {
		out[k] = v
	}

	variantsRaw, ok := erpProduct["variants"].([]interface{})
	if !ok {
		return out, nil
	}

	enriched := make([]interface{}, 0, len(variantsRaw))
	for _, v := range variantsRaw {
		variant, ok := v.(map[string]interface{})
		if !ok {
			enriched = append(enriched, v)
			continue
		}

		itemCode, _ := variant["item_code"].(string)
		if itemCode == "" {
			enriched = append(enriched, variant)
			continue
		}

		priceVal, err := t.prices.ReadSimple(ctx, "price", itemCode)
		if err != nil {
			return nil, err
		}

		variantOut := make(map[string]interface{}, len(variant)+1)
		for k, v := range variant {
			variantOut[k] = v
		}
		if priceVal != nil {
			var priceVector []float64
			if err := json.Unmarshal(priceVal, &priceVector); err == nil {
				variantOut["price"] = priceVector
			}
		}
		enriched = append(enriched, variantOut)
	}
	out["variants"] = enriched

	return out, nil
}

// Home passes the app-home payload through unchanged; it exists as a
// named family transform so home rides the same detect-and-append
// pipeline as every other entity.
func (t *Transformer) Home(ctx context.Context, raw map[string]interface{}) (map[string]interface{}, error) {
	return raw, nil
}

// ImageList downloads each URL and inlines it as a base64 data URL,
// dropping (and logging) any single image that fails to download or
// decode rather than failing the whole transform.
func (t *Transformer) ImageList(ctx context.Context, urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		dataURL, ok := t.inlineImage(ctx, url)
		if !ok {
			continue
		}
		out = append(out, dataURL)
	}
	return out
}

func (t *Transformer) inlineImage(ctx context.Context, url string) (string, bool) {
	body, contentType, err := t.fetcher.FetchBlob(ctx, url)
	if err != nil {
		t.log.WithField("url", url).WithError(err).Warn("image download failed, dropping")
		return "", false
	}

	resized, mimeType, err := rescaleWithinBound(body, contentType)
	if err != nil {
		t.log.WithField("url", url).WithError(err).Warn("image decode failed, dropping")
		return "", false
	}

	encoded := base64.StdEncoding.EncodeToString(resized)
	return fmt.Sprintf("data:%s;base64,%s", mimeType, encoded), true
}

// rescaleWithinBound decodes body, shrinks it if either dimension exceeds
// maxInlineDimension (Lanczos3, preserving aspect ratio), and re-encodes
// in its original format.
func rescaleWithinBound(body []byte, contentType string) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("transform: decode image: %w", err)
	}

	if format == "jpeg" {
		img = applyEXIFOrientation(img, body)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxInlineDimension || bounds.Dy() > maxInlineDimension {
		if bounds.Dx() >= bounds.Dy() {
			img = resize.Resize(maxInlineDimension, 0, img, resize.Lanczos3)
		} else {
			img = resize.Resize(0, maxInlineDimension, img, resize.Lanczos3)
		}
	}

	var buf bytes.Buffer
	mimeType := contentType
	if mimeType == "" {
		mimeType = "image/" + format
	}

	if err := encode(&buf, img, format); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), mimeType, nil
}

// applyEXIFOrientation reads the JPEG's EXIF orientation tag and rotates
// img so it displays upright, matching what a phone camera records before
// the orientation flag is applied. An absent or unreadable EXIF block
// (the common case for ERP-hosted product photos) leaves img unchanged.
func applyEXIFOrientation(img image.Image, body []byte) image.Image {
	x, err := exif.Decode(bytes.NewReader(body))
	if err != nil {
		return img
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return img
	}

	switch orientation {
	case 3:
		return rotate180(img)
	case 6:
		return rotate90CW(img)
	case 8:
		return rotate90CCW(img)
	default:
		return img
	}
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.X-1-x+b.Min.X, b.Max.Y-1-y+b.Min.Y, img.At(x, y))
		}
	}
	return out
}

func rotate90CW(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.Y-1-y+b.Min.Y, x-b.Min.X, img.At(x, y))
		}
	}
	return out
}

func rotate90CCW(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(y-b.Min.Y, b.Max.X-1-x+b.Min.X, img.At(x, y))
		}
	}
	return out
}
