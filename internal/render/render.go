// Package render rasterizes certificates: a template background with text
// placeholders, signature images and validation QR codes composited on top.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/corvusHold/certify/internal/metrics"
	"github.com/corvusHold/certify/internal/records"
	tdomain "github.com/corvusHold/certify/internal/templates/domain"
)

const (
	KindSignature = "signature"
	KindQR        = "qr"
)

var (
	// ErrBackground means the template image could not be loaded; the record cannot be rendered.
	ErrBackground = errors.New("background image unavailable")
	// ErrIdentifierRequired is returned when a template has QR slots but no identifier was allocated.
	ErrIdentifierRequired = errors.New("unique identifier required for qr placeholders")
)

// ElementError describes a signature or QR element that was left out of a render.
type ElementError struct {
	Kind string
	ID   string
	Err  error
}

func (e ElementError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, e.ID, e.Err)
}

func (e ElementError) Unwrap() error { return e.Err }

// Output is one rendered certificate.
type Output struct {
	PNG     []byte
	Width   int
	Height  int
	Skipped []ElementError
}

// Renderer composites certificates. It holds no per-render state and is safe
// for concurrent use.
type Renderer struct {
	images        ImageLoader
	fonts         *FontSource
	validationURL func(uniqueIdentifier string) string
	log           zerolog.Logger
}

func New(images ImageLoader, fonts *FontSource, validationURL func(string) string, log zerolog.Logger) *Renderer {
	return &Renderer{images: images, fonts: fonts, validationURL: validationURL, log: log}
}

// Render draws tpl for rec. uniqueIdentifier must already be allocated when
// the template has QR placeholders; the renderer never mints one itself.
func (r *Renderer) Render(ctx context.Context, tpl tdomain.Template, rec records.Record, uniqueIdentifier string) (Output, error) {
	start := time.Now()
	defer func() { metrics.ObserveRender(time.Since(start).Seconds()) }()

	if tpl.HasQR() && uniqueIdentifier == "" {
		return Output{}, ErrIdentifierRequired
	}

	bg, err := r.images.Load(ctx, tpl.ImageURL)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrBackground, err)
	}
	// The canvas always has the background's native size.
	dc := gg.NewContextForImage(bg)

	if err := r.drawPlaceholders(ctx, dc, tpl.Placeholders, rec); err != nil {
		return Output{}, err
	}

	var skipped []ElementError
	for _, sig := range tpl.Signatures {
		if strings.TrimSpace(sig.ImageURL) == "" {
			continue
		}
		img, err := r.images.Load(ctx, sig.ImageURL)
		if err != nil {
			skipped = append(skipped, r.skip(KindSignature, sig.ID, err))
			continue
		}
		drawCentered(dc, fit(img, sig.Style.Width, sig.Style.Height, resize.Lanczos3), sig.Position)
	}
	for _, q := range tpl.QRPlaceholders {
		side := int(math.Round(math.Min(q.Style.Width, q.Style.Height)))
		img, err := QRCode(r.validationURL(uniqueIdentifier), side)
		if err != nil {
			skipped = append(skipped, r.skip(KindQR, q.ID, err))
			continue
		}
		drawCentered(dc, fit(img, q.Style.Width, q.Style.Height, resize.NearestNeighbor), q.Position)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return Output{}, fmt.Errorf("encode png: %w", err)
	}
	return Output{PNG: buf.Bytes(), Width: dc.Width(), Height: dc.Height(), Skipped: skipped}, nil
}

func (r *Renderer) drawPlaceholders(ctx context.Context, dc *gg.Context, phs []tdomain.Placeholder, rec records.Record) error {
	for _, p := range phs {
		v, ok := rec.Lookup(p.Name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		face, err := r.fonts.Face(ctx, p.Style)
		if err != nil {
			return fmt.Errorf("font for %q: %w", p.Name, err)
		}
		c, err := ParseColor(p.Style.FontColor)
		if err != nil {
			r.log.Debug().Err(err).Str("placeholder", p.Name).Msg("falling back to black")
			c = color.NRGBA{A: 255}
		}
		dc.SetFontFace(face)
		dc.SetColor(c)
		dc.DrawStringAnchored(v, p.Position.X, p.Position.Y, alignAnchor(p.Style.TextAlign), 0.5)
		_ = face.Close()
	}
	return nil
}

func (r *Renderer) skip(kind, id string, err error) ElementError {
	metrics.IncRenderElementSkipped(kind)
	r.log.Warn().Err(err).Str("element", kind).Str("element_id", id).Msg("skipping template element")
	return ElementError{Kind: kind, ID: id, Err: err}
}

// alignAnchor maps CSS text-align to a horizontal anchor.
func alignAnchor(align string) float64 {
	switch strings.ToLower(strings.TrimSpace(align)) {
	case "center":
		return 0.5
	case "right", "end":
		return 1
	default:
		return 0
	}
}

// fit scales img uniformly by min(w/nw, h/nh).
func fit(img image.Image, w, h float64, interp resize.InterpolationFunction) image.Image {
	b := img.Bounds()
	nw, nh := float64(b.Dx()), float64(b.Dy())
	if nw == 0 || nh == 0 || w <= 0 || h <= 0 {
		return img
	}
	scale := math.Min(w/nw, h/nh)
	if scale == 1 {
		return img
	}
	tw := uint(math.Max(1, math.Round(nw*scale)))
	th := uint(math.Max(1, math.Round(nh*scale)))
	return resize.Resize(tw, th, img, interp)
}

// drawCentered places img so that its centre sits on pos.
func drawCentered(dc *gg.Context, img image.Image, pos tdomain.Position) {
	b := img.Bounds()
	x := int(math.Round(pos.X - float64(b.Dx())/2))
	y := int(math.Round(pos.Y - float64(b.Dy())/2))
	dc.DrawImage(img, x, y)
}
