package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a template does not exist or is not visible to the caller.
var ErrNotFound = errors.New("template not found")

// Template is the static layout of a certificate. Positions and sizes are in
// pixels of the background image, not of any editor canvas.
type Template struct {
	ID             uuid.UUID       `json:"id"`
	CreatorID      uuid.UUID       `json:"creatorId"`
	Name           string          `json:"name"`
	ImageURL       string          `json:"imageUrl"`
	Width          int             `json:"width"`
	Height         int             `json:"height"`
	Placeholders   []Placeholder   `json:"placeholders"`
	Signatures     []Signature     `json:"signatures"`
	QRPlaceholders []QRPlaceholder `json:"qrPlaceholders"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextStyle describes how a placeholder value is drawn.
type TextStyle struct {
	FontFamily    string   `json:"fontFamily"`
	FontSize      FontSize `json:"fontSize"`
	FontColor     string   `json:"fontColor"`
	FontWeight    string   `json:"fontWeight"`
	TextAlign     string   `json:"textAlign"`
	CustomFontURL string   `json:"customFontUrl,omitempty"`
}

// Placeholder is a named text slot bound to a record column.
type Placeholder struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Position Position  `json:"position"`
	Style    TextStyle `json:"style"`
}

// BoxStyle is the target box an image element is fitted into.
type BoxStyle struct {
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
}

// Signature is an uploaded image centred on Position.
type Signature struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Style    BoxStyle `json:"style"`
	ImageURL string   `json:"imageUrl,omitempty"`
}

// QRPlaceholder is a slot for the per-certificate validation QR code.
type QRPlaceholder struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Style    BoxStyle `json:"style"`
}

// FontSize accepts 24, 24.5 or "24px" in JSON and stores pixels.
type FontSize float64

func (f *FontSize) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FontSize(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("fontSize: %w", err)
	}
	v, err := ParseFontSize(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFontSize parses "24", "24px" or "24.5 px".
func ParseFontSize(s string) (FontSize, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSpace(strings.TrimSuffix(s, "px"))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("fontSize %q: %w", s, err)
	}
	return FontSize(n), nil
}

// PlaceholderNames lists placeholder names in template order.
func (t Template) PlaceholderNames() []string {
	names := make([]string, 0, len(t.Placeholders))
	for _, p := range t.Placeholders {
		names = append(names, p.Name)
	}
	return names
}

// HasQR reports whether rendering needs a certificate identifier.
func (t Template) HasQR() bool { return len(t.QRPlaceholders) > 0 }

// Validate checks the structural requirements for rendering.
func (t Template) Validate() error {
	if strings.TrimSpace(t.ImageURL) == "" {
		return errors.New("template image url is required")
	}
	seen := make(map[string]struct{}, len(t.Placeholders))
	for i, p := range t.Placeholders {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return fmt.Errorf("placeholder %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate placeholder %q", p.Name)
		}
		seen[name] = struct{}{}
	}
	for i, s := range t.Signatures {
		if s.Style.Width <= 0 || s.Style.Height <= 0 {
			return fmt.Errorf("signature %d has no size", i)
		}
	}
	for i, q := range t.QRPlaceholders {
		if q.Style.Width <= 0 || q.Style.Height <= 0 {
			return fmt.Errorf("qr placeholder %d has no size", i)
		}
	}
	return nil
}

// Repository abstracts persistence for templates.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Template, error)
}
