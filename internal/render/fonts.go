package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/sync/singleflight"

	tdomain "github.com/corvusHold/certify/internal/templates/domain"
)

const defaultFontSize = 16

type builtinKey struct {
	mono   bool
	weight string // regular | medium | bold
}

// FontSource turns a placeholder style into a font face. Families without an
// uploaded font map onto the bundled Go fonts; custom fonts are downloaded
// once per URL and cached.
type FontSource struct {
	fetch   Fetcher
	log     zerolog.Logger
	builtin map[builtinKey]*opentype.Font

	mu     sync.RWMutex
	custom map[string]*opentype.Font
	group  singleflight.Group
}

// NewFontSource parses the bundled fonts.
func NewFontSource(fetch Fetcher, log zerolog.Logger) (*FontSource, error) {
	src := map[builtinKey][]byte{
		{mono: false, weight: "regular"}: goregular.TTF,
		{mono: false, weight: "medium"}:  gomedium.TTF,
		{mono: false, weight: "bold"}:    gobold.TTF,
		{mono: true, weight: "regular"}:  gomono.TTF,
		{mono: true, weight: "medium"}:   gomono.TTF,
		{mono: true, weight: "bold"}:     gomonobold.TTF,
	}
	fs := &FontSource{
		fetch:   fetch,
		log:     log,
		builtin: make(map[builtinKey]*opentype.Font, len(src)),
		custom:  make(map[string]*opentype.Font),
	}
	for k, ttf := range src {
		f, err := opentype.Parse(ttf)
		if err != nil {
			return nil, fmt.Errorf("parse bundled font: %w", err)
		}
		fs.builtin[k] = f
	}
	return fs, nil
}

// Face returns a new face for style. Faces are not safe for concurrent use,
// so callers get their own and must Close it.
func (s *FontSource) Face(ctx context.Context, style tdomain.TextStyle) (font.Face, error) {
	size := float64(style.FontSize)
	if size <= 0 {
		size = defaultFontSize
	}
	return opentype.NewFace(s.resolve(ctx, style), &opentype.FaceOptions{
		Size:    size,
		DPI:     72, // 1pt == 1px, sizes are template pixels
		Hinting: font.HintingFull,
	})
}

func (s *FontSource) resolve(ctx context.Context, style tdomain.TextStyle) *opentype.Font {
	if u := strings.TrimSpace(style.CustomFontURL); u != "" {
		f, err := s.customFont(ctx, u)
		if err == nil {
			return f
		}
		s.log.Warn().Err(err).Str("font_url", u).Msg("custom font unavailable; using bundled font")
	}
	family := strings.ToLower(style.FontFamily)
	key := builtinKey{
		mono:   strings.Contains(family, "mono") || strings.Contains(family, "courier"),
		weight: weightClass(style.FontWeight),
	}
	return s.builtin[key]
}

func (s *FontSource) customFont(ctx context.Context, url string) (*opentype.Font, error) {
	s.mu.RLock()
	f, ok := s.custom[url]
	s.mu.RUnlock()
	if ok {
		return f, nil
	}
	v, err, _ := s.group.Do(url, func() (any, error) {
		b, err := s.fetch.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		f, err := opentype.Parse(b)
		if err != nil {
			return nil, fmt.Errorf("parse font %s: %w", url, err)
		}
		s.mu.Lock()
		s.custom[url] = f
		s.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*opentype.Font), nil
}

// weightClass folds CSS font-weight values into the bundled weights.
func weightClass(w string) string {
	w = strings.ToLower(strings.TrimSpace(w))
	switch w {
	case "bold", "bolder":
		return "bold"
	case "medium", "semibold":
		return "medium"
	}
	if n, err := strconv.Atoi(w); err == nil {
		switch {
		case n >= 600:
			return "bold"
		case n >= 500:
			return "medium"
		}
	}
	return "regular"
}
