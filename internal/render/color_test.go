package render

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"":                   {A: 255},
		"#000":               {A: 255},
		"#ff8800":            {R: 255, G: 136, A: 255},
		"#FF880080":          {R: 255, G: 136, A: 128},
		"rgb(10, 20, 30)":    {R: 10, G: 20, B: 30, A: 255},
		"rgba(10,20,30,0.5)": {R: 10, G: 20, B: 30, A: 128},
		"Gold":               {R: 255, G: 215, A: 255},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseColor_Invalid(t *testing.T) {
	for _, in := range []string{"#12", "#zzzzzz", "hsl(1,2,3)", "rgb(1,2)"} {
		_, err := ParseColor(in)
		assert.Error(t, err, in)
	}
}
