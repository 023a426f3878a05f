package phash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

var _ capture.Hasher = (*Hasher)(nil)

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// stripes draws horizontal bands; offset shifts them to produce a different page.
func stripes(w, h, band, offset int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		c := color.RGBA{R: 250, G: 250, B: 250, A: 255}
		if ((y+offset)/band)%2 == 0 {
			c = color.RGBA{R: 10, G: 20, B: 30, A: 255}
		}
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestIdenticalImagesAreSimilar(t *testing.T) {
	t.Parallel()

	h, err := New("", 0)
	require.NoError(t, err)
	data := encode(t, stripes(200, 150, 20, 0))

	a, err := h.Hash(data)
	require.NoError(t, err)
	b, err := h.Hash(append([]byte(nil), data...))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.True(t, h.Similar(a, b))
}

func TestDifferentImagesDiffer(t *testing.T) {
	t.Parallel()

	for _, algo := range []Algorithm{Perception, Average} {
		h, err := New(algo, 0)
		require.NoError(t, err)
		a, err := h.Hash(encode(t, stripes(200, 150, 30, 0)))
		require.NoError(t, err)
		b, err := h.Hash(encode(t, stripes(200, 150, 30, 30)))
		require.NoError(t, err)
		require.False(t, h.Similar(a, b), string(algo))
	}
}

func TestThreshold(t *testing.T) {
	t.Parallel()

	h, err := New(Perception, 2)
	require.NoError(t, err)
	require.True(t, h.Similar(0b0000, 0b0011))
	require.False(t, h.Similar(0b0000, 0b0111))
	require.Equal(t, 64, Distance(0, ^uint64(0)))
}

func TestErrors(t *testing.T) {
	t.Parallel()

	_, err := New("md5", 0)
	require.Error(t, err)
	_, err = New(Perception, 65)
	require.Error(t, err)

	h, err := New(Perception, 0)
	require.NoError(t, err)
	_, err = h.Hash([]byte("not a png"))
	require.Error(t, err)
}
