package framemarble

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strconv"
	"sync"
)

// Image sizes. The embed image uses the 3:2 aspect ratio hosts expect.
const (
	iconSize    = 200
	splashSize  = 200
	ogImageW    = 1200
	ogImageH    = 800
	assetMaxAge = 3600
)

var (
	gradientTop    = color.RGBA{R: 0x8b, G: 0x5c, B: 0xf6, A: 0xff}
	gradientBottom = color.RGBA{R: 0xec, G: 0x48, B: 0x99, A: 0xff}
	coinColor      = color.RGBA{R: 0x27, G: 0x75, B: 0xca, A: 0xff}
)

type pngAsset struct {
	once   sync.Once
	render func() image.Image
	data   []byte
	err    error
}

func (a *pngAsset) bytes() ([]byte, error) {
	a.once.Do(func() {
		var buf bytes.Buffer
		if err := png.Encode(&buf, a.render()); err != nil {
			a.err = fmt.Errorf("encode png: %w", err)
			return
		}
		a.data = buf.Bytes()
	})
	return a.data, a.err
}

func (a *pngAsset) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	data, err := a.bytes()
	if err != nil {
		http.Error(w, "image unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(assetMaxAge))
	_, _ = w.Write(data)
}

var (
	iconAsset    = &pngAsset{render: func() image.Image { return renderBadge(iconSize, iconSize) }}
	splashAsset  = &pngAsset{render: func() image.Image { return renderBadge(splashSize, splashSize) }}
	ogImageAsset = &pngAsset{render: func() image.Image { return renderBadge(ogImageW, ogImageH) }}
)

// renderBadge draws a vertical gradient with a centered coin.
func renderBadge(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := lerp(gradientTop, gradientBottom, float64(y)/float64(h-1))
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	r := h / 4
	if w < h {
		r = w / 4
	}
	cx, cy := w/2, h/2
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, coinColor)
			}
		}
	}
	return img
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}
