// Package quality scores screenshots to catch blank, tiny, or failed renders.
package quality

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

const (
	defaultMinScore       = 60
	defaultBlankThreshold = 10
	maxBrightness         = 250
	minFileSize           = 5000
	minDimension          = 100
	sampleSide            = 50
	dominantColorRatio    = 0.95
)

// Opener reads stored artifacts.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// Config tunes scoring.
type Config struct {
	// MinScore is the pass mark on the 0..100 scale. Nil means 60; zero
	// passes every decodable image.
	MinScore *float64
	// BlankThreshold is the mean brightness below which an image counts as dark.
	BlankThreshold float64
	Logger         *zap.Logger
}

// Checker implements capture.QualityChecker.
type Checker struct {
	store    Opener
	cfg      Config
	minScore float64
	logger   *zap.Logger
}

// New builds a Checker reading artifacts through store.
func New(store Opener, cfg Config) *Checker {
	minScore := float64(defaultMinScore)
	if cfg.MinScore != nil {
		minScore = *cfg.MinScore
	}
	if cfg.BlankThreshold <= 0 {
		cfg.BlankThreshold = defaultBlankThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{store: store, cfg: cfg, minScore: minScore, logger: logger.Named("quality")}
}

// Check scores the artifact at path. Undecodable images fail with score 0;
// only read failures are returned as errors.
func (c *Checker) Check(ctx context.Context, path string) (capture.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return capture.Verdict{}, fmt.Errorf("quality check: %w", err)
	}
	rc, err := c.store.Open(path)
	if err != nil {
		return capture.Verdict{}, fmt.Errorf("open artifact: %w", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return capture.Verdict{}, fmt.Errorf("read artifact: %w", err)
	}
	v := c.score(data)
	c.logger.Debug("artifact scored", zap.String("path", path), zap.Float64("score", v.Score), zap.Strings("issues", v.Issues))
	return v, nil
}

func (c *Checker) score(data []byte) capture.Verdict {
	score := 100.0
	issues := []string{}

	if len(data) < minFileSize {
		issues = append(issues, fmt.Sprintf("file too small (%d bytes)", len(data)))
		score -= 30
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return capture.Verdict{Passed: false, Score: 0, Issues: append(issues, "image could not be decoded")}
	}

	b := img.Bounds()
	if b.Dx() < minDimension || b.Dy() < minDimension {
		issues = append(issues, fmt.Sprintf("image too small (%dx%d)", b.Dx(), b.Dy()))
		score -= 30
	}

	brightness := meanBrightness(img)
	if brightness < c.cfg.BlankThreshold {
		issues = append(issues, fmt.Sprintf("image too dark (brightness: %.1f)", brightness))
		score -= 25
	}
	if brightness > maxBrightness {
		issues = append(issues, fmt.Sprintf("image too bright or blank (brightness: %.1f)", brightness))
		score -= 40
	}

	if mostlySingleColor(img) {
		issues = append(issues, "image appears to be blank or a single color")
		score -= 35
	}

	score = max(0, min(100, score))
	return capture.Verdict{Passed: score >= c.minScore, Score: score, Issues: issues}
}

// meanBrightness averages ITU-R 601 luma over every pixel.
func meanBrightness(img image.Image) float64 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
		}
	}
	return sum / float64(n)
}

func mostlySingleColor(img image.Image) bool {
	small := image.NewRGBA(image.Rect(0, 0, sampleSide, sampleSide))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	counts := make(map[color.RGBA]int)
	top := 0
	for y := range sampleSide {
		for x := range sampleSide {
			c := small.RGBAAt(x, y)
			counts[c]++
			top = max(top, counts[c])
		}
	}
	return float64(top)/float64(sampleSide*sampleSide) > dominantColorRatio
}
