package tools

import (
	"context"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/tendant/nd3-capture-pipeline/internal/naming"
)

// ChannelSplitter writes one color channel of src to dst as a grayscale image
type ChannelSplitter interface {
	Split(ctx context.Context, src string, ch naming.Channel, dst string) (Output, error)
}

// ImageMagickSplitter separates channels with ImageMagick convert
type ImageMagickSplitter struct {
	Tool   string
	Runner CommandRunner
}

// Split runs: convert <src> -colorspace RGB -channel <B|G|R> -separate -auto-level <dst>
func (s *ImageMagickSplitter) Split(ctx context.Context, src string, ch naming.Channel, dst string) (Output, error) {
	return s.Runner.Run(ctx, s.Tool, SplitArgs(src, ch, dst)...)
}

// SplitArgs are the ImageMagick arguments for one channel split
func SplitArgs(src string, ch naming.Channel, dst string) []string {
	return []string{src, "-colorspace", "RGB", "-channel", ch.Selector, "-separate", "-auto-level", dst}
}

// BuiltinSplitter separates channels in-process. Output matches the
// ImageMagick invocation: one channel as gray, stretched to the full range.
type BuiltinSplitter struct {
	// Quality is the JPEG quality of the written image
	Quality int
}

// Split decodes src, extracts ch, auto-levels it and encodes it to dst
func (s *BuiltinSplitter) Split(ctx context.Context, src string, ch naming.Channel, dst string) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	img, err := imaging.Open(src)
	if err != nil {
		return Output{}, err
	}

	gray := SeparateChannel(img, ch)

	quality := s.Quality
	if quality == 0 {
		quality = 95
	}
	if err := imaging.Save(gray, dst, imaging.JPEGQuality(quality)); err != nil {
		return Output{}, err
	}
	return Output{}, nil
}

// SeparateChannel returns ch of img as an auto-levelled gray image
func SeparateChannel(img image.Image, ch naming.Channel) *image.NRGBA {
	src := imaging.Clone(img)

	lo, hi := uint8(255), uint8(0)
	for i := 0; i+3 < len(src.Pix); i += 4 {
		v := pick(src.Pix[i:i+4], ch)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	return imaging.AdjustFunc(src, func(c color.NRGBA) color.NRGBA {
		v := level(pick([]uint8{c.R, c.G, c.B, c.A}, ch), lo, hi)
		return color.NRGBA{R: v, G: v, B: v, A: 255}
	})
}

func pick(px []uint8, ch naming.Channel) uint8 {
	switch ch.Selector {
	case naming.Red.Selector:
		return px[0]
	case naming.Green.Selector:
		return px[1]
	default:
		return px[2]
	}
}

// level stretches v from [lo, hi] to [0, 255]
func level(v, lo, hi uint8) uint8 {
	if hi <= lo {
		return v
	}
	return uint8((int(v) - int(lo)) * 255 / (int(hi) - int(lo)))
}
