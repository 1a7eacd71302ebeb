package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/nd3-capture-pipeline/internal/naming"
	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// Capture file names encode the recording command:
//
//	color: <unix>C<fps:2><codec:4><resolution>P        1700000000C05MJPG1080P.jpeg
//	depth: <unix>D<width:4><height:3-4><FOV>_<binning>  1700000000D0320288NFOV_2x2BINNED
var (
	colorPattern  = regexp.MustCompile(`^(\d+)C(\d{2})([A-Z0-9]{4})(\d{3,4}P)`)
	depthPattern  = regexp.MustCompile(`^(\d+)D(\d{4})(\d{3,4})(NFOV|WFOV)_?(2X2BINNED|UNBINNED)`)
	leadingDigits = regexp.MustCompile(`^\d+`)
)

// DecodeCaptureParameters decodes the capture parameters and the akallCommand
// from the color and depth file names. If either name does not match its
// pattern every parameter is null and the command is UNKNOWN.
func DecodeCaptureParameters(colorName, depthName string) (pipeline.CaptureParameters, string) {
	c := colorPattern.FindStringSubmatch(strings.ToUpper(colorName))
	d := depthPattern.FindStringSubmatch(strings.ToUpper(depthName))
	if c == nil || d == nil {
		return pipeline.CaptureParameters{}, pipeline.UnknownCommand
	}

	fps, err := strconv.Atoi(c[2])
	if err != nil {
		return pipeline.CaptureParameters{}, pipeline.UnknownCommand
	}
	codec, colorRes := c[3], c[4]

	modeName := d[4] + "_" + d[5]
	mode, ok := naming.LookupMode(modeName)
	if !ok {
		return pipeline.CaptureParameters{}, pipeline.UnknownCommand
	}
	resolution := trimZeros(d[2]) + "x" + trimZeros(d[3])

	params := pipeline.CaptureParameters{
		FrameRate:       &fps,
		Compression:     &codec,
		ColorResolution: &colorRes,
		DepthMode:       &modeName,
		DepthResolution: &resolution,
		FieldOfView:     optional(mode.FieldOfView),
		WorkingRange:    optional(mode.WorkingRange),
		ExposureTime:    optional(mode.ExposureTime),
	}
	return params, fmt.Sprintf("F%02d-%s-%s-%s", fps, codec, colorRes, modeName)
}

// ParseTimestamp reads the leading digit run of name as unix seconds. Both
// fields are null when there is none or it does not fit.
func ParseTimestamp(name string) pipeline.Timestamp {
	digits := leadingDigits.FindString(name)
	if digits == "" {
		return pipeline.Timestamp{}
	}
	secs, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return pipeline.Timestamp{}
	}
	t := time.Unix(secs, 0).UTC()
	if t.Year() > 9999 {
		return pipeline.Timestamp{}
	}

	unix := strconv.FormatInt(secs, 10)
	human := t.Format(time.RFC3339)
	return pipeline.Timestamp{Unix: &unix, HumanReadable: &human}
}

func trimZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
