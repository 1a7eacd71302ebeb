// Package naming holds the file naming conventions that link capture files,
// the artifacts derived from them and the metadata that describes them.
// Downstream consumers depend on these exact names.
package naming

import (
	"path/filepath"
	"regexp"
	"strings"
)

// File extensions and suffixes of derived artifacts
const (
	ColorExt        = ".jpeg"
	NormalizedExt   = ".png"
	PointCloudExt   = ".ply"
	ThumbnailSuffix = ".thumb.jpg"
	MetaFileName    = "meta.json"
)

// Channel is one color component produced by channel splitting
type Channel struct {
	Name     string
	Selector string
	Prefix   string
}

// Channel values, in the order the splitter produces them
var (
	Blue  = Channel{Name: "blue", Selector: "B", Prefix: "B_"}
	Green = Channel{Name: "green", Selector: "G", Prefix: "G_"}
	Red   = Channel{Name: "red", Selector: "R", Prefix: "R_"}

	Channels = []Channel{Blue, Green, Red}
)

var (
	depthMarker    = regexp.MustCompile(`^\d+D`)
	infraredMarker = regexp.MustCompile(`^\d+IR?\d`)
)

// IsColorImage reports whether name is a color image (.jpeg, any case)
func IsColorImage(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ColorExt)
}

// ChannelOf returns the channel a color image was split into, if any
func ChannelOf(name string) (Channel, bool) {
	if !IsColorImage(name) {
		return Channel{}, false
	}
	for _, ch := range Channels {
		if strings.HasPrefix(name, ch.Prefix) {
			return ch, true
		}
	}
	return Channel{}, false
}

// IsOriginalColorImage reports whether name is a color image without a channel prefix
func IsOriginalColorImage(name string) bool {
	if !IsColorImage(name) {
		return false
	}
	_, isChannel := ChannelOf(name)
	return !isChannel
}

// ChannelImageName is the file name the splitter writes for ch
func ChannelImageName(original string, ch Channel) string {
	return ch.Prefix + TrimExt(original) + ColorExt
}

// IsRaw reports whether name is a raw sensor file (no extension at all)
func IsRaw(name string) bool {
	return name != "" && !strings.Contains(name, ".")
}

// IsDepth reports whether name carries the depth marker (timestamp then "D")
func IsDepth(name string) bool {
	return depthMarker.MatchString(name)
}

// IsInfrared reports whether name carries the infrared marker
func IsInfrared(name string) bool {
	upper := strings.ToUpper(name)
	return infraredMarker.MatchString(upper) || strings.Contains(upper, "NIR") || strings.Contains(upper, "_IR")
}

// IsNormalizedImage reports whether name is a raw conversion output
func IsNormalizedImage(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), NormalizedExt) && !IsThumbnail(name)
}

// IsPointCloud reports whether name is a reconstruction output
func IsPointCloud(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), PointCloudExt)
}

// IsThumbnail reports whether name is a preview thumbnail
func IsThumbnail(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ThumbnailSuffix)
}

// ConvertedName is the output name of a raw conversion
func ConvertedName(raw string) string {
	return raw + NormalizedExt
}

// PointCloudName is the reconstruction output name for a color image
func PointCloudName(colorImage string) string {
	return ReplaceExt(colorImage, PointCloudExt)
}

// ColorImageFor is the color image a point cloud was reconstructed from
func ColorImageFor(pointCloud string) string {
	return ReplaceExt(pointCloud, ColorExt)
}

// ThumbnailName is the preview thumbnail name for a color image
func ThumbnailName(colorImage string) string {
	return TrimExt(colorImage) + ThumbnailSuffix
}

// ReplaceExt swaps the last extension of name for ext
func ReplaceExt(name, ext string) string {
	return TrimExt(name) + ext
}

// TrimExt removes the last extension of name
func TrimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
