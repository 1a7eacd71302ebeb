// Package metadata derives the capture record of an output directory from
// the names of the files in it. Nothing here opens a capture file.
package metadata

import (
	"sort"

	"github.com/tendant/nd3-capture-pipeline/internal/naming"
	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// FileSet is a directory listing partitioned by role
type FileSet struct {
	Original        string
	Channels        map[string]string
	RawConverted    []string
	Depth           string
	NIR             string
	Reconstructions []pipeline.Reconstruction
	Thumbnail       string
	// RawDepth is the unconverted depth frame, used to decode capture parameters
	// when no converted depth image exists
	RawDepth string
}

// Classify partitions names. Input is sorted first; where a role holds a
// single file the first match wins.
func Classify(names []string) FileSet {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	fs := FileSet{
		Channels:        map[string]string{},
		RawConverted:    []string{},
		Reconstructions: []pipeline.Reconstruction{},
	}

	for _, name := range sorted {
		switch {
		case naming.IsColorImage(name):
			if ch, ok := naming.ChannelOf(name); ok {
				if _, seen := fs.Channels[ch.Name]; !seen {
					fs.Channels[ch.Name] = name
				}
			} else if fs.Original == "" {
				fs.Original = name
			}

		case naming.IsNormalizedImage(name):
			fs.RawConverted = append(fs.RawConverted, name)
			if fs.Depth == "" && naming.IsDepth(name) {
				fs.Depth = name
			}
			if fs.NIR == "" && naming.IsInfrared(name) {
				fs.NIR = name
			}

		case naming.IsPointCloud(name):
			fs.Reconstructions = append(fs.Reconstructions, pipeline.Reconstruction{
				PLY:        name,
				ColorImage: naming.ColorImageFor(name),
			})

		case naming.IsThumbnail(name):
			if fs.Thumbnail == "" {
				fs.Thumbnail = name
			}

		case naming.IsRaw(name):
			if fs.RawDepth == "" && naming.IsDepth(name) {
				fs.RawDepth = name
			}
		}
	}

	return fs
}

// DepthName is the file whose name encodes the depth capture mode
func (fs FileSet) DepthName() string {
	if fs.Depth != "" {
		return fs.Depth
	}
	return fs.RawDepth
}

// Outputs converts the file set to its record form
func (fs FileSet) Outputs() pipeline.Outputs {
	return pipeline.Outputs{
		OriginalJPEG: optional(fs.Original),
		Channels: pipeline.Channels{
			Blue:  optional(fs.Channels[naming.Blue.Name]),
			Green: optional(fs.Channels[naming.Green.Name]),
			Red:   optional(fs.Channels[naming.Red.Name]),
		},
		Nd3Reconstruction: fs.Reconstructions,
		RawConverted:      fs.RawConverted,
		DepthImage:        optional(fs.Depth),
		NIRImage:          optional(fs.NIR),
		Thumbnail:         optional(fs.Thumbnail),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
