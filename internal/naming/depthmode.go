package naming

import "strings"

// DepthMode describes one depth sensor operating mode
type DepthMode struct {
	Name         string
	Keywords     []string
	Resolution   string
	FieldOfView  string
	WorkingRange string
	ExposureTime string
}

// DepthModes is the canonical depth-mode table. Keywords are matched
// against upper-cased file names in table order.
var DepthModes = []DepthMode{
	{
		Name:         "NFOV_2X2BINNED",
		Keywords:     []string{"NFOV_2X2BINNED", "NFOV2X2BINNED"},
		Resolution:   "320x288",
		FieldOfView:  "75x65",
		WorkingRange: "0.50-5.46 m",
		ExposureTime: "12.8 ms",
	},
	{
		Name:         "NFOV_UNBINNED",
		Keywords:     []string{"NFOV_UNBINNED"},
		Resolution:   "640x576",
		FieldOfView:  "75x65",
		WorkingRange: "0.50-3.86 m",
		ExposureTime: "12.8 ms",
	},
	{
		Name:         "WFOV_2X2BINNED",
		Keywords:     []string{"WFOV_2X2BINNED", "WFOV2X2BINNED"},
		Resolution:   "512x512",
		FieldOfView:  "120x120",
		WorkingRange: "0.25-2.88 m",
		ExposureTime: "12.8 ms",
	},
	{
		Name:         "WFOV_UNBINNED",
		Keywords:     []string{"WFOV_UNBINNED"},
		Resolution:   "1024x1024",
		FieldOfView:  "120x120",
		WorkingRange: "0.25-2.21 m",
		ExposureTime: "20.3 ms",
	},
}

// ModeForFile finds the depth mode whose keyword appears in name
func ModeForFile(name string) (DepthMode, bool) {
	upper := strings.ToUpper(name)
	for _, m := range DepthModes {
		for _, kw := range m.Keywords {
			if strings.Contains(upper, kw) {
				return m, true
			}
		}
	}
	return DepthMode{}, false
}

// LookupMode finds a depth mode by its canonical name
func LookupMode(name string) (DepthMode, bool) {
	for _, m := range DepthModes {
		if m.Name == name {
			return m, true
		}
	}
	return DepthMode{}, false
}

// ResolutionFor returns the WxH resolution of a raw file, or "" when the
// name carries no known depth-mode keyword
func ResolutionFor(name string) string {
	if m, ok := ModeForFile(name); ok {
		return m.Resolution
	}
	return ""
}
