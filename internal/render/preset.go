package render

import "time"

// Output formats supported by presets.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatPDF  = "pdf"
)

// Preset is a named render configuration profile.
type Preset struct {
	Name      string        `yaml:"-" json:"name"`
	Format    string        `yaml:"format" json:"format"`
	Width     int64         `yaml:"width" json:"width"`
	Height    int64         `yaml:"height" json:"height"`
	Scale     float64       `yaml:"scale" json:"scale"`
	Quality   int           `yaml:"quality" json:"quality"`
	Wait      time.Duration `yaml:"wait" json:"wait"`
	FullPage  *bool         `yaml:"full_page" json:"full_page"`
	Landscape bool          `yaml:"landscape" json:"landscape"`
}

// WithDefaults fills zero fields with the documented defaults.
func (p Preset) WithDefaults() Preset {
	if p.Format == "" {
		p.Format = FormatPNG
	}
	if p.Width <= 0 {
		p.Width = 1280
	}
	if p.Height <= 0 {
		p.Height = 720
	}
	if p.Scale <= 0 {
		p.Scale = 1
	}
	if p.Quality <= 0 || p.Quality > 100 {
		p.Quality = 90
	}
	if p.Wait <= 0 {
		p.Wait = 500 * time.Millisecond
	}
	if p.FullPage == nil {
		full := true
		p.FullPage = &full
	}
	return p
}

// ContentType returns the MIME type of the preset's output.
func (p Preset) ContentType() string {
	switch p.Format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}
