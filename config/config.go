// Package config loads forwarding destinations from an INI file. Each
// section describes one destination:
//
//	calling_aet = FORWARDER
//
//	[archive]
//	type = dicom
//	aet  = ARCHIVE
//	host = pacs.example.org
//	port = 11112
//
//	[research]
//	type = web
//	url  = https://research.example.org/dicomweb/studies
//	mask = 0,0,320,64; 0,400,320,480
package config

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// DestinationType selects the transport of one destination.
type DestinationType string

const (
	TypeDicom DestinationType = "dicom"
	TypeWeb   DestinationType = "web"
)

// Destination is one configured forwarding target.
type Destination struct {
	Name string
	Type DestinationType

	// DICOM destinations.
	AET  string
	Host string
	Port int

	// Web destinations.
	URL string

	// Mask lists regions to blank before the instance leaves, in pixel
	// coordinates.
	Mask []image.Rectangle
}

// Addr returns the host:port dial address of a DICOM destination.
func (d *Destination) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Config is the full forwarder configuration.
type Config struct {
	// CallingAET is the AE title this forwarder presents to every peer.
	CallingAET string

	Destinations []Destination
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return parse(f)
}

// LoadBytes parses configuration from memory.
func LoadBytes(data []byte) (*Config, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, err
	}
	return parse(f)
}

func parse(f *ini.File) (*Config, error) {
	cfg := &Config{
		CallingAET: f.Section(ini.DefaultSection).Key("calling_aet").MustString("FORWARDER"),
	}
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		d := Destination{
			Name: sec.Name(),
			Type: DestinationType(sec.Key("type").MustString(string(TypeDicom))),
		}
		switch d.Type {
		case TypeDicom:
			d.AET = sec.Key("aet").String()
			d.Host = sec.Key("host").String()
			d.Port = sec.Key("port").MustInt(104)
			if d.AET == "" || d.Host == "" {
				return nil, fmt.Errorf("config: destination %q needs aet and host", d.Name)
			}
		case TypeWeb:
			d.URL = sec.Key("url").String()
			if d.URL == "" {
				return nil, fmt.Errorf("config: destination %q needs url", d.Name)
			}
		default:
			return nil, fmt.Errorf("config: destination %q has unknown type %q", d.Name, d.Type)
		}
		if mask := sec.Key("mask").String(); mask != "" {
			rects, err := ParseRects(mask)
			if err != nil {
				return nil, fmt.Errorf("config: destination %q: %v", d.Name, err)
			}
			d.Mask = rects
		}
		cfg.Destinations = append(cfg.Destinations, d)
	}
	if len(cfg.Destinations) == 0 {
		return nil, fmt.Errorf("config: no destinations defined")
	}
	return cfg, nil
}

// ParseRects parses a semicolon-separated list of "x0,y0,x1,y1" rectangles.
func ParseRects(s string) ([]image.Rectangle, error) {
	var out []image.Rectangle
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("bad mask rectangle %q, want x0,y0,x1,y1", part)
		}
		var v [4]int
		for i, field := range fields {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("bad mask rectangle %q: %v", part, err)
			}
			v[i] = n
		}
		out = append(out, image.Rect(v[0], v[1], v[2], v[3]))
	}
	return out, nil
}
