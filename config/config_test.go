package config

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
calling_aet = FWD

[archive]
type = dicom
aet  = ARCHIVE
host = pacs.example.org
port = 11112

[research]
type = web
url  = https://research.example.org/dicomweb/studies
mask = 0,0,320,64; 0,400,320,480
`

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "FWD", cfg.CallingAET)
	require.Len(t, cfg.Destinations, 2)

	archive := cfg.Destinations[0]
	assert.Equal(t, "archive", archive.Name)
	assert.Equal(t, TypeDicom, archive.Type)
	assert.Equal(t, "ARCHIVE", archive.AET)
	assert.Equal(t, "pacs.example.org:11112", archive.Addr())

	research := cfg.Destinations[1]
	assert.Equal(t, TypeWeb, research.Type)
	assert.Equal(t, "https://research.example.org/dicomweb/studies", research.URL)
	require.Len(t, research.Mask, 2)
	assert.Equal(t, image.Rect(0, 0, 320, 64), research.Mask[0])
	assert.Equal(t, image.Rect(0, 400, 320, 480), research.Mask[1])
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte("[a]\naet = A\nhost = h\n"))
	require.NoError(t, err)
	assert.Equal(t, "FORWARDER", cfg.CallingAET)
	require.Len(t, cfg.Destinations, 1)
	assert.Equal(t, TypeDicom, cfg.Destinations[0].Type)
	assert.Equal(t, 104, cfg.Destinations[0].Port)
}

func TestLoadValidation(t *testing.T) {
	_, err := LoadBytes([]byte("[a]\ntype = dicom\nhost = h\n"))
	assert.Error(t, err, "missing aet")

	_, err = LoadBytes([]byte("[a]\ntype = web\n"))
	assert.Error(t, err, "missing url")

	_, err = LoadBytes([]byte("[a]\ntype = carrier-pigeon\n"))
	assert.Error(t, err, "unknown type")

	_, err = LoadBytes([]byte("calling_aet = X\n"))
	assert.Error(t, err, "no destinations")
}

func TestParseRects(t *testing.T) {
	rects, err := ParseRects("1,2,3,4")
	require.NoError(t, err)
	assert.Equal(t, []image.Rectangle{image.Rect(1, 2, 3, 4)}, rects)

	_, err = ParseRects("1,2,3")
	assert.Error(t, err)
	_, err = ParseRects("a,b,c,d")
	assert.Error(t, err)
}
