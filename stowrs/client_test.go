package stowrs

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yasushi-saito/go-dicom"
)

type recorder struct {
	mu      sync.Mutex
	parts   [][]byte
	accepts []string
	status  int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/related" {
		http.Error(w, "bad content type", http.StatusBadRequest)
		return
	}
	if params["type"] != "application/dicom" {
		http.Error(w, "bad part type", http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(req.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(part)
		r.mu.Lock()
		r.parts = append(r.parts, body)
		r.accepts = append(r.accepts, part.Header.Get("Content-Type"))
		r.mu.Unlock()
	}
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func testDataSet() *dicom.DataSet {
	return &dicom.DataSet{Elements: []*dicom.Element{
		dicom.MustNewElement(dicom.TagSOPClassUID, "1.2.840.10008.5.1.4.1.1.7"),
		dicom.MustNewElement(dicom.TagSOPInstanceUID, "1.2.3.4"),
		dicom.MustNewElement(dicom.TagPatientName, "DOE^JANE"),
	}}
}

func TestUploadDataSet(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	c := NewClient(server.URL)
	require.NoError(t, c.UploadDataSet(testDataSet(), "1.2.840.10008.1.2.1"))

	require.Len(t, rec.parts, 1)
	body := rec.parts[0]
	require.Greater(t, len(body), 132)
	assert.Equal(t, "DICM", string(body[128:132]))
	assert.Equal(t, "application/dicom", rec.accepts[0])
}

func TestUploadDicomStream(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	c := NewClient(server.URL)
	fmi := FileMetaInformation{
		SOPClassUID:       "1.2.840.10008.5.1.4.1.1.7",
		SOPInstanceUID:    "1.2.3.4",
		TransferSyntaxUID: "1.2.840.10008.1.2.1",
	}
	err := c.UploadDicom(bytes.NewReader([]byte{0x08, 0x00, 0x00, 0x00}), fmi)
	require.NoError(t, err)

	require.Len(t, rec.parts, 1)
	assert.Equal(t, "DICM", string(rec.parts[0][128:132]))
	// The bare data set bytes follow the synthesized meta group.
	assert.True(t, bytes.HasSuffix(rec.parts[0], []byte{0x08, 0x00, 0x00, 0x00}))
}

type memPayload struct {
	body  []byte
	reads int
}

func (p *memPayload) Size() int64 { return -1 }

func (p *memPayload) NewInputStream() (io.ReadCloser, error) {
	p.reads++
	return io.NopCloser(bytes.NewReader(p.body)), nil
}

func TestUploadPayload(t *testing.T) {
	rec := &recorder{}
	server := httptest.NewServer(rec)
	defer server.Close()

	p := &memPayload{body: []byte("payload-bytes")}
	c := NewClient(server.URL)
	require.NoError(t, c.UploadPayload(p))
	assert.Equal(t, 1, p.reads)
	require.Len(t, rec.parts, 1)
	assert.Equal(t, "payload-bytes", string(rec.parts[0]))
}

func TestUploadAccepted202(t *testing.T) {
	rec := &recorder{status: http.StatusAccepted}
	server := httptest.NewServer(rec)
	defer server.Close()

	c := NewClient(server.URL)
	assert.NoError(t, c.UploadDataSet(testDataSet(), "1.2.840.10008.1.2.1"))
}

func TestUploadServerError(t *testing.T) {
	rec := &recorder{status: http.StatusConflict}
	server := httptest.NewServer(rec)
	defer server.Close()

	c := NewClient(server.URL)
	err := c.UploadDataSet(testDataSet(), "1.2.840.10008.1.2.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestUploadDataSetMissingUIDs(t *testing.T) {
	ds := &dicom.DataSet{Elements: []*dicom.Element{
		dicom.MustNewElement(dicom.TagPatientName, "DOE^JANE"),
	}}
	c := NewClient("http://localhost:1")
	assert.Error(t, c.UploadDataSet(ds, "1.2.840.10008.1.2.1"))
}

func TestClientHeaders(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL)
	c.Headers = http.Header{"Authorization": {"Bearer token"}}
	require.NoError(t, c.UploadDataSet(testDataSet(), "1.2.840.10008.1.2.1"))
	assert.Equal(t, "Bearer token", gotAuth)
}
