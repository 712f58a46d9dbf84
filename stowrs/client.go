// Package stowrs implements a minimal STOW-RS (PS3.18 10.5) client: each
// instance is POSTed as a single application/dicom part of a
// multipart/related request.
package stowrs

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/yasushi-saito/go-dicom"
	"github.com/yasushi-saito/go-dicom/dicomio"
	"v.io/x/lib/vlog"
)

// Payload is a re-readable part-10 file body. Size returns -1 when the
// byte count is unknown up front. NewInputStream must return a fresh
// reader on every call so a request can be retried.
type Payload interface {
	Size() int64
	NewInputStream() (io.ReadCloser, error)
}

// FileMetaInformation identifies the instance a bare data set stream
// belongs to; the client synthesizes the part-10 preamble and meta group
// from it.
type FileMetaInformation struct {
	SOPClassUID       string
	SOPInstanceUID    string
	TransferSyntaxUID string
}

// Client posts instances to one STOW-RS endpoint.
type Client struct {
	url string
	hc  *http.Client
	// Headers are added to every request, e.g. Authorization.
	Headers http.Header
}

// NewClient builds a client for a studies endpoint URL, e.g.
// "https://pacs.example.org/dicomweb/studies".
func NewClient(url string) *Client {
	return &Client{
		url: url,
		hc:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// URL returns the endpoint this client posts to.
func (c *Client) URL() string { return c.url }

// UploadDicom posts a bare data set stream, framing it with a synthesized
// file meta group first.
func (c *Client) UploadDicom(data io.Reader, fmi FileMetaInformation) error {
	header, err := encodeFileMeta(fmi)
	if err != nil {
		return err
	}
	return c.post(io.MultiReader(bytes.NewReader(header), data), -1)
}

// UploadDataSet serializes an in-memory data set under tsuid and posts it.
func (c *Client) UploadDataSet(ds *dicom.DataSet, tsuid string) error {
	body, err := encodePart10(ds, tsuid)
	if err != nil {
		return err
	}
	return c.post(bytes.NewReader(body), int64(len(body)))
}

// UploadPayload posts a prepared payload.
func (c *Client) UploadPayload(p Payload) error {
	r, err := p.NewInputStream()
	if err != nil {
		return err
	}
	defer r.Close()
	return c.post(r, p.Size())
}

// post wraps one part-10 body as the sole part of a multipart/related
// request. A 200 or 202 from the server is success; STOW-RS uses 202 when
// it stored the instance with warnings.
func (c *Client) post(body io.Reader, size int64) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/dicom"},
	})
	if err != nil {
		return err
	}
	n, err := io.Copy(part, body)
	if err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type",
		fmt.Sprintf(`multipart/related; type="application/dicom"; boundary=%s`, mw.Boundary()))
	req.Header.Set("Accept", "application/dicom+xml")
	for k, vs := range c.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("stowrs: POST %s: %s: %s", c.url, resp.Status, snippet)
	}
	vlog.VI(1).Infof("STOW-RS POST %s: %s (%d bytes)", c.url, resp.Status, n)
	return nil
}

// encodeFileMeta builds the 128-byte preamble, the DICM magic and the
// group-2 elements for one instance.
func encodeFileMeta(fmi FileMetaInformation) ([]byte, error) {
	e := dicom.NewEncoder(nil, dicom.UnknownVR)
	dicom.WriteFileHeader(e, fmi.TransferSyntaxUID, fmi.SOPClassUID, fmi.SOPInstanceUID)
	return e.Finish()
}

// encodePart10 serializes a parsed data set as a complete part-10 file.
func encodePart10(ds *dicom.DataSet, tsuid string) ([]byte, error) {
	cuidElem, err := ds.FindElementByTag(dicom.TagSOPClassUID)
	if err != nil {
		return nil, fmt.Errorf("stowrs: data set carries no SOP class UID")
	}
	cuid, err := cuidElem.GetString()
	if err != nil {
		return nil, err
	}
	iuidElem, err := ds.FindElementByTag(dicom.TagSOPInstanceUID)
	if err != nil {
		return nil, fmt.Errorf("stowrs: data set carries no SOP instance UID")
	}
	iuid, err := iuidElem.GetString()
	if err != nil {
		return nil, err
	}
	e := dicom.NewEncoder(nil, dicom.UnknownVR)
	dicom.WriteFileHeader(e, tsuid, cuid, iuid)
	body := dicomio.NewBytesEncoderWithTransferSyntax(tsuid)
	for _, elem := range ds.Elements {
		if elem.Tag.Group == dicom.TagMetadataGroup {
			continue
		}
		dicom.WriteElement(body, elem)
	}
	if err := body.Error(); err != nil {
		return nil, err
	}
	e.WriteBytes(body.Bytes())
	return e.Finish()
}
