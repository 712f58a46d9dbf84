// Command dicomfwd reads DICOM files and forwards them to the destinations
// listed in a configuration file, over classical C-STORE associations or
// STOW-RS.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nicolasvandooren/weasis-dicom-tools/config"
	"github.com/nicolasvandooren/weasis-dicom-tools/forward"
	"github.com/nicolasvandooren/weasis-dicom-tools/scu"
	"github.com/nicolasvandooren/weasis-dicom-tools/stowrs"
	"github.com/yasushi-saito/go-dicom"
	"v.io/x/lib/vlog"
)

var (
	configFlag = flag.String("config", "", "path to the destination configuration file")
	idleFlag   = flag.Duration("idle-timeout", 15*time.Second, "release outbound associations after this idle period")
)

func main() {
	flag.Parse()
	vlog.ConfigureLibraryLoggerFromFlags()

	if *configFlag == "" || flag.NArg() == 0 {
		vlog.Fatal("Usage: dicomfwd -config <file> <dicom file>...")
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		vlog.Fatalf("Loading %s: %v", *configFlag, err)
	}
	dests := buildDestinations(cfg, *idleFlag)
	source := &forward.DicomNode{AET: cfg.CallingAET}

	exit := 0
	for _, path := range flag.Args() {
		if err := forwardFile(source, dests, path); err != nil {
			vlog.Errorf("%s: %v", path, err)
			exit = 1
		}
	}
	for _, d := range dests {
		if dd, ok := d.(*forward.DicomDestination); ok {
			dd.SCU.Close(false)
		}
	}
	os.Exit(exit)
}

func buildDestinations(cfg *config.Config, idle time.Duration) []forward.ForwardDestination {
	var dests []forward.ForwardDestination
	for _, dc := range cfg.Destinations {
		opts := forward.DestinationOptions{Progress: logSink{}}
		if len(dc.Mask) > 0 {
			opts.Mask = forward.NewMaskArea(dc.Mask...)
		}
		switch dc.Type {
		case config.TypeDicom:
			addr := dc.Addr()
			params := scu.DialParams{
				CalledAET:      dc.AET,
				CallingAET:     cfg.CallingAET,
				ConnectTimeout: 10 * time.Second,
			}
			s := scu.NewStoreSCU(fmt.Sprintf("%s@%s", dc.AET, addr), func() (scu.Wire, error) {
				return scu.Dial(addr, params)
			}, idle)
			dests = append(dests, forward.NewDicomDestination(s, opts))
		case config.TypeWeb:
			dests = append(dests, forward.NewWebDestination(stowrs.NewClient(dc.URL), opts))
		}
	}
	return dests
}

func forwardFile(source *forward.DicomNode, dests []forward.ForwardDestination, path string) error {
	ds, err := dicom.ReadDataSetFromFile(path, dicom.ReadOptions{})
	if err != nil {
		return err
	}
	var iuid, cuid, tsuid string
	if elem, err := ds.FindElementByTag(dicom.TagSOPInstanceUID); err == nil {
		iuid, _ = elem.GetString()
	}
	if elem, err := ds.FindElementByTag(dicom.TagSOPClassUID); err == nil {
		cuid, _ = elem.GetString()
	}
	if elem, err := ds.FindElementByTag(dicom.TagTransferSyntaxUID); err == nil {
		tsuid, _ = elem.GetString()
	}
	if iuid == "" || cuid == "" || tsuid == "" {
		return fmt.Errorf("missing SOP instance, SOP class or transfer syntax UID")
	}
	var body bytes.Buffer
	if err := forward.EncodeDataSet(&body, ds, tsuid); err != nil {
		return err
	}
	p := forward.NewParams(iuid, cuid, tsuid, 1, &body, nil)
	return forward.StoreMultipleDestination(source, dests, p)
}

type logSink struct{}

func (logSink) Notify(iuid, cuid string, dimseStatus uint16, status forward.ProgressStatus, remaining int) {
	vlog.Infof("%s: %s (status 0x%04x)", iuid, status, dimseStatus)
}
