package devicesfile

import (
	"errors"
	"testing"

	"github.com/lvmteam/lvmcore/internal/deviceid"
)

type fakeIDReader struct {
	sysAttrs map[string]string
	major    int
	hasMajor bool
}

func (f *fakeIDReader) SysAttr(devname, suffix string) (string, bool) {
	v, ok := f.sysAttrs[suffix]
	return v, ok
}
func (f *fakeIDReader) VPD83(devname string) ([]byte, bool)          { return nil, false }
func (f *fakeIDReader) NVMeDescriptors(devname string) ([]byte, bool) { return nil, false }
func (f *fakeIDReader) Major(devname string) (int, bool)             { return f.major, f.hasMajor }

func TestImportPVAddsEntryWithPreferredID(t *testing.T) {
	f := &File{Version: Version{Major: 1, Minor: 1}}
	idr := &fakeIDReader{sysAttrs: map[string]string{"wwid": "naa.deadbeef"}}

	if err := ImportPV(f, "/dev/sda1", "pv1", idr, deviceid.MajorNumbers{}); err != nil {
		t.Fatalf("ImportPV: %v", err)
	}
	if len(f.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(f.Entries))
	}
	e := f.Entries[0]
	if e.PVID != "pv1" || e.DevName != "/dev/sda1" || e.IDType != "sys_wwid" || e.IDName != "naa.deadbeef" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestImportPVRejectsDuplicatePVID(t *testing.T) {
	f := &File{Entries: []UseEntry{{PVID: "pv1", IDType: "devname", DevName: "/dev/sda1"}}}
	err := ImportPV(f, "/dev/sdb1", "pv1", &fakeIDReader{}, deviceid.MajorNumbers{})
	if !errors.Is(err, ErrAlreadyImported) {
		t.Fatalf("expected ErrAlreadyImported, got %v", err)
	}
}
