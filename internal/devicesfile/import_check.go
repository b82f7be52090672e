package devicesfile

import (
	"fmt"

	"github.com/lvmteam/lvmcore/internal/deviceid"
)

// ErrAlreadyImported is returned by ImportPV when pvid already has an
// entry in f.
var ErrAlreadyImported = fmt.Errorf("devicesfile: PVID already present")

// ImportPV adds a new entry for pvid/devname to f, choosing its
// identifier the same way a freshly found device would (the preferred
// order deviceid.ReadPreferredID applies). This is the library side of
// vgimportdevices' "add a VG's PVs found outside the devices file"
// operation: the command layer resolves which PVs to import and passes
// each one here one at a time.
func ImportPV(f *File, devname, pvid string, idr deviceid.Reader, majors deviceid.MajorNumbers) error {
	for _, e := range f.Entries {
		if e.PVID == pvid {
			return ErrAlreadyImported
		}
	}

	id, _ := deviceid.ReadPreferredID(idr, devname, majors)
	f.Entries = append(f.Entries, UseEntry{
		IDType:  id.Type.String(),
		IDName:  id.Name,
		DevName: devname,
		PVID:    pvid,
	})
	return nil
}
