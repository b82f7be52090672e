// Package osdev is the one place in this repo that touches /dev and
// /sys directly: a real implementation of devicecache.Enumerator,
// devicecache.BlockReader, and deviceid.Reader against the host kernel.
//
// internal/devicecache and internal/deviceid are deliberately
// OS-agnostic (spec.md's Non-goals keep the real sysfs/NVMe readers out
// of the library's scope, specifying only the contract they must
// satisfy); osdev supplies that contract's real implementation for the
// two thin inspection CLIs (cmd/pvscan, cmd/lvmdevices) to share, the
// same role a real API client plays wired into the teacher's CLI
// binaries rather than duplicated per command.
package osdev

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/lvmteam/lvmcore/internal/deviceid"
	"github.com/lvmteam/lvmcore/internal/ioretry"
	"github.com/lvmteam/lvmcore/internal/matcher"
)

// devPrefixes lists the /dev name families considered candidate block
// devices, mirroring dev-cache.c's obtain_device_list_from_udev fallback
// of walking /dev for recognised device-name shapes.
var devPrefixes = []string{"sd", "vd", "xvd", "nvme", "dm-", "loop", "md"}

// Enumerator implements devicecache.Enumerator by listing a /dev-like
// directory.
type Enumerator struct {
	Root string // normally "/dev"
}

func (e Enumerator) DeviceNames() []string {
	entries, err := os.ReadDir(e.Root)
	if err != nil {
		return nil
	}
	var out []string
	for _, ent := range entries {
		name := ent.Name()
		for _, p := range devPrefixes {
			if strings.HasPrefix(name, p) {
				out = append(out, filepath.Join(e.Root, name))
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// BlockReader implements devicecache.BlockReader against real files,
// with ioretry's bounded EINTR retry on every call.
type BlockReader struct{}

func (BlockReader) ReadAt(devname string, off int64, buf []byte) (int, error) {
	f, err := os.Open(devname)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ioretry.ReadAt(ioretry.ReaderAt(f), buf, off)
}

func (BlockReader) WriteAt(devname string, off int64, buf []byte) (int, error) {
	f, err := os.OpenFile(devname, os.O_WRONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ioretry.WriteAt(ioretry.WriterAt(f), buf, off)
}

// IDReader implements deviceid.Reader against the real
// /sys/class/block hierarchy. VPD83 and NVMeDescriptors report
// unavailable rather than probing raw SCSI/NVMe ioctls, per spec.md's
// Non-goals excluding those readers from scope; the sys_wwid/
// sys_serial/dm-uuid/md-uuid/loop-backing-file attributes read here are
// plain sysfs text files, the contract deviceid.Reader fixes.
type IDReader struct{}

func (IDReader) SysAttr(devname, suffix string) (string, bool) {
	base := filepath.Base(devname)
	path := filepath.Join("/sys/class/block", base, suffix)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", false
	}
	return v, true
}

func (IDReader) VPD83(devname string) ([]byte, bool) { return nil, false }

func (IDReader) NVMeDescriptors(devname string) ([]byte, bool) { return nil, false }

func (IDReader) Major(devname string) (int, bool) {
	var st unix.Stat_t
	if err := unix.Stat(devname, &st); err != nil {
		return 0, false
	}
	return int(unix.Major(uint64(st.Rdev))), true
}

// MajorMinor stats devname and splits its rdev into (major, minor), the
// pair a hints-file entry records for a device (spec.md §4.8).
func MajorMinor(devname string) (major, minor int, ok bool) {
	var st unix.Stat_t
	if err := unix.Stat(devname, &st); err != nil {
		return 0, 0, false
	}
	return int(unix.Major(uint64(st.Rdev))), int(unix.Minor(uint64(st.Rdev))), true
}

// productUUIDPath is where the kernel publishes the DMI PRODUCT_UUID,
// the same file device_id.c's _dev_cache_check_product_uuid reads.
const productUUIDPath = "/sys/class/dmi/id/product_uuid"

// ReadSystemIdentity reads the running system's PRODUCT_UUID (DMI,
// lower-cased to match lvm2's normalisation) and HOSTNAME, for comparison
// against a devices file's recorded identity (spec.md §4.3's
// refresh_trigger). A field that can't be read comes back empty rather
// than failing the whole read — an identity field the file never
// recorded is never compared against anyway.
func ReadSystemIdentity() matcher.SystemIdentity {
	var id matcher.SystemIdentity
	if data, err := os.ReadFile(productUUIDPath); err == nil {
		id.ProductUUID = strings.ToLower(strings.TrimSpace(string(data)))
	}
	if name, err := os.Hostname(); err == nil {
		id.Hostname = name
	}
	return id
}

// ReadMajorNumbers parses /proc/devices for the dynamically assigned
// device-mapper, loop and md majors, the way device_id.c's
// dev_types_device_major_record populates its major-number table at
// startup.
func ReadMajorNumbers() (majors deviceid.MajorNumbers) {
	data, err := os.ReadFile("/proc/devices")
	if err != nil {
		return majors
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch fields[1] {
		case "device-mapper":
			majors.DeviceMapper = n
		case "loop":
			majors.Loop = n
		case "md":
			majors.MD = n
		}
	}
	return majors
}
