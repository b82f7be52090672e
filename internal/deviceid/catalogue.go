package deviceid

import (
	"errors"
	"strings"

	"k8s.io/klog/v2"
)

// Static errors for device identifier reads.
var (
	// ErrNoStableID names the case where no usable identifier exists for
	// a device of the requested type. ReadID and ReadPreferredID report
	// that case through their bool result and do not return this error.
	ErrNoStableID = errors.New("no stable identifier available for device")
	// ErrUnsupportedType names the case where ReadID is asked for a type
	// it cannot probe directly (e.g. a DevID composed from a preceding
	// read). ReadID reports that case through its bool result and does
	// not return this error.
	ErrUnsupportedType = errors.New("identifier type cannot be read directly")
)

// Reader abstracts the OS-level probing that ReadID and ReadPreferredID
// need. Production code wires internal/osdev's Reader, which reads /sys
// attributes and reports VPD83 and NVMe descriptors as unavailable;
// tests use an in-memory fake. Keeping this package free of any
// concrete OS dependency is what lets the canonicalisation and
// preferred-order logic be exercised without a real block device.
type Reader interface {
	// SysAttr returns the trimmed contents of a sysfs attribute under
	// /sys/class/block/<devname>/, e.g. suffix "wwid", "serial",
	// "device/wwid", "md/uuid", "dm/uuid", "loop/backing_file". The bool
	// return is false when the attribute doesn't exist or is empty.
	SysAttr(devname, suffix string) (string, bool)
	// VPD83 returns the raw SCSI VPD page 0x83 response for devname, if
	// the device supports it.
	VPD83(devname string) ([]byte, bool)
	// NVMeDescriptors returns the raw NVMe namespace identification
	// descriptor list for devname, if it is an NVMe namespace.
	NVMeDescriptors(devname string) ([]byte, bool)
	// Major returns the device's major number, used to steer probing
	// toward the device-mapper/loop/md families.
	Major(devname string) (int, bool)
}

// MajorNumbers records the dynamically assigned major numbers lvm2 uses
// to recognise device-mapper, loop and md devices. These are not fixed
// across kernels and are ordinarily read from /proc/devices by
// internal/osdev.ReadMajorNumbers at startup.
type MajorNumbers struct {
	DeviceMapper int
	Loop         int
	MD           int
}

// stripKpartxEnvelope removes a kpartx-style "partN-" prefix from a
// dm-uuid value, e.g. "part1-mpath-3600...". Grounded on device_id.c's
// handling of partitioned device-mapper devices: the stable identifier is
// the envelope-stripped UUID plus the partition number, not the raw
// dm-uuid, so that whole-disk and partition devices sharing one dm-uuid
// prefix are still distinguishable.
func stripKpartxEnvelope(uuid string) (prefix, rest string, partNum string) {
	if !strings.HasPrefix(uuid, "part") {
		return "", uuid, ""
	}
	rem := uuid[len("part"):]
	digits := 0
	for digits < len(rem) && rem[digits] >= '0' && rem[digits] <= '9' {
		digits++
	}
	if digits == 0 || digits >= len(rem) || rem[digits] != '-' {
		return "", uuid, ""
	}
	return "", rem[digits+1:], rem[:digits]
}

// dmUUIDUnderlyingType classifies a (post kpartx-strip) dm-uuid by its
// well-known prefix, matching the prefixes lvm2's device_id.c checks
// before accepting a dm-uuid as a stable mpath/crypt/lvm id.
func dmUUIDUnderlyingType(uuid string) (Type, bool) {
	switch {
	case strings.HasPrefix(uuid, "mpath-"):
		return MpathUUID, true
	case strings.HasPrefix(uuid, "CRYPT-"):
		return CryptUUID, true
	case strings.HasPrefix(uuid, "LVM-"):
		return LVMLVUUID, true
	default:
		return Unknown, false
	}
}

// ReadID probes a single identifier type for devname. It does not decide
// preference among types — that is ReadPreferredID's job — it only
// performs the OS read and canonicalisation for the one type requested.
// A (DevID{}, false) result means the type is genuinely unavailable for
// this device, which callers should cache as a negative entry so the
// (comparatively expensive) probe is not repeated.
func ReadID(r Reader, devname string, t Type) (DevID, bool) {
	switch t {
	case SysWWID:
		raw, ok := r.SysAttr(devname, "wwid")
		if !ok {
			raw, ok = r.SysAttr(devname, "device/wwid")
		}
		if !ok {
			return DevID{}, false
		}
		name := CanonicalizeGeneral(raw)
		if name == "" {
			return DevID{}, false
		}
		return DevID{Type: SysWWID, Name: name}, true

	case SysSerial:
		raw, ok := r.SysAttr(devname, "serial")
		if !ok {
			raw, ok = r.SysAttr(devname, "device/serial")
		}
		if !ok {
			return DevID{}, false
		}
		name := CanonicalizeGeneral(raw)
		if name == "" {
			return DevID{}, false
		}
		return DevID{Type: SysSerial, Name: name}, true

	case WWIDNAA, WWIDEUI, WWIDT10:
		page, ok := r.VPD83(devname)
		if !ok {
			return DevID{}, false
		}
		for _, id := range ParseVPD83(page) {
			if id.Type == t {
				return DevID{Type: t, Name: id.Value}, true
			}
		}
		return DevID{}, false

	case MpathUUID, CryptUUID, LVMLVUUID:
		raw, ok := r.SysAttr(devname, "dm/uuid")
		if !ok {
			return DevID{}, false
		}
		_, rest, part := stripKpartxEnvelope(raw)
		underlying, ok := dmUUIDUnderlyingType(rest)
		if !ok || underlying != t {
			return DevID{}, false
		}
		name := rest
		if part != "" {
			name = rest + "-part" + part
		}
		return DevID{Type: t, Name: name}, true

	case MDUUID:
		raw, ok := r.SysAttr(devname, "md/uuid")
		if !ok {
			return DevID{}, false
		}
		return DevID{Type: MDUUID, Name: CanonicalizeGeneral(raw)}, true

	case LoopFile:
		raw, ok := r.SysAttr(devname, "loop/backing_file")
		if !ok || raw == "" || strings.HasSuffix(raw, "(deleted)") {
			return DevID{}, false
		}
		return DevID{Type: LoopFile, Name: raw}, true

	case Devname:
		return DevID{Type: Devname, Name: devname}, true

	default:
		return DevID{}, false
	}
}

// ReadPreferredID chooses the single identifier lvm2 would record for
// devname in the devices file, grounded on
// device_id_system_read_preferred in lib/device/device_id.c: the
// device-mapper, loop and md families are matched by major number first
// (they have their own dedicated id types), and everything else falls
// through the fixed PreferredOrder list, stopping at the first type that
// yields a usable id. The legacy QEMU exception is applied here, not in
// ReadID, because it is a preference-selection rule, not a probing rule:
// the identifier still exists and reads successfully, it is simply not
// trusted as a preferred id.
func ReadPreferredID(r Reader, devname string, majors MajorNumbers) (DevID, bool) {
	if major, ok := r.Major(devname); ok {
		switch major {
		case majors.DeviceMapper:
			for _, t := range []Type{MpathUUID, CryptUUID, LVMLVUUID} {
				if id, ok := ReadID(r, devname, t); ok {
					return id, true
				}
			}
		case majors.Loop:
			if id, ok := ReadID(r, devname, LoopFile); ok {
				return id, true
			}
		case majors.MD:
			if id, ok := ReadID(r, devname, MDUUID); ok {
				return id, true
			}
		}
	}

	for _, t := range PreferredOrder {
		id, ok := ReadID(r, devname, t)
		if !ok {
			continue
		}
		if isQEMUWWID(id.Type, id.Name) {
			klog.V(4).Infof("deviceid: ignoring QEMU wwid %q for %s, falling through", id.Name, devname)
			continue
		}
		return id, true
	}

	// PreferredOrder ends in Devname, which ReadID never fails for, so
	// the loop above always returns before falling out here in practice.
	// The explicit fallback documents that devname is the ultimate,
	// always-available identifier.
	return DevID{Type: Devname, Name: devname}, true
}
