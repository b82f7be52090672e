package deviceid

import "fmt"

// NVMe namespace identifier descriptor types, from the NVMe Identify
// Namespace Identification Descriptor List (grounded on nvme.c's
// NVME_NIDT_* switch).
const (
	nvmeUUIDLen  = 16
	nvmeNGUIDLen = 16
	nvmeEUI64Len = 8
)

// RenderNVMeUUID formats a 16-byte NVMe namespace UUID as lvm2 does in
// nvme.c's _save_uuid: "uuid." followed by the standard dashed
// 8-4-4-4-12 hex-digit grouping.
func RenderNVMeUUID(uuid []byte) (string, bool) {
	if len(uuid) != nvmeUUIDLen {
		return "", false
	}
	s := "uuid."
	for i, b := range uuid {
		s += fmt.Sprintf("%02x", b)
		if i == 3 || i == 5 || i == 7 || i == 9 {
			s += "-"
		}
	}
	return s, true
}

// RenderNVMeNGUID formats a 16-byte NVMe namespace globally unique
// identifier, grounded on nvme.c's _save_nguid: "eui." followed by 32
// plain hex digits.
func RenderNVMeNGUID(nguid []byte) (string, bool) {
	if len(nguid) != nvmeNGUIDLen {
		return "", false
	}
	return "eui." + hexString(nguid), true
}

// RenderNVMeEUI64 formats an 8-byte NVMe/SCSI EUI-64 identifier, grounded
// on nvme.c's _save_eui64: "eui." followed by 16 plain hex digits.
func RenderNVMeEUI64(eui64 []byte) (string, bool) {
	if len(eui64) != nvmeEUI64Len {
		return "", false
	}
	return "eui." + hexString(eui64), true
}

func hexString(b []byte) string {
	s := ""
	for _, c := range b {
		s += fmt.Sprintf("%02x", c)
	}
	return s
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// NVMeNamespaceDescriptor is one decoded entry from the NVMe Identify
// Namespace Identification Descriptor List (the NVME_NIDT_EUI64,
// NVME_NIDT_NGUID and NVME_NIDT_UUID cases of nvme.c's
// dev_read_nvme_wwids loop). Unsupported descriptor types are not
// represented; callers parsing the raw list skip them exactly as lvm2's
// default case does (it merely skips nidl bytes).
type NVMeNamespaceDescriptor struct {
	Type NVMeDescriptorType
	Data []byte
}

// NVMeDescriptorType mirrors the NVME_NIDT_* identifier-type codes.
type NVMeDescriptorType uint8

const (
	NVMeDescEUI64 NVMeDescriptorType = 1
	NVMeDescNGUID NVMeDescriptorType = 2
	NVMeDescUUID  NVMeDescriptorType = 3
	NVMeDescCSI   NVMeDescriptorType = 4
)

// ParseNVMeNamespaceDescriptors walks a raw Identify Namespace
// Identification Descriptor List buffer (as returned by the
// NVME_IOCTL_NS_DESCS ioctl) and returns the embedded descriptors,
// grounded on the byte-walking loop in nvme.c's dev_read_nvme_wwids:
// each entry is a 4-byte header (type, length, two reserved bytes) followed by
// length bytes of identifier data, terminated by a zero-length header.
func ParseNVMeNamespaceDescriptors(data []byte) []NVMeNamespaceDescriptor {
	var out []NVMeNamespaceDescriptor
	for i := 0; i+4 <= len(data); {
		nidt := NVMeDescriptorType(data[i])
		nidl := int(data[i+1])
		if nidl == 0 {
			break
		}
		start := i + 4
		end := start + nidl
		if end > len(data) {
			break
		}
		out = append(out, NVMeNamespaceDescriptor{Type: nidt, Data: data[start:end]})
		i = end
	}
	return out
}

// PreferredNVMeID picks one rendered identifier from a namespace
// descriptor list, preferring UUID over NGUID over EUI-64 whatever order
// the descriptors appear in: a usable non-zero UUID anywhere in the list
// wins, then an NGUID, then an EUI-64.
func PreferredNVMeID(descs []NVMeNamespaceDescriptor) (string, bool) {
	for _, want := range []NVMeDescriptorType{NVMeDescUUID, NVMeDescNGUID, NVMeDescEUI64} {
		for _, d := range descs {
			if d.Type != want {
				continue
			}
			switch d.Type {
			case NVMeDescUUID:
				if !isZero(d.Data) {
					if s, ok := RenderNVMeUUID(d.Data); ok {
						return s, true
					}
				}
			case NVMeDescNGUID:
				if !isZero(d.Data) {
					if s, ok := RenderNVMeNGUID(d.Data); ok {
						return s, true
					}
				}
			case NVMeDescEUI64:
				if !isZero(d.Data) {
					if s, ok := RenderNVMeEUI64(d.Data); ok {
						return s, true
					}
				}
			}
		}
	}
	return "", false
}
