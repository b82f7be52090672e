package deviceid

import (
	"encoding/hex"
	"strings"
)

// VPDID is one identification descriptor decoded from a SCSI VPD page
// 0x83 (device identification) response.
type VPDID struct {
	Type  Type
	Value string
}

// identifier type codes from the descriptor header, byte 1 bits 3-0.
const (
	vpdIDTypeVendorSpecific = 0x0
	vpdIDTypeT10            = 0x1
	vpdIDTypeEUI64          = 0x2
	vpdIDTypeNAA            = 0x3
	vpdIDTypeSCSIName       = 0x8
)

// ParseVPD83 decodes a SCSI VPD page 0x83 (device identification)
// response into zero or more stable identifiers, grounded on lvm2's
// parse_vpd_ids in lib/device/parse_vpd.c. Malformed or truncated
// descriptors are skipped rather than aborting the scan, since a single
// bad descriptor in a multi-descriptor page must not hide the others.
func ParseVPD83(page []byte) []VPDID {
	if len(page) < 4 {
		return nil
	}
	pageLen := int(page[2])<<8 | int(page[3])
	end := 4 + pageLen
	if end > len(page) {
		end = len(page)
	}
	var out []VPDID
	off := 4
	for off+4 <= end {
		idType := page[off+1] & 0x0f
		idLen := int(page[off+3])
		dataStart := off + 4
		dataEnd := dataStart + idLen
		if dataEnd > end {
			break
		}
		ident := page[dataStart:dataEnd]
		off = dataEnd

		switch idType {
		case vpdIDTypeT10:
			out = append(out, VPDID{Type: WWIDT10, Value: "t10." + CanonicalizeT10(string(ident))})
		case vpdIDTypeEUI64:
			if idLen == 8 || idLen == 12 || idLen == 16 {
				out = append(out, VPDID{Type: WWIDEUI, Value: "eui." + hex.EncodeToString(ident)})
			}
		case vpdIDTypeNAA:
			if idLen == 8 || idLen == 16 {
				out = append(out, VPDID{Type: WWIDNAA, Value: "naa." + hex.EncodeToString(ident)})
			}
		case vpdIDTypeSCSIName:
			out = append(out, VPDID{Type: scsiNameType(ident), Value: scsiNameValue(ident)})
		}
	}
	return out
}

// scsiNameValue renders an identifier type 8 (SCSI name string) payload.
// Names already beginning with "naa." or "eui." are lower-cased and kept
// as-is; lvm2 copies this lower-casing from multipath rather than relying
// on the kernel to normalize case, per the comment in parse_vpd.c.
func scsiNameValue(ident []byte) string {
	s := strings.TrimRight(string(ident), "\x00")
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "naa.") || strings.HasPrefix(lower, "eui.") {
		return lower
	}
	return s
}

func scsiNameType(ident []byte) Type {
	lower := strings.ToLower(strings.TrimSpace(string(ident)))
	switch {
	case strings.HasPrefix(lower, "naa."):
		return WWIDNAA
	case strings.HasPrefix(lower, "eui."):
		return WWIDEUI
	default:
		return WWIDT10
	}
}

// ParseVPDSerial decodes a SCSI VPD page 0x80 (unit serial number)
// response, grounded on parse_vpd_serial in lib/device/parse_vpd.c: the
// serial is a length-prefixed ASCII field with surrounding whitespace
// trimmed.
func ParseVPDSerial(page []byte) (string, bool) {
	if len(page) < 4 {
		return "", false
	}
	length := int(page[2])<<8 | int(page[3])
	end := 4 + length
	if end > len(page) {
		end = len(page)
	}
	if end <= 4 {
		return "", false
	}
	s := strings.TrimSpace(string(page[4:end]))
	if s == "" {
		return "", false
	}
	return s, true
}
