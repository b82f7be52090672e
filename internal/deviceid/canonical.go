package deviceid

import "strings"

// CanonicalizeGeneral implements the general identifier cleanup rule used
// for sys_wwid and sys_serial values (grounded on lvm2's format_general_id
// in lib/device/parse_vpd.c): leading and trailing spaces are trimmed,
// quote characters and non-ascii/non-printable bytes are dropped outright,
// and each remaining space is replaced by its own underscore.
func CanonicalizeGeneral(raw string) string {
	s := strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\'':
			// dropped
		case c < 0x20 || c > 0x7e:
			// non-printable / non-ascii, dropped
		case c == ' ' || c == '\t':
			b.WriteByte('_')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CanonicalizeT10 implements the VPD T10-vendor-ID cleanup rule (grounded
// on format_t10_id): unlike the general rule, which writes one underscore
// per space, a run of embedded spaces collapses to exactly one underscore,
// because T10 vendor/product fields are fixed-width
// space-padded and the padding carries no information once collapsed.
func CanonicalizeT10(raw string) string {
	s := strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' {
			if !prevSpace && b.Len() > 0 {
				b.WriteByte('_')
			}
			prevSpace = true
			continue
		}
		b.WriteByte(c)
		prevSpace = false
	}
	return strings.TrimRight(b.String(), "_")
}

// ReduceRepeatingUnderscores collapses any run of two or more consecutive
// underscores into one. Grounded on device_id.c's
// _reduce_repeating_underscores, used when migrating identifier names
// written by older lvm versions that applied a looser cleanup rule.
func ReduceRepeatingUnderscores(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevUnderscore := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// RemoveLeadingUnderscores strips underscores from the start of s.
// Grounded on device_id.c's _remove_leading_underscores.
func RemoveLeadingUnderscores(s string) string {
	return strings.TrimLeft(s, "_")
}

// RemoveTrailingUnderscores strips underscores from the end of s.
// Grounded on device_id.c's _remove_trailing_underscores.
func RemoveTrailingUnderscores(s string) string {
	return strings.TrimRight(s, "_")
}

// MigrateLegacyName re-derives the canonical form of an idname that may
// have been written by an older lvm version with looser cleanup rules.
// Only t10-derived id types (t10 wwid, and the t10-prefixed portion of a
// VPD-sourced wwid) are subject to the legacy reduction; other types are
// returned unchanged, matching device_id_system_read_preferred's handling
// in lib/device/device_id.c.
func MigrateLegacyName(t Type, name string) string {
	if t != WWIDT10 {
		return name
	}
	s := RemoveLeadingUnderscores(name)
	s = RemoveTrailingUnderscores(s)
	s = ReduceRepeatingUnderscores(s)
	return s
}
