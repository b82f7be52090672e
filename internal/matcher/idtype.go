package matcher

import "github.com/lvmteam/lvmcore/internal/deviceid"

// deviceIDType maps an entry's persisted IDTYPE= string to the in-memory
// deviceid.Type used to probe the OS. It delegates to deviceid.ParseType,
// which matcher also needs to translate the other direction when
// rewriting an entry after Phase C finds a new identifier.
func deviceIDType(s string) (deviceid.Type, bool) {
	return deviceid.ParseType(s)
}
