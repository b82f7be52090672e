package deviceid

import "testing"

// fakeReader is an in-memory Reader for tests, keyed by devname.
type fakeReader struct {
	attrs   map[string]map[string]string
	vpd83   map[string][]byte
	nvme    map[string][]byte
	majors  map[string]int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		attrs:  make(map[string]map[string]string),
		vpd83:  make(map[string][]byte),
		nvme:   make(map[string][]byte),
		majors: make(map[string]int),
	}
}

func (f *fakeReader) setAttr(dev, suffix, val string) {
	m, ok := f.attrs[dev]
	if !ok {
		m = make(map[string]string)
		f.attrs[dev] = m
	}
	m[suffix] = val
}

func (f *fakeReader) SysAttr(dev, suffix string) (string, bool) {
	m, ok := f.attrs[dev]
	if !ok {
		return "", false
	}
	v, ok := m[suffix]
	return v, ok && v != ""
}

func (f *fakeReader) VPD83(dev string) ([]byte, bool) {
	v, ok := f.vpd83[dev]
	return v, ok
}

func (f *fakeReader) NVMeDescriptors(dev string) ([]byte, bool) {
	v, ok := f.nvme[dev]
	return v, ok
}

func (f *fakeReader) Major(dev string) (int, bool) {
	v, ok := f.majors[dev]
	return v, ok
}

func TestCanonicalizeGeneralIdempotent(t *testing.T) {
	cases := []string{
		`  ATA   WDC WD10 "model"  `,
		"no-change-needed",
		"\t leading and trailing tabs \t",
		"embedded\x01control\x02chars",
	}
	for _, c := range cases {
		once := CanonicalizeGeneral(c)
		twice := CanonicalizeGeneral(once)
		if once != twice {
			t.Errorf("CanonicalizeGeneral(%q) not idempotent: once=%q twice=%q", c, once, twice)
		}
	}
}

func TestCanonicalizeT10Idempotent(t *testing.T) {
	cases := []string{
		"ATA       WDC WD10EZEX-00",
		"nospaces",
		"   leading and trailing   ",
	}
	for _, c := range cases {
		once := CanonicalizeT10(c)
		twice := CanonicalizeT10(once)
		if once != twice {
			t.Errorf("CanonicalizeT10(%q) not idempotent: once=%q twice=%q", c, once, twice)
		}
	}
}

func TestReadPreferredIDSkipsQEMUWWID(t *testing.T) {
	r := newFakeReader()
	r.setAttr("sda", "wwid", "QEMU HARDDISK drive-scsi0-0-0-0")
	r.setAttr("sda", "serial", "drive-scsi0-0-0-0")

	id, ok := ReadPreferredID(r, "sda", MajorNumbers{})
	if !ok {
		t.Fatal("expected a preferred id to be found")
	}
	if id.Type != SysSerial {
		t.Fatalf("expected fallthrough to sys_serial past the QEMU wwid, got type %v name %q", id.Type, id.Name)
	}
}

func TestReadPreferredIDFallsBackToDevname(t *testing.T) {
	r := newFakeReader()
	id, ok := ReadPreferredID(r, "sdz", MajorNumbers{})
	if !ok {
		t.Fatal("expected devname fallback to always succeed")
	}
	if id.Type != Devname || id.Name != "sdz" {
		t.Fatalf("expected devname fallback, got %+v", id)
	}
}

func TestReadPreferredIDUsesSysWWIDWhenClean(t *testing.T) {
	r := newFakeReader()
	r.setAttr("sdb", "wwid", "t10.ATA     SSD123456")

	id, ok := ReadPreferredID(r, "sdb", MajorNumbers{})
	if !ok {
		t.Fatal("expected an id")
	}
	if id.Type != SysWWID {
		t.Fatalf("expected sys_wwid to win, got %v", id.Type)
	}
}

func TestReadIDDeviceMapperStripsKpartxEnvelope(t *testing.T) {
	r := newFakeReader()
	r.setAttr("dm-1", "dm/uuid", "part1-mpath-360000000000000000000000000000001")
	r.majors["dm-1"] = 253

	id, ok := ReadPreferredID(r, "dm-1", MajorNumbers{DeviceMapper: 253})
	if !ok {
		t.Fatal("expected mpath id")
	}
	if id.Type != MpathUUID {
		t.Fatalf("expected mpath_uuid, got %v", id.Type)
	}
	if id.Name != "mpath-360000000000000000000000000000001-part1" {
		t.Fatalf("unexpected id name %q", id.Name)
	}
}

func TestParseVPD83NAAAndT10(t *testing.T) {
	page := buildVPD83Page([]vpdDescriptor{
		{idType: vpdIDTypeNAA, data: mustHex("600508b1001c66a40022000000770000")},
		{idType: vpdIDTypeT10, data: []byte("ATA     SAMSUNG SSD  ")},
	})

	ids := ParseVPD83(page)
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d: %+v", len(ids), ids)
	}
	if ids[0].Type != WWIDNAA {
		t.Fatalf("expected first id to be naa, got %v", ids[0].Type)
	}
	if ids[1].Type != WWIDT10 || ids[1].Value != "t10.ATA_SAMSUNG_SSD" {
		t.Fatalf("unexpected t10 id: %+v", ids[1])
	}
}

func TestRenderNVMeUUID(t *testing.T) {
	uuid := make([]byte, 16)
	for i := range uuid {
		uuid[i] = byte(i)
	}
	s, ok := RenderNVMeUUID(uuid)
	if !ok {
		t.Fatal("expected success")
	}
	want := "uuid.00010203-0405-0607-0809-0a0b0c0d0e0f"
	if s != want {
		t.Fatalf("got %q want %q", s, want)
	}
}

func TestPreferredNVMeIDPicksUUIDFirst(t *testing.T) {
	uuid := make([]byte, 16)
	uuid[0] = 1
	eui := make([]byte, 8)
	eui[0] = 2
	descs := []NVMeNamespaceDescriptor{
		{Type: NVMeDescEUI64, Data: eui},
		{Type: NVMeDescUUID, Data: uuid},
	}
	s, ok := PreferredNVMeID(descs)
	if !ok {
		t.Fatal("expected a preferred id")
	}
	if s[:5] != "uuid." {
		t.Fatalf("expected uuid preferred over eui64, got %q", s)
	}
}

// --- helpers for building a synthetic VPD83 page ---

type vpdDescriptor struct {
	idType byte
	data   []byte
}

func buildVPD83Page(descs []vpdDescriptor) []byte {
	var body []byte
	for _, d := range descs {
		header := []byte{0x00, d.idType, 0x00, byte(len(d.data))}
		body = append(body, header...)
		body = append(body, d.data...)
	}
	page := make([]byte, 4+len(body))
	page[1] = 0x83
	page[2] = byte(len(body) >> 8)
	page[3] = byte(len(body))
	copy(page[4:], body)
	return page
}

func mustHex(s string) []byte {
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		var hi, lo byte
		hi = hexDigit(s[i*2])
		lo = hexDigit(s[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func hexDigit(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
