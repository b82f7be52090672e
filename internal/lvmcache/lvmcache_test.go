package lvmcache

import (
	"context"
	"testing"
	"time"

	"github.com/lvmteam/lvmcore/internal/deviceid"
)

func testMajors() deviceid.MajorNumbers {
	return deviceid.MajorNumbers{DeviceMapper: 253, Loop: 7, MD: 9}
}

func TestAttachVGOrphanIsCreatedAndAppearsLast(t *testing.T) {
	c := New(testMajors())
	c.AttachVG("pvid-1", "myvg", "vgid-1")
	c.AttachVG("pvid-2", OrphanVGName, "")

	order := c.Vginfos()
	if len(order) != 2 {
		t.Fatalf("expected 2 vginfos, got %d", len(order))
	}
	if order[len(order)-1].VgName != OrphanVGName {
		t.Fatalf("expected orphan VG last, got order %+v", order)
	}
	if order[0].VgName != "myvg" {
		t.Fatalf("expected myvg first, got %+v", order[0])
	}
}

func TestAttachVGMovesPVBetweenGroupsAndGCsEmptyVG(t *testing.T) {
	c := New(testMajors())
	c.AttachVG("pvid-1", "vgA", "vgidA")

	vgA, ok := c.VgInfoByVgname("vgA")
	if !ok || len(vgA.PVs) != 1 {
		t.Fatalf("expected vgA to have 1 PV, got %+v", vgA)
	}

	// Move the same PV to a different VG; vgA should be garbage
	// collected since it had exactly one PV.
	c.AttachVG("pvid-1", "vgB", "vgidB")

	if _, ok := c.VgInfoByVgname("vgA"); ok {
		t.Fatal("expected vgA to be garbage collected after losing its last PV")
	}
	if _, ok := c.VgInfoByVgid("vgidA"); ok {
		t.Fatal("expected vgA's vgid index entry to be removed")
	}
	vgB, ok := c.VgInfoByVgname("vgB")
	if !ok || len(vgB.PVs) != 1 {
		t.Fatalf("expected vgB to have 1 PV, got %+v", vgB)
	}
}

func TestDetachRemovesPVIDAndGCsVG(t *testing.T) {
	c := New(testMajors())
	c.AttachVG("pvid-1", "vgA", "vgidA")

	c.Detach("pvid-1")

	if _, ok := c.PvInfoByPVID("pvid-1"); ok {
		t.Fatal("expected pvid-1 to be removed from the pvid map")
	}
	if _, ok := c.VgInfoByVgname("vgA"); ok {
		t.Fatal("expected vgA to be garbage collected after its only PV detached")
	}
}

func TestAttachPrefersMdMajorOverPlainMajor(t *testing.T) {
	c := New(testMajors())
	majors := testMajors()

	loser := c.Attach("/dev/sda1", 8 /* plain scsi major */, "dup-pvid")
	if loser != "" {
		t.Fatalf("expected no loser on first attach, got %q", loser)
	}

	loser = c.Attach("/dev/md0", majors.MD, "dup-pvid")
	if loser != "/dev/sda1" {
		t.Fatalf("expected the existing plain device to lose to the new md device, got %q", loser)
	}

	pv, ok := c.PvInfoByPVID("dup-pvid")
	if !ok {
		t.Fatal("expected dup-pvid to remain cached")
	}
	if pv.DevName != "/dev/md0" {
		t.Fatalf("expected md device to be preferred and become the cache entry's devname, got %q", pv.DevName)
	}
	if !c.HasDuplicateDevs() {
		t.Fatal("expected HasDuplicateDevs to be set after a duplicate-PVID resolution")
	}
}

func TestAttachMdMajorBeatsExistingPlainDevice(t *testing.T) {
	c := New(testMajors())
	majors := testMajors()

	c.Attach("/dev/sda1", 8, "dup-pvid")
	loser := c.Attach("/dev/md0", majors.MD, "dup-pvid")

	pv, ok := c.PvInfoByPVID("dup-pvid")
	if !ok {
		t.Fatal("expected dup-pvid to remain cached")
	}
	if pv.DevName != "/dev/md0" {
		t.Fatalf("expected md device to win and become the cache entry, got %q (loser reported %q)", pv.DevName, loser)
	}
	if loser != "/dev/sda1" {
		t.Fatalf("expected the plain device to be reported as the loser, got %q", loser)
	}
}

func TestAttachSamePlainMajorKeepsNewAndFlagsDuplicate(t *testing.T) {
	c := New(testMajors())

	c.Attach("/dev/sda1", 8, "dup-pvid")
	loser := c.Attach("/dev/sdb1", 8, "dup-pvid")

	pv, _ := c.PvInfoByPVID("dup-pvid")
	if pv.DevName != "/dev/sdb1" {
		t.Fatalf("expected the newer plain device to win by default, got %q", pv.DevName)
	}
	if loser != "/dev/sda1" {
		t.Fatalf("expected /dev/sda1 reported as the loser, got %q", loser)
	}
	if !c.HasDuplicateDevs() {
		t.Fatal("expected HasDuplicateDevs to be set")
	}
}

func TestLockTableNestedAcquireIsIdempotent(t *testing.T) {
	c := New(testMajors())
	ctx := context.Background()
	if err := c.Locks.Lock(ctx, "myvg", LockExclusive); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := c.Locks.Lock(ctx, "myvg", LockExclusive); err != nil {
		t.Fatalf("nested Lock: %v", err)
	}
	if got := c.Locks.HolderCount("myvg"); got != 2 {
		t.Fatalf("expected holder count 2, got %d", got)
	}
	c.Locks.Unlock("myvg")
	if got := c.Locks.HolderCount("myvg"); got != 1 {
		t.Fatalf("expected holder count 1, got %d", got)
	}
	c.Locks.Unlock("myvg")
	if got := c.Locks.HolderCount("myvg"); got != 0 {
		t.Fatalf("expected holder count 0, got %d", got)
	}
}

func TestSetMdaCountsAggregatesAcrossVGPVs(t *testing.T) {
	c := New(testMajors())
	c.AttachVG("pvid-1", "vgA", "vgidA")
	c.AttachVG("pvid-2", "vgA", "vgidA")

	c.SetMdaCounts("pvid-1", 2, 2)
	c.SetMdaCounts("pvid-2", 1, 0) // its sole MDA is ignored

	vg, ok := c.VgInfoByVgname("vgA")
	if !ok {
		t.Fatal("expected vgA to exist")
	}
	if vg.MDACount != 3 {
		t.Fatalf("expected MDACount 3, got %d", vg.MDACount)
	}
	if vg.ActiveMDACount != 2 {
		t.Fatalf("expected ActiveMDACount 2 (pvid-2's MDA is ignored), got %d", vg.ActiveMDACount)
	}

	// Moving pvid-2 out of vgA should drop its contribution.
	c.AttachVG("pvid-2", "vgB", "vgidB")
	if vg.MDACount != 2 || vg.ActiveMDACount != 2 {
		t.Fatalf("expected vgA counts to shrink to 2/2 after pvid-2 left, got %d/%d", vg.MDACount, vg.ActiveMDACount)
	}
}

func TestLockTableExclusiveBlocksUntilReleased(t *testing.T) {
	c := New(testMajors())
	ctx := context.Background()
	if err := c.Locks.Lock(ctx, "myvg", LockExclusive); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		c.Locks.Lock(context.Background(), "myvg", LockExclusive)
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("expected second exclusive Lock to block while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	c.Locks.Unlock("myvg")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("expected second Lock to complete after Unlock")
	}
	c.Locks.Unlock("myvg")
}
