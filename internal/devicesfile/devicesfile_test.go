package devicesfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFormatRoundTrip(t *testing.T) {
	f := &File{
		Version: Version{Major: 1, Minor: 1, Counter: 3},
		Entries: []UseEntry{
			{IDType: "sys_wwid", IDName: "naa.5000cca", DevName: "/dev/sda", PVID: "0123456789"},
		},
	}
	data := Format(f)

	reparsed, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reparsed.HashOK {
		t.Fatal("expected self-written file to validate its own HASH")
	}
	if len(reparsed.Entries) != 1 || reparsed.Entries[0].IDName != "naa.5000cca" {
		t.Fatalf("unexpected entries: %+v", reparsed.Entries)
	}
}

func TestParseDetectsHashMismatch(t *testing.T) {
	raw := "# HASH=deadbeef\n" +
		"VERSION=1.1.1\n" +
		"IDTYPE=sys_wwid IDNAME=naa.abc DEVNAME=/dev/sda PVID=p1\n"
	f, err := Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.HashOK {
		t.Fatal("expected hash mismatch to be detected")
	}
}

func TestParseRejectsNewerMajorVersion(t *testing.T) {
	raw := "VERSION=2.0.1\n"
	_, err := Parse(strings.NewReader(raw))
	if err == nil {
		t.Fatal("expected error for unsupported major version")
	}
}

func TestParseRejectsIDTYPEBeforeVersion(t *testing.T) {
	raw := "IDTYPE=sys_wwid IDNAME=naa.abc DEVNAME=/dev/sda PVID=p1\nVERSION=1.1.1\n"
	_, err := Parse(strings.NewReader(raw))
	if err == nil {
		t.Fatal("expected error for IDTYPE line preceding VERSION")
	}
}

func TestDevnameEntryMayHaveEmptyIDName(t *testing.T) {
	raw := "VERSION=1.1.1\nIDTYPE=devname IDNAME=. DEVNAME=/dev/sda PVID=p1\n"
	f, err := Parse(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Entries[0].IDName != "" {
		t.Fatalf("expected empty IDName, got %q", f.Entries[0].IDName)
	}
}

func TestStoreWriteThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := &Store{
		Path:        filepath.Join(dir, "system.devices"),
		LockPath:    filepath.Join(dir, "D_system.devices"),
		BackupDir:   filepath.Join(dir, "backup"),
		BackupLimit: 2,
	}

	nf := &File{Entries: []UseEntry{
		{IDType: "devname", DevName: "/dev/sda", PVID: "p1"},
	}}
	if err := s.Write(nf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.HashOK {
		t.Fatal("expected written file to have a valid hash")
	}
	if got.Version.Counter != 1 {
		t.Fatalf("expected counter 1 on first write, got %d", got.Version.Counter)
	}

	if err := s.Write(nf); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	got2, err := s.Read()
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if got2.Version.Counter != 2 {
		t.Fatalf("expected counter to bump to 2, got %d", got2.Version.Counter)
	}

	if _, err := os.Stat(s.BackupDir); err != nil {
		t.Fatalf("expected backup directory to exist: %v", err)
	}
}

func TestBackupRotationKeepsLimit(t *testing.T) {
	dir := t.TempDir()
	s := &Store{
		Path:        filepath.Join(dir, "system.devices"),
		LockPath:    filepath.Join(dir, "D_system.devices"),
		BackupDir:   filepath.Join(dir, "backup"),
		BackupLimit: 2,
	}

	for i := 0; i < 5; i++ {
		nf := &File{Entries: []UseEntry{{IDType: "devname", DevName: "/dev/sda", PVID: "p1"}}}
		if err := s.Write(nf); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(s.BackupDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) > 2 {
		t.Fatalf("expected at most 2 backups retained, got %d", len(entries))
	}
}

func TestUpdateTryAbandonsOnRace(t *testing.T) {
	dir := t.TempDir()
	s := &Store{
		Path:     filepath.Join(dir, "system.devices"),
		LockPath: filepath.Join(dir, "D_system.devices"),
	}
	initial := &File{Entries: []UseEntry{{IDType: "devname", DevName: "/dev/sda", PVID: "p1"}}}
	if err := s.Write(initial); err != nil {
		t.Fatalf("initial Write: %v", err)
	}
	readBack, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	staleVersion := readBack.Version

	// simulate another writer racing in between this process's read and
	// its update attempt
	racer := &File{Entries: []UseEntry{{IDType: "devname", DevName: "/dev/sdb", PVID: "p2"}}}
	if err := s.Write(racer); err != nil {
		t.Fatalf("racer Write: %v", err)
	}

	err = s.UpdateTry(staleVersion, &File{Entries: []UseEntry{{IDType: "devname", DevName: "/dev/sdc", PVID: "p3"}}})
	if err != ErrRaceLost {
		t.Fatalf("expected ErrRaceLost, got %v", err)
	}
}
