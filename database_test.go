package telix

import (
	"path/filepath"
	"testing"
)

func TestFileEventDatabaseAppendAndIterate(t *testing.T) {
	db, err := OpenFileEventDatabase(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileEventDatabase: %v", err)
	}
	defer db.Close()

	id := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("registry")))
	rec1 := []byte("first record")
	rec2 := []byte("second record")

	if err := db.AddNewManagementEvent(id, rec1); err != nil {
		t.Fatalf("AddNewManagementEvent(1): %v", err)
	}
	if err := db.AddNewManagementEvent(id, rec2); err != nil {
		t.Fatalf("AddNewManagementEvent(2): %v", err)
	}

	records, err := db.IterManagementEvents(id)
	if err != nil {
		t.Fatalf("IterManagementEvents: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if string(records[0]) != string(rec1) || string(records[1]) != string(rec2) {
		t.Fatalf("expected append order [rec1, rec2], got %v", records)
	}
}

func TestFileEventDatabaseDisjointKeyspaces(t *testing.T) {
	db, err := OpenFileEventDatabase(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileEventDatabase: %v", err)
	}
	defer db.Close()

	id := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("same-text-id")))
	if err := db.AddNewManagementEvent(id, []byte("management record")); err != nil {
		t.Fatalf("AddNewManagementEvent: %v", err)
	}

	vcRecords, err := db.IterEvents(id)
	if err != nil {
		t.Fatalf("IterEvents: %v", err)
	}
	if len(vcRecords) != 0 {
		t.Fatalf("expected the vc keyspace to be untouched by a management write, got %v", vcRecords)
	}

	mgmtRecords, err := db.IterManagementEvents(id)
	if err != nil {
		t.Fatalf("IterManagementEvents: %v", err)
	}
	if len(mgmtRecords) != 1 {
		t.Fatalf("expected 1 management record, got %d", len(mgmtRecords))
	}
}

func TestFileEventDatabaseIterateUnknownIdentifierIsEmpty(t *testing.T) {
	db, err := OpenFileEventDatabase(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFileEventDatabase: %v", err)
	}
	defer db.Close()

	unknown := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("never written")))
	records, err := db.IterManagementEvents(unknown)
	if err != nil {
		t.Fatalf("IterManagementEvents: %v", err)
	}
	if records != nil {
		t.Fatalf("expected nil for an identifier with no writes, got %v", records)
	}
}

func TestFileEventDatabasePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	id := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("durable registry")))

	db1, err := OpenFileEventDatabase(dir)
	if err != nil {
		t.Fatalf("OpenFileEventDatabase: %v", err)
	}
	if err := db1.AddNewManagementEvent(id, []byte("durable record")); err != nil {
		t.Fatalf("AddNewManagementEvent: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := OpenFileEventDatabase(dir)
	if err != nil {
		t.Fatalf("reopen OpenFileEventDatabase: %v", err)
	}
	defer db2.Close()
	records, err := db2.IterManagementEvents(id)
	if err != nil {
		t.Fatalf("IterManagementEvents after reopen: %v", err)
	}
	if len(records) != 1 || string(records[0]) != "durable record" {
		t.Fatalf("expected the record to survive reopen, got %v", records)
	}
}

func openTestSQLiteDatabase(t *testing.T, dir string) EventDatabase {
	t.Helper()
	db, err := OpenSQLiteEventDatabase(filepath.Join(dir, "tel.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteEventDatabase: %v", err)
	}
	return db
}

func TestSQLiteEventDatabaseAppendAndIterate(t *testing.T) {
	db := openTestSQLiteDatabase(t, t.TempDir())
	defer db.Close()

	id := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("registry")))
	rec1 := []byte("first record")
	rec2 := []byte("second record")
	rec3 := []byte("third record")

	for i, rec := range [][]byte{rec1, rec2, rec3} {
		if err := db.AddNewManagementEvent(id, rec); err != nil {
			t.Fatalf("AddNewManagementEvent(%d): %v", i+1, err)
		}
	}

	records, err := db.IterManagementEvents(id)
	if err != nil {
		t.Fatalf("IterManagementEvents: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range [][]byte{rec1, rec2, rec3} {
		if string(records[i]) != string(want) {
			t.Fatalf("record %d: got %q, want %q", i, records[i], want)
		}
	}
}

func TestSQLiteEventDatabaseDisjointKeyspaces(t *testing.T) {
	db := openTestSQLiteDatabase(t, t.TempDir())
	defer db.Close()

	id := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("same-text-id")))
	if err := db.AddNewManagementEvent(id, []byte("management record")); err != nil {
		t.Fatalf("AddNewManagementEvent: %v", err)
	}
	if err := db.AddNewEvent(id, []byte("vc record")); err != nil {
		t.Fatalf("AddNewEvent: %v", err)
	}

	mgmtRecords, err := db.IterManagementEvents(id)
	if err != nil {
		t.Fatalf("IterManagementEvents: %v", err)
	}
	if len(mgmtRecords) != 1 || string(mgmtRecords[0]) != "management record" {
		t.Fatalf("expected only the management record in the management keyspace, got %v", mgmtRecords)
	}

	vcRecords, err := db.IterEvents(id)
	if err != nil {
		t.Fatalf("IterEvents: %v", err)
	}
	if len(vcRecords) != 1 || string(vcRecords[0]) != "vc record" {
		t.Fatalf("expected only the vc record in the vc keyspace, got %v", vcRecords)
	}
}

func TestSQLiteEventDatabaseInterleavedIdentifiersKeepPerStreamOrder(t *testing.T) {
	db := openTestSQLiteDatabase(t, t.TempDir())
	defer db.Close()

	a := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("registry a")))
	b := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("registry b")))

	// Interleave appends across two identifiers; each stream's seq must
	// stay contiguous and iteration must return each stream in its own
	// append order.
	if err := db.AddNewManagementEvent(a, []byte("a0")); err != nil {
		t.Fatalf("AddNewManagementEvent(a0): %v", err)
	}
	if err := db.AddNewManagementEvent(b, []byte("b0")); err != nil {
		t.Fatalf("AddNewManagementEvent(b0): %v", err)
	}
	if err := db.AddNewManagementEvent(a, []byte("a1")); err != nil {
		t.Fatalf("AddNewManagementEvent(a1): %v", err)
	}
	if err := db.AddNewManagementEvent(b, []byte("b1")); err != nil {
		t.Fatalf("AddNewManagementEvent(b1): %v", err)
	}

	aRecords, err := db.IterManagementEvents(a)
	if err != nil {
		t.Fatalf("IterManagementEvents(a): %v", err)
	}
	if len(aRecords) != 2 || string(aRecords[0]) != "a0" || string(aRecords[1]) != "a1" {
		t.Fatalf("expected a's stream [a0, a1], got %v", aRecords)
	}

	bRecords, err := db.IterManagementEvents(b)
	if err != nil {
		t.Fatalf("IterManagementEvents(b): %v", err)
	}
	if len(bRecords) != 2 || string(bRecords[0]) != "b0" || string(bRecords[1]) != "b1" {
		t.Fatalf("expected b's stream [b0, b1], got %v", bRecords)
	}
}

func TestSQLiteEventDatabaseIterateUnknownIdentifierIsEmpty(t *testing.T) {
	db := openTestSQLiteDatabase(t, t.TempDir())
	defer db.Close()

	unknown := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("never written")))
	records, err := db.IterManagementEvents(unknown)
	if err != nil {
		t.Fatalf("IterManagementEvents: %v", err)
	}
	if records != nil {
		t.Fatalf("expected nil for an identifier with no writes, got %v", records)
	}
}

func TestSQLiteEventDatabasePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	id := NewSelfAddressingPrefix(DefaultDigester.Derive([]byte("durable registry")))

	db1 := openTestSQLiteDatabase(t, dir)
	if err := db1.AddNewManagementEvent(id, []byte("durable record")); err != nil {
		t.Fatalf("AddNewManagementEvent: %v", err)
	}
	if err := db1.AddNewEvent(id, []byte("durable vc record")); err != nil {
		t.Fatalf("AddNewEvent: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2 := openTestSQLiteDatabase(t, dir)
	defer db2.Close()
	records, err := db2.IterManagementEvents(id)
	if err != nil {
		t.Fatalf("IterManagementEvents after reopen: %v", err)
	}
	if len(records) != 1 || string(records[0]) != "durable record" {
		t.Fatalf("expected the management record to survive reopen, got %v", records)
	}
	vcRecords, err := db2.IterEvents(id)
	if err != nil {
		t.Fatalf("IterEvents after reopen: %v", err)
	}
	if len(vcRecords) != 1 || string(vcRecords[0]) != "durable vc record" {
		t.Fatalf("expected the vc record to survive reopen, got %v", vcRecords)
	}
}

func TestSQLiteEventDatabaseFoldsThroughProcessor(t *testing.T) {
	db := openTestSQLiteDatabase(t, t.TempDir())
	defer db.Close()

	p, err := NewEventProcessor(db, DefaultDigester)
	if err != nil {
		t.Fatalf("NewEventProcessor: %v", err)
	}
	vcp := inceptEvent(t, nil, []IdentifierPrefix{backer("b1")})
	if _, err := p.Process(VerifiableEvent{Kind: VerifiableManagerEvent, Manager: vcp, Seal: sealFor(0)}); err != nil {
		t.Fatalf("Process(vcp): %v", err)
	}
	state, err := p.GetManagementTelState(vcp.Prefix)
	if err != nil {
		t.Fatalf("GetManagementTelState: %v", err)
	}
	if state.SN != 0 || len(state.Backers) != 1 {
		t.Fatalf("unexpected folded state sn=%d backers=%v", state.SN, state.Backers)
	}
}
