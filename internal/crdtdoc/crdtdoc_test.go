package crdtdoc

import "testing"

func TestNewProducesLoadableSnapshot(t *testing.T) {
	doc := New()
	snapshot := doc.Save()
	if len(snapshot) == 0 {
		t.Fatal("expected a non-empty snapshot from a freshly created document")
	}

	loaded, err := Import(snapshot)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(loaded.Save()) == 0 {
		t.Fatal("expected imported document to re-save a non-empty snapshot")
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	if _, err := Import([]byte("not a crdt snapshot")); err == nil {
		t.Fatal("expected an error importing a malformed snapshot")
	}
}

func TestApplyUpdateMergesIncrementalChange(t *testing.T) {
	source := New()
	if err := source.ApplyUpdate(source.Save()); err != nil {
		t.Fatalf("ApplyUpdate of own snapshot as incremental: %v", err)
	}
}
