package store

import (
	"encoding/json"
	"testing"
	"time"
)

func TestErrNotFoundMessage(t *testing.T) {
	if ErrNotFound.Error() != "not found" {
		t.Fatalf("ErrNotFound.Error() = %q", ErrNotFound.Error())
	}
}

func TestDocumentRoundTripsThroughJSON(t *testing.T) {
	doc := Document{
		Id:        "doc1",
		ColId:     "col1",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		UpdatedAt: time.Unix(1700000001, 0).UTC(),
		Colrev:    5,
		Data:      []byte("hello"),
		IsDeleted: false,
	}

	buf, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Document
	if err := json.Unmarshal(buf, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Id != doc.Id || decoded.Colrev != doc.Colrev || string(decoded.Data) != string(doc.Data) {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}
}

func TestDeletedDocumentOmitsDataField(t *testing.T) {
	doc := Document{Id: "doc1", ColId: "col1", Colrev: 2, IsDeleted: true}
	buf, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(buf, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["data"]; ok {
		t.Fatal("expected data field to be omitted for a tombstoned document")
	}
}
