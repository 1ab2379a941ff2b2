package question

import "testing"

func TestPrefixSuffixRoundTrip(t *testing.T) {
	ids := []string{"GRM-A-001", "GRM-A-002", "TNS-PRF-120", "관계-B-007"}
	for _, id := range ids {
		if got := Prefix(id) + "-" + Suffix(id); got != id {
			t.Fatalf("prefix+suffix for %q = %q", id, got)
		}
	}
}

func TestPadSuffix(t *testing.T) {
	cases := map[string]string{"7": "007", "07": "007", "120": "120", " 5 ": "005"}
	for in, want := range cases {
		if got := PadSuffix(in); got != want {
			t.Fatalf("PadSuffix(%q) = %q, want %q", in, got, want)
		}
	}
	if got := ComposeID("GRM-A", "7"); got != "GRM-A-007" {
		t.Fatalf("ComposeID() = %q", got)
	}
}

func TestNewSchemaRejectsDuplicateHeaders(t *testing.T) {
	if _, err := NewSchema([]string{"ID", "stage", "ID"}); err == nil {
		t.Fatal("expected duplicate header error")
	}
	schema, err := NewSchema([]string{"ID", "", "stage", ""})
	if err != nil {
		t.Fatalf("NewSchema() error = %v", err)
	}
	if schema.Len() != 4 {
		t.Fatalf("expected empty header cells to be kept, len=%d", schema.Len())
	}
	if col, ok := schema.Column("stage"); !ok || col != 3 {
		t.Fatalf("Column(stage) = %d, %v", col, ok)
	}
}

func TestRecordAlignsValues(t *testing.T) {
	schema := MustSchema(FieldID, FieldStage, FieldInstructions)
	record := NewRecord(4, schema, []string{"GRM-A-001", "2"})
	if record.Get(FieldInstructions) != "" {
		t.Fatalf("expected padded empty value, got %q", record.Get(FieldInstructions))
	}
	if stage, ok := record.Stage(); !ok || stage != 2 {
		t.Fatalf("Stage() = %d, %v", stage, ok)
	}
	if record.SheetRow() != 6 {
		t.Fatalf("SheetRow() = %d, want 6", record.SheetRow())
	}
	if record.ShowsImages() {
		t.Fatal("no image marker expected")
	}
	withMarker := NewRecord(0, schema, []string{"GRM-A-002", "1", "그림을 보고 답하시오."})
	if !withMarker.ShowsImages() {
		t.Fatal("image marker not detected")
	}
}
