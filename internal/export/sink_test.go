package export

import (
	"path/filepath"
	"testing"
)

func TestSinkWritesHeaderOnRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edd-export.csv")

	w, err := OpenSink(path, true)
	if err != nil {
		t.Fatalf("OpenSink() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	recs, err := readCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("file has %d records, want header only", len(recs))
	}
	if got := len(recs[0]); got != len(Header) {
		t.Errorf("header has %d columns, want %d", got, len(Header))
	}
	if recs[0][0] != "index" || recs[0][len(Header)-1] != "download_id" {
		t.Errorf("header = %v", recs[0])
	}
}

func TestSinkAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edd-export.csv")

	w, err := OpenSink(path, true)
	if err != nil {
		t.Fatal(err)
	}
	row := Row{Index: 0, UserEmail: "a@example.com", DownloadID: 1}
	if err := w.Write(row.Record()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Second open without header must not truncate or re-head the file.
	w, err = OpenSink(path, false)
	if err != nil {
		t.Fatal(err)
	}
	row.Index = 1
	row.UserEmail = "b@example.com"
	if err := w.Write(row.Record()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	recs, err := readCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("file has %d records, want header + 2 rows", len(recs))
	}
	if recs[1][1] != "a@example.com" || recs[2][1] != "b@example.com" {
		t.Errorf("rows out of order: %v / %v", recs[1], recs[2])
	}
}

func TestSinkQuotesAwkwardFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edd-export.csv")

	w, err := OpenSink(path, false)
	if err != nil {
		t.Fatal(err)
	}
	row := Row{
		Index:    0,
		UserName: `Doe, Jo "JD"`,
		Address:  Address{Line1: "1 Main St\nApt 2"},
	}
	if err := w.Write(row.Record()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	recs, err := readCSV(path)
	if err != nil {
		t.Fatalf("re-reading quoted output: %v", err)
	}
	if recs[0][2] != `Doe, Jo "JD"` {
		t.Errorf("name round-trip = %q", recs[0][2])
	}
	if recs[0][11] != "1 Main St\nApt 2" {
		t.Errorf("street round-trip = %q", recs[0][11])
	}
}
