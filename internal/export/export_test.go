package export

// Shared test doubles for the export package. The service takes all of its
// collaborators through Options, so tests swap in an in-memory source, a
// recording spawner and the in-memory session store.

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// fakeSource serves licenses from a slice and relations from maps.
type fakeSource struct {
	licenses  []License
	customers map[int64]*Customer
	payments  map[int64]*Payment
	addresses map[int64]*Address
	downloads map[int64]bool
}

func (f *fakeSource) FetchPage(_ context.Context, offset, limit int) ([]License, error) {
	if offset >= len(f.licenses) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.licenses) {
		end = len(f.licenses)
	}
	return f.licenses[offset:end], nil
}

func (f *fakeSource) Customer(_ context.Context, id int64) (*Customer, error) {
	return f.customers[id], nil
}

func (f *fakeSource) Payment(_ context.Context, id int64) (*Payment, error) {
	return f.payments[id], nil
}

func (f *fakeSource) CustomerAddress(_ context.Context, userID int64) (*Address, error) {
	return f.addresses[userID], nil
}

func (f *fakeSource) DownloadExists(_ context.Context, id int64) (bool, error) {
	return f.downloads[id], nil
}

// newFakeSource builds a source with n fully resolvable licenses, all
// pointing at download 1, customer 1, payment 1.
func newFakeSource(n int) *fakeSource {
	created := time.Date(2019, 4, 2, 9, 30, 0, 0, time.UTC)
	licenses := make([]License, n)
	for i := range licenses {
		licenses[i] = License{
			ID:         int64(i + 1),
			DownloadID: 1,
			CustomerID: 1,
			PaymentID:  1,
			Key:        "key-" + strconv.Itoa(i+1),
			Created:    created,
			Lifetime:   true,
		}
	}
	return &fakeSource{
		licenses: licenses,
		customers: map[int64]*Customer{
			1: {ID: 1, Email: "buyer@example.com", Name: "Buyer One", UserID: 7},
		},
		payments: map[int64]*Payment{
			1: {ID: 1, CustomerID: 1},
		},
		addresses: map[int64]*Address{},
		downloads: map[int64]bool{1: true},
	}
}

// recordingSpawner collects continuations instead of firing HTTP calls.
type recordingSpawner struct {
	calls []Continuation
}

func (r *recordingSpawner) Spawn(c Continuation) {
	r.calls = append(r.calls, c)
}

func (r *recordingSpawner) pop() (Continuation, bool) {
	if len(r.calls) == 0 {
		return Continuation{}, false
	}
	c := r.calls[0]
	r.calls = r.calls[1:]
	return c, true
}

// readCSV parses the export file into records.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return csv.NewReader(f).ReadAll()
}
