package export

import (
	"context"
	"fmt"

	"github.com/licensekit/edd-export/internal/logging"
)

// Driver executes one export batch: header (at offset 0), one page of
// records, one append-and-close on the file.
type Driver struct {
	source    Source
	projector *Projector
	path      string
	debugRows bool
}

// NewDriver wires a driver over the given source and projector. path is the
// export artifact; debugRows enables per-row debug logging.
func NewDriver(source Source, projector *Projector, path string, debugRows bool) *Driver {
	return &Driver{
		source:    source,
		projector: projector,
		path:      path,
		debugRows: debugRows,
	}
}

// RunBatch processes the page at [offset, offset+limit) and returns the
// number of records FETCHED from the source. That count — not the number of
// rows written — is what the scheduler compares against the limit to decide
// whether another batch is needed, so records skipped over missing
// relations still count toward it.
func (d *Driver) RunBatch(ctx context.Context, offset, limit int) (int, error) {
	logger := logging.WithFields(ctx, "offset", offset, "limit", limit)

	page, err := d.source.FetchPage(ctx, offset, limit)
	if err != nil {
		return 0, fmt.Errorf("fetch page: %w", err)
	}

	w, err := OpenSink(d.path, offset == 0)
	if err != nil {
		return 0, err
	}

	written := 0
	skipped := 0
	for _, lic := range page {
		row, ok, err := d.projectRecord(ctx, lic, offset+written)
		if err != nil {
			// A failing record is logged and dropped; it never
			// becomes a diagnostic row in the output file.
			logger.Error("record failed, skipping",
				"license_id", lic.ID,
				"error", err,
			)
			skipped++
			continue
		}
		if !ok {
			skipped++
			continue
		}

		if err := w.Write(row.Record()); err != nil {
			w.Close()
			return len(page), fmt.Errorf("append row: %w", err)
		}
		if d.debugRows {
			logger.Debug("row exported",
				"index", row.Index,
				"license_key", row.LicenseKey,
				"download_id", row.DownloadID,
			)
		}
		written++
	}

	if err := w.Close(); err != nil {
		return len(page), err
	}

	logger.Info("batch complete",
		"fetched", len(page),
		"written", written,
		"skipped", skipped,
	)
	return len(page), nil
}

// projectRecord resolves the license's relations and projects the row.
// ok is false when a required relation (download, customer, payment) is
// missing; such records are omitted from the output without error.
func (d *Driver) projectRecord(ctx context.Context, lic License, index int) (Row, bool, error) {
	if lic.DownloadID == 0 {
		return Row{}, false, nil
	}
	exists, err := d.source.DownloadExists(ctx, lic.DownloadID)
	if err != nil {
		return Row{}, false, err
	}
	if !exists {
		return Row{}, false, nil
	}

	cust, err := d.source.Customer(ctx, lic.CustomerID)
	if err != nil {
		return Row{}, false, err
	}
	if cust == nil {
		return Row{}, false, nil
	}

	pay, err := d.source.Payment(ctx, lic.PaymentID)
	if err != nil {
		return Row{}, false, err
	}
	if pay == nil {
		return Row{}, false, nil
	}

	row, err := d.projector.Project(ctx, lic, cust, pay, index)
	if err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}
