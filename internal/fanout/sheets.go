package fanout

import (
	"context"
	"fmt"

	"github.com/znz-systems/formdrop/internal/models"
	"github.com/znz-systems/formdrop/internal/reqlog"
	"github.com/znz-systems/formdrop/internal/submission"
)

// appendSheet writes the spreadsheet row and records the result on the
// submission. Errors and panics both count as failure.
func (d *Dispatcher) appendSheet(ctx context.Context, ep *models.Endpoint, res *submission.Result) string {
	logger := reqlog.Logger(ctx)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("sheets append panicked: %v", r)
			}
		}()
		if d.deps.Sheets == nil {
			return errNotConfigured("google sheets")
		}
		return d.deps.Sheets.AppendRow(ctx, ep, res.Data)
	}()

	status := models.ChannelStatusSuccess
	if err != nil {
		status = models.ChannelStatusFailure
		logger.Warn("google sheets append failed", "endpoint_id", ep.ID, "error", err)
	} else {
		logger.Info("google sheets row appended", "spreadsheet_id", ep.GoogleSheets.SpreadsheetID)
	}

	if err := d.deps.Submissions.UpdateGoogleSheetsStatus(ctx, res.Submission.ID, status); err != nil {
		logger.Error("failed to record google sheets status", "submission_id", res.Submission.ID, "error", err)
	}
	return status
}
