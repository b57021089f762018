// Package report renders campaign results as CSV, summary statistics, a PNG
// scatter plot and an interactive HTML chart.
package report

import (
	"encoding/csv"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/glitch.report/internal/campaign"
)

// WriteCSV writes one row per trial: seq, one column per axis, then the
// classification.
func WriteCSV(w io.Writer, res *campaign.Result) error {
	cw := csv.NewWriter(w)
	header := append([]string{"seq"}, res.Axes...)
	header = append(header, "repeat", "outcome", "reason", "payload", "error_code", "recovered", "at")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, rec := range res.Records() {
		row := make([]string, 0, len(header))
		row = append(row, strconv.Itoa(rec.Seq))
		for _, name := range res.Axes {
			v, _ := rec.Setting.Get(name)
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		at := ""
		if !rec.At.IsZero() {
			at = rec.At.UTC().Format(time.RFC3339Nano)
		}
		row = append(row,
			strconv.Itoa(rec.Repeat),
			string(rec.Outcome),
			string(rec.Reason),
			hex.EncodeToString(rec.Payload),
			strconv.Itoa(rec.ErrorCode),
			strconv.FormatBool(rec.Recovered),
			at,
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
