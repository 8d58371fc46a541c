// Package export renders audit records for operator tooling.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/fieldserv/matchd/core/audit"
)

// WriteJSON writes the audit records to w in JSON format.
func WriteJSON(w io.Writer, recs []audit.Record) error {
	enc := json.NewEncoder(w)
	return enc.Encode(recs)
}

// WriteCSV writes the audit records to w as CSV with one row per record.
func WriteCSV(w io.Writer, recs []audit.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "request_id", "provider_id", "service_type", "priority", "status", "escalated", "outcome", "score"}); err != nil {
		return err
	}
	for _, r := range recs {
		providerID, outcome, score := "", "", ""
		if r.Attempt != nil {
			providerID = r.Attempt.ProviderID
			outcome = r.Attempt.Outcome.String()
			score = strconv.FormatFloat(r.Attempt.Score, 'f', -1, 64)
		}
		rec := []string{
			r.Timestamp.Format(time.RFC3339),
			r.RequestID,
			providerID,
			r.ServiceType,
			r.Priority,
			r.Status,
			strconv.FormatBool(r.Escalated),
			outcome,
			score,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
