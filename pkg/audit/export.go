package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"veridion-hq/sentinel/pkg/policy"
)

// JSONExporter streams transition records as a JSON array.
type JSONExporter struct {
	// Pretty enables indented output.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export streams matching records from the trail to w as a JSON array.
// Records are encoded one at a time, so the export never holds the whole
// trail in memory.
func (e *JSONExporter) Export(ctx context.Context, trail Trail, q Query, w io.Writer) error {
	if _, err := w.Write([]byte("[")); err != nil {
		return NewExportError("json", 0, err)
	}

	count := 0
	err := trail.Scan(ctx, q, func(rec *policy.TransitionRecord) error {
		var data []byte
		var err error
		if e.Pretty {
			data, err = json.MarshalIndent(rec, "  ", "  ")
		} else {
			data, err = json.Marshal(rec)
		}
		if err != nil {
			return NewExportError("json", count, err)
		}

		if count > 0 {
			if _, err := w.Write([]byte(",")); err != nil {
				return NewExportError("json", count, err)
			}
		}
		if e.Pretty {
			if _, err := w.Write([]byte("\n  ")); err != nil {
				return NewExportError("json", count, err)
			}
		}
		if _, err := w.Write(data); err != nil {
			return NewExportError("json", count, err)
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	closing := "]"
	if e.Pretty && count > 0 {
		closing = "\n]"
	}
	if _, err := w.Write([]byte(closing)); err != nil {
		return NewExportError("json", count, err)
	}
	return nil
}

// CSVExporter streams transition records as CSV rows.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

func csvHeader() []string {
	return []string{"id", "policy_id", "policy_version", "from_state", "to_state", "reason", "triggered_by", "timestamp"}
}

func csvRow(rec *policy.TransitionRecord) []string {
	return []string{
		rec.ID,
		rec.PolicyID,
		strconv.FormatInt(rec.PolicyVersion, 10),
		rec.FromState,
		rec.ToState,
		rec.Reason,
		string(rec.TriggeredBy),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// Export streams matching records from the trail to w as CSV.
func (e *CSVExporter) Export(ctx context.Context, trail Trail, q Query, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(csvHeader()); err != nil {
			return NewExportError("csv", 0, err)
		}
	}

	count := 0
	err := trail.Scan(ctx, q, func(rec *policy.TransitionRecord) error {
		if err := writer.Write(csvRow(rec)); err != nil {
			return NewExportError("csv", count, err)
		}
		count++
		// Flush periodically so long exports show progress.
		if count%500 == 0 {
			writer.Flush()
			if err := writer.Error(); err != nil {
				return NewExportError("csv", count, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return NewExportError("csv", count, err)
	}
	return nil
}
