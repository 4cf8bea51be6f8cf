package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/ozpath/ozpath-api/internal/models"
)

// Dataset defines tabular export content with positional rows.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// CommissionDataset flattens commission records into the ledger export layout.
func CommissionDataset(records []models.CommissionRecord) Dataset {
	data := Dataset{
		Headers: []string{
			"transaction_ref", "application_id", "trigger_type", "currency",
			"total_cents", "platform_cents", "agent_cents", "applicant_cents",
			"payout_status", "triggered_at",
		},
		Rows: make([][]string, 0, len(records)),
	}
	for _, record := range records {
		data.Rows = append(data.Rows, []string{
			record.TransactionRef,
			record.ApplicationID,
			string(record.TriggerType),
			record.Currency,
			strconv.FormatInt(record.TotalAmountCents, 10),
			strconv.FormatInt(record.PlatformAmountCents, 10),
			strconv.FormatInt(record.AgentAmountCents, 10),
			strconv.FormatInt(record.ApplicantAmountCents, 10),
			string(record.PayoutStatus),
			record.TriggeredAt.UTC().Format(time.RFC3339),
		})
	}
	return data
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return nil, fmt.Errorf("csv row has %d cells, want %d", len(row), len(data.Headers))
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
