package utils

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Reference sheets (MLS id list, brand mapping, validated phones, zipcodes)
// are whole-file CSV downloads from the media bucket; there is no streaming
// consumer for them.

func getStorageClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// DownloadCSV fetches an object from the media bucket and parses it as CSV.
func DownloadCSV(ctx context.Context, objectName string) ([][]string, error) {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}

	client, err := getStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	reader, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("download %q: %w", objectName, err)
	}
	defer reader.Close()

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	return csvReader.ReadAll()
}

// DownloadCSVRecords reads a CSV whose first row is a header and returns one
// map per data row.
func DownloadCSVRecords(ctx context.Context, objectName string) ([]map[string]string, error) {
	rows, err := DownloadCSV(ctx, objectName)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return CSVRecords(rows), nil
}

// CSVRecords converts header-prefixed CSV rows into maps keyed by header.
func CSVRecords(rows [][]string) []map[string]string {
	if len(rows) == 0 {
		return nil
	}
	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				record[name] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}
