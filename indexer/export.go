package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID          int64  `parquet:"name=id, type=INT64"`
	Type        string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Market      string `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	OfferingID  int64  `parquet:"name=offering_id, type=INT64"`
	Seller      string `parquet:"name=seller, type=BYTE_ARRAY, convertedtype=UTF8"`
	Buyer       string `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price       string `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8"`
	Total       string `parquet:"name=total, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes  string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	Fingerprint string `parquet:"name=fingerprint, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecordedAt  string `parquet:"name=recorded_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes the entries matching f to a Snappy-compressed Parquet
// file at path and returns the number of rows written.
func (i *Index) ExportParquet(ctx context.Context, path string, f Filter) (int, error) {
	entries, err := i.Query(ctx, f)
	if err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, entry := range entries {
		attrs, err := json.Marshal(entry.Attributes)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return 0, err
		}
		row := &parquetRow{
			ID:          entry.ID,
			Type:        entry.Type,
			Market:      entry.Market,
			OfferingID:  int64(entry.OfferingID),
			Seller:      entry.Attributes["seller"],
			Buyer:       entry.Attributes["buyer"],
			Price:       entry.Attributes["price"],
			Total:       entry.Attributes["total"],
			Attributes:  string(attrs),
			Fingerprint: entry.Fingerprint,
			RecordedAt:  entry.RecordedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return len(entries), nil
}
