package saver

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/brensch/dumpstats/internal/counters"
)

// CounterRow is one counter as stored in Parquet.
type CounterRow struct {
	Key   string  `parquet:"name=key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value float64 `parquet:"name=value, type=DOUBLE"`
}

// ParquetFile is a counter sink writing (key, value) rows sorted by key.
// The file is written next to Path and renamed into place.
type ParquetFile struct {
	Path string
}

func (p ParquetFile) WriteCounters(values map[string]float64) error {
	if err := p.write(values); err != nil {
		return &counters.OutputWriteError{Path: p.Path, Err: err}
	}
	return nil
}

func (p ParquetFile) write(values map[string]float64) (err error) {
	tmp := p.Path + ".tmp"
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, new(CounterRow), 1)
	if err != nil {
		return errors.Join(fmt.Errorf("create parquet writer: %w", err), fw.Close())
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := pw.Write(CounterRow{Key: k, Value: values[k]}); err != nil {
			return errors.Join(fmt.Errorf("write row %s: %w", k, err), fw.Close())
		}
	}
	if err := pw.WriteStop(); err != nil {
		return errors.Join(fmt.Errorf("finish parquet file: %w", err), fw.Close())
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}
	return os.Rename(tmp, p.Path)
}
