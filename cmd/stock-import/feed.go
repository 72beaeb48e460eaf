package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
)

// stockRow is one line of a stock feed: product_id,variant_id,quantity.
type stockRow struct {
	ProductID int64
	VariantID int64
	Quantity  int
}

type stockKey struct {
	productID int64
	variantID int64
}

// fileResult holds the rows of one feed file that passed the catalog filter,
// in file order.
type fileResult struct {
	rows    []stockRow
	scanned uint64
	skipped uint64
}

// parseLine parses a feed line. ok is false for blank lines, comments and
// the header.
func parseLine(line string) (row stockRow, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "product_id") {
		return stockRow{}, false, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) != 3 {
		return stockRow{}, false, errors.Errorf("expected 3 fields, got %d", len(fields))
	}
	if row.ProductID, err = strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64); err != nil || row.ProductID <= 0 {
		return stockRow{}, false, errors.Errorf("invalid product id %q", fields[0])
	}
	if row.VariantID, err = strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64); err != nil || row.VariantID < 0 {
		return stockRow{}, false, errors.Errorf("invalid variant id %q", fields[1])
	}
	if row.Quantity, err = strconv.Atoi(strings.TrimSpace(fields[2])); err != nil {
		return stockRow{}, false, errors.Errorf("invalid quantity %q", fields[2])
	}
	return row, true, nil
}

// newCatalogFilter builds a bloom filter of the known product ids.
func newCatalogFilter(ids []int64) *bloom.BloomFilter {
	n := uint(len(ids))
	if n == 0 {
		n = 1
	}
	filter := bloom.NewWithEstimates(n, bloomFPR)
	var buf [20]byte
	for _, id := range ids {
		filter.Add(idKey(buf[:0], id))
	}
	return filter
}

func idKey(buf []byte, id int64) []byte {
	return strconv.AppendInt(buf, id, 10)
}

// scanFile streams a gzipped feed and keeps the rows whose product may be in
// the catalog.
func scanFile(ctx context.Context, path string, filter *bloom.BloomFilter) (fileResult, error) {
	var res fileResult
	var buf [20]byte

	lineNo := 0
	err := streamGzFile(ctx, path, func(line string) error {
		lineNo++
		row, ok, err := parseLine(line)
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, lineNo)
		}
		if !ok {
			return nil
		}
		res.scanned++
		if !filter.Test(idKey(buf[:0], row.ProductID)) {
			res.skipped++
			return nil
		}
		res.rows = append(res.rows, row)
		return nil
	})
	return res, err
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// merge applies the file results in argument order, so a later file
// overrides an earlier one for the same product and variant.
func merge(results []fileResult) map[stockKey]int {
	merged := make(map[stockKey]int)
	for _, r := range results {
		for _, row := range r.rows {
			merged[stockKey{row.ProductID, row.VariantID}] = row.Quantity
		}
	}
	return merged
}
