package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/statml/emfit/floatx"
)

// readMatrix reads a CSV file into a dense matrix. Empty fields and
// the markers "NA" and "NaN" become NaN; the missing-data estimator
// treats those entries as missing.
func readMatrix(fn string) (*mat.Dense, error) {
	if fn == "" {
		return nil, fmt.Errorf("no data file given, use --data")
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("data file %s is empty", fn)
	}

	rows := floatx.MakeFloat2D(len(records), len(records[0]))
	for i, rec := range records {
		if len(rec) != len(records[0]) {
			return nil, fmt.Errorf("row %d has %d fields, want %d", i, len(rec), len(records[0]))
		}
		for j, field := range rec {
			switch field {
			case "", "NA", "NaN":
				rows[i][j] = math.NaN()
			default:
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d field %d: %w", i, j, err)
				}
				rows[i][j] = v
			}
		}
	}
	n, d := floatx.Check2D(rows)
	return mat.NewDense(n, d, floatx.Flatten2D(rows)), nil
}
