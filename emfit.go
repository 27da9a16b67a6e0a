// Package emfit estimates the parameters of latent-variable
// statistical models with the expectation-maximization algorithm.
//
// The estimators live in the model subpackages: model/gmm fits
// multivariate Gaussian mixtures and model/ppca fits probabilistic
// principal component models, including data with missing entries.
// This package holds the configuration types used by the emfit command
// and a few helpers shared by the package tests.
package emfit

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
)

// Comparef64 returns true if |f2-f1| / (|f1+f2|/2 + 1) < tol.
func Comparef64(f1, f2, tol float64) bool {
	avg := math.Abs(f1+f2) / 2.0
	return math.Abs(f2-f1)/(avg+1) < tol
}

// CompareSliceFloat compares slices elementwise using Comparef64.
func CompareSliceFloat(s1, s2 []float64, tol float64) bool {
	if len(s1) != len(s2) {
		return false
	}
	for i, v := range s1 {
		if !Comparef64(v, s2[i], tol) {
			return false
		}
	}
	return true
}

// WriteJSONFile writes v to a JSON file, creating directories as needed.
func WriteJSONFile(fn string, v interface{}) error {
	if e := os.MkdirAll(filepath.Dir(fn), 0755); e != nil {
		return e
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ReadJSONFile decodes a JSON file into v.
func ReadJSONFile(fn string, v interface{}) error {
	f, err := os.Open(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(v)
}
