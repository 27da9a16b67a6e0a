// Package ppca estimates a probabilistic principal component model
// with the expectation-maximization algorithm.
//
// The model is x = W z + noise, with a D×L loading matrix W, latent
// scores z and isotropic noise variance σ². The estimator derives its
// starting point deterministically from the eigendecomposition of the
// data's second-moment matrix, so no initial parameters are required
// beyond the target dimensionality. Observations are assumed to be
// centered by the caller.
//
// EstimateMissing fits the same model to data with missing entries,
// re-imputing them from the current model on every iteration.
package ppca

import (
	"fmt"
	"math"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/mat"

	"github.com/statml/emfit/linalg"
	"github.com/statml/emfit/model"
)

// minNoiseVariance floors the noise variance so that noise-free data
// keeps the likelihood finite.
const minNoiseVariance = 1e-12

// Options configures an estimation run.
type Options struct {
	// NumComponents is the latent dimensionality L; 1 <= L < D.
	NumComponents int
	// Tolerance is the convergence threshold on the change of the
	// total negative log-density. Must be positive.
	Tolerance float64
	// MaxIterations caps the iteration loop. Must be positive.
	// Reaching the cap is reported through Result.Converged, not as
	// an error.
	MaxIterations int
	// Verbose promotes per-iteration progress logging to the default
	// log level. No semantic effect.
	Verbose bool
	// RefreshSecondMoment re-derives the second-moment matrix from
	// the imputed data on every iteration of the missing-data
	// variant. By default the matrix computed at initialization from
	// the zero-filled data is kept for the whole run, matching the
	// classical procedure. Ignored when nothing is missing.
	RefreshSecondMoment bool
}

// Result holds the fitted model and run diagnostics.
type Result struct {
	// Loadings is D×L, orthonormalized and rotated to the eigenbasis
	// of the projected-score covariance. Column signs are not
	// identifiable across runs.
	Loadings *mat.Dense
	// Scores is N×L, the data projected onto the final loadings.
	Scores *mat.Dense
	// NoiseVariance is the fitted σ².
	NoiseVariance float64
	// Reconstruction is Scores · Loadingsᵀ (N×D).
	Reconstruction *mat.Dense
	// ReconstructionError is the total squared error between the
	// (imputed) data and the reconstruction.
	ReconstructionError float64
	// LogLikelihood is the data log-likelihood under the final model.
	LogLikelihood float64
	// Trace records the log-likelihood after every iteration.
	Trace []float64
	// Converged is false when MaxIterations was reached before the
	// tolerance criterion was met.
	Converged  bool
	Iterations int
}

type entry struct{ i, j int }

type estimator struct {
	x       *mat.Dense // N×D working copy; missing entries re-imputed
	n, d, l int

	s      *mat.SymDense // second-moment matrix
	w      *mat.Dense    // D×L loadings
	sigma2 float64

	z    mat.Dense     // L×N latent scores, posterior means
	m    *mat.SymDense // WᵀW + σ²I, cached by the E-step
	minv *mat.SymDense

	missing []entry
	refresh bool

	mon     *model.Monitor
	verbose bool
	trace   []float64
}

// Estimate fits the model to fully-observed data. Data containing
// non-finite entries is rejected; use EstimateMissing for data with
// missing values.
func Estimate(x mat.Matrix, opts Options) (*Result, error) {
	n, d := x.Dims()
	if err := validate(n, d, opts); err != nil {
		return nil, err
	}
	xd := mat.DenseCopyOf(x)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			if !isFinite(xd.At(i, j)) {
				return nil, fmt.Errorf("%w: non-finite entry at (%d,%d); use EstimateMissing for data with missing values",
					model.ErrInvalidConfig, i, j)
			}
		}
	}
	return run(xd, nil, opts)
}

// EstimateMissing fits the model to data with missing entries. Missing
// entries are marked either by NaN values in x (missing == nil) or by
// an explicit N×D boolean mask; observed entries are never modified.
// Missing entries are zero-filled before the second-moment matrix is
// first computed, then re-imputed from the current model before every
// M-step. The reported reconstruction error is measured against the
// imputed matrix.
//
// With no entries missing the result is identical to Estimate.
func EstimateMissing(x mat.Matrix, missing [][]bool, opts Options) (*Result, error) {
	n, d := x.Dims()
	if err := validate(n, d, opts); err != nil {
		return nil, err
	}
	xd := mat.DenseCopyOf(x)

	var miss []entry
	if missing != nil {
		if len(missing) != n {
			return nil, fmt.Errorf("%w: mask has %d rows, data has %d", model.ErrInvalidConfig, len(missing), n)
		}
		for i := 0; i < n; i++ {
			if len(missing[i]) != d {
				return nil, fmt.Errorf("%w: mask row %d has %d columns, data has %d",
					model.ErrInvalidConfig, i, len(missing[i]), d)
			}
			for j := 0; j < d; j++ {
				if missing[i][j] {
					miss = append(miss, entry{i, j})
					xd.Set(i, j, 0)
				} else if !isFinite(xd.At(i, j)) {
					return nil, fmt.Errorf("%w: non-finite observed entry at (%d,%d)", model.ErrInvalidConfig, i, j)
				}
			}
		}
	} else {
		for i := 0; i < n; i++ {
			for j := 0; j < d; j++ {
				if !isFinite(xd.At(i, j)) {
					miss = append(miss, entry{i, j})
					xd.Set(i, j, 0)
				}
			}
		}
	}
	return run(xd, miss, opts)
}

func validate(n, d int, opts Options) error {
	if n == 0 || d == 0 {
		return fmt.Errorf("%w: empty observation matrix", model.ErrInvalidConfig)
	}
	if opts.NumComponents < 1 || opts.NumComponents >= d {
		return fmt.Errorf("%w: components must satisfy 1 <= L < %d, got %d",
			model.ErrInvalidConfig, d, opts.NumComponents)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func run(x *mat.Dense, missing []entry, opts Options) (*Result, error) {
	mon, err := model.NewMonitor(opts.Tolerance, opts.MaxIterations)
	if err != nil {
		return nil, err
	}
	n, d := x.Dims()
	e := &estimator{
		x:       x,
		n:       n,
		d:       d,
		l:       opts.NumComponents,
		missing: missing,
		refresh: opts.RefreshSecondMoment && len(missing) > 0,
		mon:     mon,
		verbose: opts.Verbose,
	}
	if err := e.initialize(); err != nil {
		return nil, err
	}
	if err := e.eStep(0); err != nil {
		return nil, err
	}
	ll, err := e.logLikelihood(0)
	if err != nil {
		return nil, err
	}
	mon.Start([]float64{-ll})

	for {
		iter := mon.Iterations() + 1
		e.impute()
		if err := e.mStep(iter); err != nil {
			return nil, err
		}
		if err := e.eStep(iter); err != nil {
			return nil, err
		}
		ll, err = e.logLikelihood(iter)
		if err != nil {
			return nil, err
		}
		e.trace = append(e.trace, ll)
		if e.verbose {
			glog.Infof("ppca: iteration %d log-likelihood %f noise variance %e", iter, ll, e.sigma2)
		} else {
			glog.V(2).Infof("ppca: iteration %d log-likelihood %f noise variance %e", iter, ll, e.sigma2)
		}
		if mon.Step([]float64{-ll}).Terminal() {
			break
		}
	}
	return e.finish()
}

// initialize seeds the loadings and noise variance from the
// eigendecomposition of the second-moment matrix: σ² is the mean of
// the discarded eigenvalues and the loadings are the top-L
// eigenvectors scaled by sqrt(λ − σ²). This start is already close to
// a stationary point, which the convergence behavior relies on.
func (e *estimator) initialize() error {
	e.s = linalg.SecondMoment(e.x)
	vals, vecs, err := linalg.EigSym(e.s)
	if err != nil {
		return fmt.Errorf("ppca: initialization: %w", err)
	}
	var discarded float64
	for _, v := range vals[e.l:] {
		discarded += v
	}
	e.sigma2 = discarded / float64(e.d-e.l)
	if e.sigma2 < minNoiseVariance {
		e.sigma2 = minNoiseVariance
	}
	e.w = mat.NewDense(e.d, e.l, nil)
	for j := 0; j < e.l; j++ {
		scale := math.Sqrt(math.Max(vals[j]-e.sigma2, minNoiseVariance))
		for i := 0; i < e.d; i++ {
			e.w.Set(i, j, vecs.At(i, j)*scale)
		}
	}
	return nil
}

// eStep forms M = WᵀW + σ²I and solves for the posterior latent
// scores Z = M⁻¹WᵀXᵀ.
func (e *estimator) eStep(iter int) error {
	var wtw mat.Dense
	wtw.Mul(e.w.T(), e.w)
	m := mat.NewSymDense(e.l, nil)
	for i := 0; i < e.l; i++ {
		for j := i; j < e.l; j++ {
			m.SetSym(i, j, wtw.At(i, j))
		}
		m.SetSym(i, i, m.At(i, i)+e.sigma2)
	}
	minv, err := linalg.InvertSym(m)
	if err != nil {
		return fmt.Errorf("ppca: iteration %d: %w", iter, err)
	}
	e.m = m
	e.minv = minv

	var wx mat.Dense
	wx.Mul(e.w.T(), e.x.T())
	e.z.Reset()
	e.z.Mul(minv, &wx)
	return nil
}

// impute replaces every missing entry with the corresponding entry of
// W·Z from the previous E-step. Observed entries are never touched.
func (e *estimator) impute() {
	for _, m := range e.missing {
		var v float64
		for j := 0; j < e.l; j++ {
			v += e.w.At(m.j, j) * e.z.At(j, m.i)
		}
		e.x.Set(m.i, m.j, v)
	}
	if e.refresh {
		e.s = linalg.SecondMoment(e.x)
	}
}

// mStep updates the loadings and noise variance:
//
//	W' = S W (σ²I + M⁻¹WᵀSW)⁻¹
//	σ²' = tr(S − S W M⁻¹ W'ᵀ) / D
func (e *estimator) mStep(iter int) error {
	var sw mat.Dense
	sw.Mul(e.s, e.w) // D×L
	var wsw mat.Dense
	wsw.Mul(e.w.T(), &sw) // L×L
	var a mat.Dense
	a.Mul(e.minv, &wsw)
	for i := 0; i < e.l; i++ {
		a.Set(i, i, a.At(i, i)+e.sigma2)
	}

	// W' = S W A⁻¹, via the transposed system Aᵀ W'ᵀ = (S W)ᵀ.
	wt, err := linalg.Solve(a.T(), sw.T())
	if err != nil {
		return fmt.Errorf("ppca: iteration %d: %w", iter, err)
	}
	wNew := mat.DenseCopyOf(wt.T())

	var smw mat.Dense
	smw.Mul(&sw, e.minv) // S W M⁻¹, D×L
	var corr mat.Dense
	corr.Mul(&smw, wt) // D×D
	sigma2 := (linalg.Trace(e.s) - linalg.Trace(&corr)) / float64(e.d)
	if sigma2 < minNoiseVariance {
		sigma2 = minNoiseVariance
	}

	e.w = wNew
	e.sigma2 = sigma2
	return nil
}

// logLikelihood computes the marginal log-likelihood
// -N/2 (D ln 2π + ln|C| + tr(C⁻¹S)) with C = WWᵀ + σ²I, evaluated in
// the L-dimensional latent space: ln|C| = (D−L) ln σ² + ln|M| and
// tr(C⁻¹S) = (tr S − tr(M⁻¹WᵀSW)) / σ².
func (e *estimator) logLikelihood(iter int) (float64, error) {
	logDetM, err := linalg.LogDetSym(e.m)
	if err != nil {
		return 0, fmt.Errorf("ppca: iteration %d: %w", iter, err)
	}
	var sw, wsw, mwsw mat.Dense
	sw.Mul(e.s, e.w)
	wsw.Mul(e.w.T(), &sw)
	mwsw.Mul(e.minv, &wsw)

	logDetC := float64(e.d-e.l)*math.Log(e.sigma2) + logDetM
	trCS := (linalg.Trace(e.s) - linalg.Trace(&mwsw)) / e.sigma2
	return -float64(e.n) / 2 * (float64(e.d)*math.Log(2*math.Pi) + logDetC + trCS), nil
}

// finish runs the post-processing pass and assembles the result.
func (e *estimator) finish() (*Result, error) {
	loadings, scores, recon, errSq, err := postProcess(e.x, e.w)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Loadings:            loadings,
		Scores:              scores,
		NoiseVariance:       e.sigma2,
		Reconstruction:      recon,
		ReconstructionError: errSq,
		Trace:               e.trace,
		Converged:           e.mon.Converged(),
		Iterations:          e.mon.Iterations(),
	}
	if len(e.trace) > 0 {
		res.LogLikelihood = e.trace[len(e.trace)-1]
	}
	return res, nil
}

// postProcess orthonormalizes the loadings and rotates them to the
// eigenbasis of the covariance of the projected scores, so that the
// output is axis-aligned and comparable across runs up to sign. It
// then recomputes scores and reconstruction and the total squared
// reconstruction error. Applying it to an already-orthonormalized,
// axis-aligned loading matrix returns the same matrix up to sign.
func postProcess(x *mat.Dense, w *mat.Dense) (loadings, scores, recon *mat.Dense, errSq float64, err error) {
	q := linalg.Orthonormalize(w)

	var proj mat.Dense
	proj.Mul(x, q)
	_, rot, err := linalg.EigSym(linalg.Covariance(&proj))
	if err != nil {
		return nil, nil, nil, 0, err
	}

	loadings = &mat.Dense{}
	loadings.Mul(q, rot)
	scores = &mat.Dense{}
	scores.Mul(x, loadings)
	recon = &mat.Dense{}
	recon.Mul(scores, loadings.T())

	var diff mat.Dense
	diff.Sub(x, recon)
	f := mat.Norm(&diff, 2)
	return loadings, scores, recon, f * f, nil
}
