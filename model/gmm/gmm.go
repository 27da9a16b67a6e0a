// Package gmm estimates the parameters of a multivariate Gaussian
// mixture model with the expectation-maximization algorithm.
//
// The caller supplies the observation matrix, one initial Component
// per cluster and the convergence settings. Each call owns its working
// state exclusively, so independent runs may execute concurrently on
// their own inputs. Poor initial parameters can converge to degenerate
// or non-global optima; choosing a restart policy is the caller's
// concern.
package gmm

import (
	"fmt"
	"math"
	"sync"

	"github.com/golang/glog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/statml/emfit/floatx"
	"github.com/statml/emfit/linalg"
	"github.com/statml/emfit/model"
)

// Component is the caller-supplied initial state of one mixture
// cluster.
type Component struct {
	Mean       []float64
	Covariance *mat.SymDense
	Weight     float64
}

// Options configures an estimation run.
type Options struct {
	// NumClusters is K. Must be at least 2 and match len(init).
	NumClusters int
	// Tolerance is the convergence threshold on the progress
	// signature distance. Must be positive.
	Tolerance float64
	// MaxIterations caps the iteration loop. Must be positive.
	// Reaching the cap is reported through Result.Converged, not as
	// an error.
	MaxIterations int
	// Verbose promotes per-iteration progress logging to the default
	// log level. No semantic effect.
	Verbose bool
}

// Result holds the estimated parameters and run diagnostics.
type Result struct {
	// Means holds one row per cluster.
	Means [][]float64
	// Covariances holds the per-cluster covariance matrices.
	Covariances []*mat.SymDense
	// Weights holds the mixing weights; non-negative, summing to one.
	Weights []float64
	// Responsibilities is N×K; each row is a distribution over the
	// clusters for that observation.
	Responsibilities *mat.Dense
	// Assignments maps each observation to its arg-max responsibility
	// cluster. Ties break to the lowest cluster index.
	Assignments []int
	// LogLikelihood is the total data log-likelihood under the final
	// parameters.
	LogLikelihood float64
	// Trace records the log-likelihood after every iteration.
	Trace []float64
	// Converged is false when MaxIterations was reached before the
	// tolerance criterion was met.
	Converged  bool
	Iterations int
	// Signature is the final progress signature: per-cluster weighted
	// negative mean log-density terms followed by the mixing weights.
	Signature []float64
}

// DegenerateClusterError reports a cluster whose effective membership
// collapsed, leaving a numerically singular covariance estimate.
// Recovery (regularization, restart) is a caller decision.
type DegenerateClusterError struct {
	Cluster   int
	Iteration int
	Err       error
}

func (e *DegenerateClusterError) Error() string {
	return fmt.Sprintf("gmm: degenerate cluster %d at iteration %d: %v", e.Cluster, e.Iteration, e.Err)
}

func (e *DegenerateClusterError) Unwrap() error { return e.Err }

type estimator struct {
	x       *mat.Dense // N×D working copy of the observations
	n, d, k int

	means   *mat.Dense // K×D
	covs    []*mat.SymDense
	weights []float64
	logW    []float64
	norms   []*distmv.Normal

	resp  *mat.Dense // N×K, rows sum to one
	wsum  []float64  // per-cluster sum of r_ik * log N(x_i | k)
	fpool *floatx.Pool

	mon   *model.Monitor
	trace []float64
}

// Estimate runs EM until the convergence monitor stops it and returns
// the final parameters with diagnostics. Reaching the iteration cap is
// not an error; inspect Result.Converged.
func Estimate(x mat.Matrix, init []Component, opts Options) (*Result, error) {
	n, d := x.Dims()
	if err := validate(n, d, init, opts); err != nil {
		return nil, err
	}
	mon, err := model.NewMonitor(opts.Tolerance, opts.MaxIterations)
	if err != nil {
		return nil, err
	}

	e := newEstimator(x, init, mon)
	if err := e.refreshDensities(0); err != nil {
		return nil, err
	}
	e.eStep()
	mon.Start(e.signature())

	for {
		iter := mon.Iterations() + 1
		e.mStep()
		if err := e.refreshDensities(iter); err != nil {
			return nil, err
		}
		ll := e.eStep()
		e.trace = append(e.trace, ll)
		if opts.Verbose {
			glog.Infof("gmm: iteration %d log-likelihood %f", iter, ll)
		} else {
			glog.V(2).Infof("gmm: iteration %d log-likelihood %f", iter, ll)
		}
		if mon.Step(e.signature()).Terminal() {
			break
		}
	}
	return e.result(), nil
}

func validate(n, d int, init []Component, opts Options) error {
	if opts.NumClusters < 2 {
		return fmt.Errorf("%w: need at least 2 clusters, got %d", model.ErrInvalidConfig, opts.NumClusters)
	}
	if len(init) != opts.NumClusters {
		return fmt.Errorf("%w: %d initial components for %d clusters", model.ErrInvalidConfig, len(init), opts.NumClusters)
	}
	if n == 0 || d == 0 {
		return fmt.Errorf("%w: empty observation matrix", model.ErrInvalidConfig)
	}
	var wsum float64
	for k, c := range init {
		if len(c.Mean) != d {
			return fmt.Errorf("%w: component %d mean has %d elements, data has %d", model.ErrInvalidConfig, k, len(c.Mean), d)
		}
		if c.Covariance == nil {
			return fmt.Errorf("%w: component %d has no covariance matrix", model.ErrInvalidConfig, k)
		}
		if cd, _ := c.Covariance.Dims(); cd != d {
			return fmt.Errorf("%w: component %d covariance is %d×%d, data has %d features", model.ErrInvalidConfig, k, cd, cd, d)
		}
		if c.Weight < 0 {
			return fmt.Errorf("%w: component %d has negative weight %g", model.ErrInvalidConfig, k, c.Weight)
		}
		wsum += c.Weight
	}
	if math.Abs(wsum-1) > 1e-6 {
		return fmt.Errorf("%w: mixing weights sum to %g, want 1", model.ErrInvalidConfig, wsum)
	}
	return nil
}

func newEstimator(x mat.Matrix, init []Component, mon *model.Monitor) *estimator {
	n, d := x.Dims()
	k := len(init)
	e := &estimator{
		x:       mat.DenseCopyOf(x),
		n:       n,
		d:       d,
		k:       k,
		means:   mat.NewDense(k, d, nil),
		covs:    make([]*mat.SymDense, k),
		weights: make([]float64, k),
		logW:    make([]float64, k),
		norms:   make([]*distmv.Normal, k),
		resp:    mat.NewDense(n, k, nil),
		wsum:    make([]float64, k),
		fpool:   floatx.NewPool(n),
		mon:     mon,
	}
	for j, c := range init {
		copy(e.means.RawRowView(j), c.Mean)
		cov := mat.NewSymDense(d, nil)
		cov.CopySym(c.Covariance)
		e.covs[j] = cov
		e.weights[j] = c.Weight
	}
	floatx.Apply(floatx.Log, e.weights, e.logW)
	return e
}

// refreshDensities rebuilds the per-cluster Gaussian densities from
// the current means and covariances. A covariance that is not positive
// definite surfaces as a DegenerateClusterError; it is never silently
// replaced with a pseudo-inverse.
func (e *estimator) refreshDensities(iter int) error {
	for j := range e.norms {
		norm, ok := distmv.NewNormal(e.means.RawRowView(j), e.covs[j], nil)
		if !ok {
			return &DegenerateClusterError{Cluster: j, Iteration: iter, Err: linalg.ErrSingular}
		}
		e.norms[j] = norm
	}
	return nil
}

// eStep recomputes the responsibility matrix under the current
// parameters and returns the total data log-likelihood. Rows are
// normalized in log space; a row whose unnormalized responsibilities
// all underflow to zero falls back to a uniform assignment instead of
// dividing by zero.
func (e *estimator) eStep() float64 {
	var ll float64
	lp := make([]float64, e.k)
	floatx.Clear(e.wsum)
	for i := 0; i < e.n; i++ {
		obs := e.x.RawRowView(i)
		for j, norm := range e.norms {
			lp[j] = e.logW[j] + norm.LogProb(obs)
		}
		lse := floats.LogSumExp(lp)
		r := e.resp.RawRowView(i)
		if math.IsInf(lse, -1) {
			floatx.Apply(floatx.SetValueFunc(1/float64(e.k)), r, nil)
			continue
		}
		ll += lse
		for j := range r {
			r[j] = math.Exp(lp[j] - lse)
			if r[j] > 0 {
				e.wsum[j] += r[j] * (lp[j] - e.logW[j])
			}
		}
	}
	return ll
}

// mStep re-estimates weights, means and covariances from the current
// responsibilities. The per-cluster updates are independent and fan
// out to one goroutine per cluster with a barrier before the caller
// continues.
func (e *estimator) mStep() {
	var wg sync.WaitGroup
	for j := 0; j < e.k; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			e.updateCluster(j)
		}(j)
	}
	wg.Wait()
	floatx.Apply(floatx.Log, e.weights, e.logW)
}

func (e *estimator) updateCluster(j int) {
	r := e.fpool.Get()
	defer e.fpool.Put(r)
	mat.Col(r, j, e.resp)

	// Effective cluster size and mixing weight.
	nj := floats.Sum(r)
	e.weights[j] = nj / float64(e.n)

	// Responsibility-weighted mean.
	mean := e.means.RawRowView(j)
	floatx.Clear(mean)
	for i := 0; i < e.n; i++ {
		if r[i] == 0 {
			continue
		}
		floats.AddScaled(mean, r[i], e.x.RawRowView(i))
	}
	floats.Scale(1/nj, mean)

	// Weighted outer-product average minus the outer product of the
	// new mean. Symmetric by construction.
	cov := mat.NewSymDense(e.d, nil)
	for i := 0; i < e.n; i++ {
		if r[i] == 0 {
			continue
		}
		cov.SymRankOne(cov, r[i]/nj, mat.NewVecDense(e.d, e.x.RawRowView(i)))
	}
	cov.SymRankOne(cov, -1, mat.NewVecDense(e.d, mean))
	e.covs[j] = cov
}

// signature concatenates the per-cluster weighted negative mean
// log-density terms with the mixing weights.
func (e *estimator) signature() []float64 {
	sig := make([]float64, 0, 2*e.k)
	for j := 0; j < e.k; j++ {
		sig = append(sig, -e.wsum[j]/float64(e.n))
	}
	return append(sig, e.weights...)
}

func (e *estimator) result() *Result {
	res := &Result{
		Means:            floatx.MakeFloat2D(e.k, e.d),
		Covariances:      e.covs,
		Weights:          e.weights,
		Responsibilities: e.resp,
		Assignments:      make([]int, e.n),
		Trace:            e.trace,
		Converged:        e.mon.Converged(),
		Iterations:       e.mon.Iterations(),
		Signature:        e.signature(),
	}
	for j := 0; j < e.k; j++ {
		copy(res.Means[j], e.means.RawRowView(j))
	}
	for i := 0; i < e.n; i++ {
		res.Assignments[i] = floats.MaxIdx(e.resp.RawRowView(i))
	}
	if len(e.trace) > 0 {
		res.LogLikelihood = e.trace[len(e.trace)-1]
	}
	return res
}
