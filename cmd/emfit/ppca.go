package main

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/statml/emfit"
	"github.com/statml/emfit/model/ppca"
)

func ppcaCommand() *cobra.Command {
	var (
		components int
		missing    bool
		refresh    bool
	)
	cmd := &cobra.Command{
		Use:   "ppca",
		Short: "Fit a probabilistic principal component model",
		Long: `Fits a probabilistic PCA model to the observation matrix.

With --missing, empty or NA fields in the CSV are treated as missing
entries and imputed from the model on every iteration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyPPCAConfig(cmd, cfg.PPCA, &components, &missing, &refresh)

			x, err := readMatrix(dataFile)
			if err != nil {
				return err
			}

			opts := ppca.Options{
				NumComponents:       components,
				Tolerance:           tol,
				MaxIterations:       maxIter,
				Verbose:             verbose,
				RefreshSecondMoment: refresh,
			}
			var res *ppca.Result
			if missing {
				res, err = ppca.EstimateMissing(x, nil, opts)
			} else {
				res, err = ppca.Estimate(x, opts)
			}
			if err != nil {
				return err
			}
			if !res.Converged {
				glog.Warningf("did not converge after %d iterations", res.Iterations)
			}
			fmt.Printf("converged=%v iterations=%d log-likelihood=%f noise-variance=%e reconstruction-error=%f\n",
				res.Converged, res.Iterations, res.LogLikelihood, res.NoiseVariance, res.ReconstructionError)
			if outFile != "" {
				return writePPCAResult(outFile, res)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&components, "components", "l", 1, "latent dimensionality")
	cmd.Flags().BoolVar(&missing, "missing", false, "treat empty/NA fields as missing entries")
	cmd.Flags().BoolVar(&refresh, "refresh-s", false, "recompute the second-moment matrix from the imputed data each iteration")
	return cmd
}

func applyPPCAConfig(cmd *cobra.Command, cfg emfit.PPCAConfig, components *int, missing, refresh *bool) {
	if cfg.Components > 0 && !cmd.Flags().Changed("components") {
		*components = cfg.Components
	}
	if cfg.Tolerance > 0 && !cmd.Flags().Changed("tol") {
		tol = cfg.Tolerance
	}
	if cfg.MaxIterations > 0 && !cmd.Flags().Changed("max-iter") {
		maxIter = cfg.MaxIterations
	}
	if cfg.Missing && !cmd.Flags().Changed("missing") {
		*missing = true
	}
	if cfg.RefreshSecondMoment && !cmd.Flags().Changed("refresh-s") {
		*refresh = true
	}
}

// ppcaResult is the JSON export shape.
type ppcaResult struct {
	Loadings            [][]float64 `json:"loadings"`
	NoiseVariance       float64     `json:"noise_variance"`
	ReconstructionError float64     `json:"reconstruction_error"`
	LogLikelihood       float64     `json:"log_likelihood"`
	Converged           bool        `json:"converged"`
	Iterations          int         `json:"iterations"`
}

func writePPCAResult(fn string, res *ppca.Result) error {
	d, l := res.Loadings.Dims()
	out := ppcaResult{
		Loadings:            make([][]float64, d),
		NoiseVariance:       res.NoiseVariance,
		ReconstructionError: res.ReconstructionError,
		LogLikelihood:       res.LogLikelihood,
		Converged:           res.Converged,
		Iterations:          res.Iterations,
	}
	for i := 0; i < d; i++ {
		out.Loadings[i] = make([]float64, l)
		for j := 0; j < l; j++ {
			out.Loadings[i][j] = res.Loadings.At(i, j)
		}
	}
	return emfit.WriteJSONFile(fn, out)
}
