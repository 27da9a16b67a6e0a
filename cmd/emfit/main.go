// Command emfit estimates latent-variable model parameters from a CSV
// observation matrix.
//
// ex:
//
//	$ emfit gmm --data obs.csv --clusters 2
//	$ emfit ppca --data obs.csv --components 3 --missing
//
// Settings may also come from a YAML config file; flags take
// precedence.
package main

import (
	goflag "flag"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/statml/emfit"
)

var (
	cfgFile  string
	dataFile string
	outFile  string
	tol      float64
	maxIter  int
	verbose  bool
)

func main() {
	root := &cobra.Command{
		Use:          "emfit",
		Short:        "EM estimation for latent-variable statistical models",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVarP(&dataFile, "data", "d", "", "CSV file with the observation matrix")
	root.PersistentFlags().StringVarP(&outFile, "out", "o", "", "write the result as JSON to this file")
	root.PersistentFlags().Float64Var(&tol, "tol", 1e-6, "convergence tolerance")
	root.PersistentFlags().IntVar(&maxIter, "max-iter", 100, "maximum number of iterations")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress on every iteration")
	root.PersistentFlags().AddGoFlagSet(goflag.CommandLine)

	root.AddCommand(gmmCommand(), ppcaCommand())

	defer glog.Flush()
	if err := root.Execute(); err != nil {
		glog.Error(err)
		glog.Flush()
		os.Exit(1)
	}
}

// loadConfig reads the optional YAML config file.
func loadConfig() (*emfit.Config, error) {
	if cfgFile == "" {
		return &emfit.Config{}, nil
	}
	return emfit.ReadConfig(cfgFile)
}
