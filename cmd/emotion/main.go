package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sentivox/go-emotion/training"
)

var (
	configPath string
	verbose    bool

	log = logrus.New()
)

func main() {
	// A .env next to the binary can point the asset roots elsewhere.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "emotion",
		Short:         "Train and evaluate speech emotion classifiers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "run configuration file (json or yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	train := &cobra.Command{
		Use:   "train",
		Short: "Run a training simulation from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("a config file is required, pass -c")
			}
			return training.Train(configPath, log)
		},
	}

	test := &cobra.Command{
		Use:   "test",
		Short: "Evaluate the best saved model on the test split",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("a config file is required, pass -c")
			}
			return training.Test(configPath, log)
		},
	}

	root.AddCommand(train, test)

	if err := root.Execute(); err != nil {
		log.WithField("error", xerrors.New(err)).Error("run failed")
		os.Exit(1)
	}
}
