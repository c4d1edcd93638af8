package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootState struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	stdout  io.Writer
	stderr  io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	st := &rootState{v: viper.New(), stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "balancectl",
		Short:         "Consolidated balance sheet tooling",
		Long:          `balancectl consolidates entity ledgers into a Balance General and manages the background refresh queue.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.initConfig()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&st.cfgFile, "config", "c", "", "config file path (default is ./.balancectl.yaml)")
	flags.BoolVarP(&st.verbose, "verbose", "v", false, "enable verbose logging")
	flags.String("redis-addr", "127.0.0.1:6379", "Redis address of the job queue")
	_ = st.v.BindPFlag("redis_addr", flags.Lookup("redis-addr"))

	root.AddCommand(newConsolidateCmd(st), newRefreshCmd(st), newQueueCmd(st))
	return root
}

// initConfig reads the optional config file. Without one, flags and
// BALANCE360_* environment variables apply and the built-in profile is used.
func (st *rootState) initConfig() error {
	st.v.SetEnvPrefix("BALANCE360")
	st.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	st.v.AutomaticEnv()

	if st.cfgFile != "" {
		st.v.SetConfigFile(st.cfgFile)
	} else {
		st.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			st.v.AddConfigPath(home)
		}
		st.v.SetConfigName(".balancectl")
		st.v.SetConfigType("yaml")
	}

	if err := st.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	st.logger().Debug("config loaded", slog.String("file", st.v.ConfigFileUsed()))
	return nil
}

func (st *rootState) logger() *slog.Logger {
	if !st.verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(st.stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
