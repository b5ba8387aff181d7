package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var red = color.New(color.FgRed).SprintFunc()

var cfgFile string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "regvm",
		Short: "Compile and run syntax trees on the regvm register machine",
		Long: `regvm compiles JSON syntax trees to register bytecode and runs them
on a virtual machine backed by a garbage-collected heap.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			processGlobalFlags()
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.regvm.yaml)")
	pf.Bool("no-color", false, "Disable colored output")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error, disabled)")
	pf.Int("heap-size", 0, "Heap size budget in bytes (0 uses the default)")
	pf.Int("growth-budget", 0, "Bytes allocated between collections (0 uses the default)")
	pf.Bool("verify", false, "Verify bytecode before running it")
	for _, name := range []string{"no-color", "log-level", "heap-size", "growth-budget", "verify"} {
		viper.BindPFlag(name, pf.Lookup(name))
	}

	rootCmd.AddCommand(newRunCmd(), newDisCmd(), newVersionCmd())
	return rootCmd
}

// initConfig reads the config file and REGVM_* environment variables.
func initConfig() error {
	viper.SetEnvPrefix("regvm")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".regvm")
		viper.SetConfigType("yaml")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", configName(), err)
	}
	return nil
}

func configName() string {
	if cfgFile != "" {
		return filepath.Base(cfgFile)
	}
	return ".regvm.yaml"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fatal(err)
	}
}
