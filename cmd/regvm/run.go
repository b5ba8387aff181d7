package main

import (
	"fmt"

	"github.com/deepnoodle-ai/regvm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [tree.json]",
		Short: "Compile and run a JSON syntax tree",
		Long: `Compile and run a JSON syntax tree and print its result.

The tree is read from the given file, or from stdin when the path is "-"
or omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTree,
	}
	cmd.Flags().StringP("output", "o", "", "Output format (json, text)")
	cmd.Flags().Int("max-frames", 0, "Maximum nested call frames (0 uses the default)")
	cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return outputFormatsCompletion, cobra.ShellCompDirectiveNoFileComp
	})
	viper.BindPFlag("output", cmd.Flags().Lookup("output"))
	return cmd
}

func runTree(cmd *cobra.Command, args []string) error {
	tree, filename, err := readTree(cmd, args)
	if err != nil {
		return err
	}
	opts, err := regvmOptions(filename)
	if err != nil {
		return err
	}
	if n, _ := cmd.Flags().GetInt("max-frames"); n > 0 {
		opts = append(opts, regvm.WithMaxFrameDepth(n))
	}
	result, err := regvm.Eval(tree, opts...)
	if err != nil {
		return err
	}
	output, err := getOutput(result, viper.GetString("output"))
	if err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintln(cmd.OutOrStdout(), output)
	}
	return nil
}
