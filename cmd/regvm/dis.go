package main

import (
	"github.com/deepnoodle-ai/regvm"
	"github.com/deepnoodle-ai/regvm/dis"
	"github.com/spf13/cobra"
)

func newDisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dis [tree.json]",
		Short: "Disassemble the bytecode compiled from a JSON syntax tree",
		Args:  cobra.MaximumNArgs(1),
		RunE:  disTree,
	}
}

func disTree(cmd *cobra.Command, args []string) error {
	tree, filename, err := readTree(cmd, args)
	if err != nil {
		return err
	}
	opts, err := regvmOptions(filename)
	if err != nil {
		return err
	}
	chunk, err := regvm.Compile(tree, opts...)
	if err != nil {
		return err
	}
	instructions, err := dis.Disassemble(chunk)
	if err != nil {
		return err
	}
	dis.Print(instructions, cmd.OutOrStdout())
	return nil
}
