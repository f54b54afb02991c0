package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cometsong/mbiome-dataplots/pkg/rundir"
	"github.com/spf13/cobra"
)

var treeRecursive bool

var treeCmd = &cobra.Command{
	Use:   "tree <path>",
	Short: "List a run directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree := rundir.MakeTree(args[0], treeRecursive)
		printTree(cmd.OutOrStdout(), tree, 0)

		if tree.Err != "" {
			return fmt.Errorf("%s", tree.Err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.Flags().BoolVarP(&treeRecursive, "recursive", "r", false,
		"expand sub-directories")
}

func printTree(w io.Writer, n rundir.Node, depth int) {
	indent := strings.Repeat("  ", depth)

	switch {
	case n.Err != "":
		_, _ = fmt.Fprintf(w, "%s! %s\n", indent, n.Err)
	case n.IsDir:
		_, _ = fmt.Fprintf(w, "%s%s/\n", indent, n.Base())
	default:
		_, _ = fmt.Fprintf(w, "%s%s  %s\n", indent, n.Base(), n.HumanSize())
	}

	for _, c := range n.Contents {
		printTree(w, c, depth+1)
	}
}
