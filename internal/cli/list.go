package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tpodg/serverkit/internal/task"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeOperations(cmd.OutOrStdout(), getApp(cmd).Catalog)
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <operation>",
	Short: "Show the parameters of an operation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := getApp(cmd).Catalog.Lookup(args[0])
		if err != nil {
			return err
		}
		return describeOperation(cmd.OutOrStdout(), op)
	},
}

func writeOperations(w io.Writer, c *task.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, op := range c.Operations() {
		fmt.Fprintf(tw, "%s\t%s\n", op.Key, op.Summary)
	}
	return tw.Flush()
}

func describeOperation(w io.Writer, op task.Operation) error {
	defaults, err := op.Defaults()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: %s\n", op.Key, op.Summary)
	if len(op.Params) == 0 {
		fmt.Fprintln(w, "\nNo parameters.")
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAMETER\tDEFAULT\tDESCRIPTION")
	for _, p := range op.Params {
		def := "-"
		switch value, ok := defaults[p.Key]; {
		case p.Required:
			def = "(required)"
		case ok:
			def = formatDefault(value)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Key, def, p.Description)
	}
	return tw.Flush()
}

func formatDefault(value any) string {
	switch v := value.(type) {
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return "{" + strings.Join(keys, " ") + "}"
	default:
		return fmt.Sprint(v)
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(describeCmd)
}
