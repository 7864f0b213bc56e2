package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/records-cli/internal/classify"
	"github.com/sells-group/records-cli/internal/intake"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <url>",
	Short: "Show the form type a URL routes to",
	Args:  cobra.ExactArgs(1),
	// Pure function of its input: no config or logger needed.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")
		printClassification(os.Stdout, args[0], desc)
		return nil
	},
}

func printClassification(w io.Writer, url, description string) {
	routed := classify.URL(url)
	hinted, conf := classify.WithConfidence(url, description)
	fmt.Fprintf(w, "form type:  %s\n", routed)
	if hinted != routed {
		fmt.Fprintf(w, "hint:       %s\n", hinted)
	}
	fmt.Fprintf(w, "confidence: %.2f\n", conf)
}

var inputsCmd = &cobra.Command{
	Use:   "inputs <file>",
	Short: "Summarize an input file by form type and state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := intake.ReadEntries(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		formatInputStats(os.Stdout, intake.Summarize(entries))
		return nil
	},
}

func init() {
	classifyCmd.Flags().String("description", "", "free-text description used as a hint")
	rootCmd.AddCommand(classifyCmd, inputsCmd)
}
