package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsVerbose bool

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List available models",
	Long: `List all models from configured providers.

Examples:
  lodestar models              # List all models
  lodestar models anthropic    # List only Anthropic models
  lodestar models --verbose    # Include pricing`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVarP(&modelsVerbose, "verbose", "v", false, "Include pricing information")
}

func runModels(cmd *cobra.Command, args []string) error {
	workDir, err := workingDir("")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := buildApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.close()

	var providerFilter string
	if len(args) > 0 {
		providerFilter = args[0]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if modelsVerbose {
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tMAX OUTPUT\tINPUT PRICE\tOUTPUT PRICE\t")
	} else {
		fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tFEATURES\t")
	}

	for _, model := range a.providers.AllModels() {
		if providerFilter != "" && model.ProviderID != providerFilter {
			continue
		}
		if modelsVerbose {
			fmt.Fprintf(w, "%s\t%s\t%dk\t%d\t$%.2f/1M\t$%.2f/1M\t\n",
				model.ProviderID, model.ID, model.ContextLength/1000,
				model.MaxOutputTokens, model.InputPrice, model.OutputPrice)
			continue
		}
		features := ""
		if model.SupportsTools {
			features += "tools "
		}
		if model.SupportsReasoning {
			features += "reasoning "
		}
		fmt.Fprintf(w, "%s\t%s\t%dk\t%s\t\n",
			model.ProviderID, model.ID, model.ContextLength/1000, features)
	}
	return w.Flush()
}
