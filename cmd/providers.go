package cmd

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/genlayer/internal/config"
	"github.com/crystaldolphin/genlayer/internal/providers"
	"github.com/crystaldolphin/genlayer/internal/shared/llmutils"
)

var providersShowModels bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show the provider catalog of the workspace",
	RunE:  runProviders,
}

func init() {
	providersCmd.Flags().BoolVar(&providersShowModels, "models", true, "List each provider's models")
}

func runProviders(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath(rtwsDir)

	fmt.Printf("%s genlayer providers\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗ (built-in defaults)"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:   %s %s\n", cfgPath, cfgMark)

	cfg, err := config.LoadWorkspace(rtwsDir)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	fmt.Printf("Default:  %s / %s\n\n", cfg.Defaults.Provider, cfg.Defaults.Model)

	fmt.Println("Providers:")
	for _, name := range cfg.ProviderNames() {
		p, _ := cfg.ProviderByName(name)
		label := name
		if spec := providers.FindVendor(name); spec != nil {
			label = spec.Label()
		}

		var cred string
		switch {
		case config.HasCredential(p) && p.APIKeyEnvVar != "":
			cred = "✓ " + p.APIKeyEnvVar
		case config.HasCredential(p):
			cred = "✓"
		default:
			cred = "(not set: " + llmutils.StringOrDefault(p.APIKeyEnvVar, "no apiKeyEnvVar") + ")"
		}
		fmt.Printf("  %-20s %-18s %s\n", label, p.APIType, cred)

		if !providersShowModels {
			continue
		}
		ids := make([]string, 0, len(p.Models))
		for id := range p.Models {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			info := p.Models[id]
			out := "-"
			if info.OutputLength > 0 {
				out = fmt.Sprintf("%d", info.OutputLength)
			}
			fmt.Printf("      %-32s out %-7s %s\n", id, out, llmutils.Truncate(info.Description, 50))
		}
	}
	return nil
}
