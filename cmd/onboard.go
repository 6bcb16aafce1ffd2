package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/genlayer/internal/config"
	"github.com/crystaldolphin/genlayer/internal/providers"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write the provider catalog and a sample mock database into the workspace",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath(rtwsDir)

	// Load, not LoadWorkspace: the saved mock baseURL stays workspace-relative.
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(cfgPath)
	if err := config.Save(cfg, cfgPath); err != nil {
		return err
	}
	if statErr == nil {
		fmt.Printf("✓ Config refreshed at %s\n", cfgPath)
	} else {
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	mockDir := filepath.Join(rtwsDir, config.DefaultMockDir)
	if err := os.MkdirAll(mockDir, 0o755); err != nil {
		return fmt.Errorf("create mock database dir: %w", err)
	}
	dbPath := providers.MockDBPath(mockDir, "default")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		data, err := yaml.Marshal(sampleMockDB())
		if err != nil {
			return fmt.Errorf("marshal sample mock database: %w", err)
		}
		if err := os.WriteFile(dbPath, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dbPath, err)
		}
		fmt.Printf("  Created %s\n", dbPath)
	}

	fmt.Printf("\n%s genlayer is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Export the API key variables listed by: genlayer providers --rtws %s\n", rtwsDir)
	fmt.Printf("  2. Try offline: genlayer generate -p mock --prompt hello --rtws %s\n", rtwsDir)
	return nil
}

func sampleMockDB() providers.MockDB {
	return providers.MockDB{Responses: []providers.MockRecord{
		{
			Role:     "user",
			Message:  "hello",
			Thinking: "The user greets me.",
			Response: "Hello from the mock backend!",
		},
		{
			Role:     "user",
			Message:  "what time is it?",
			Response: "Let me check.",
			FuncCalls: []providers.MockFuncCall{
				{Name: "clock", Arguments: `{"tz":"UTC"}`},
			},
		},
	}}
}
