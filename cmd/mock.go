package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/genlayer/internal/config"
	"github.com/crystaldolphin/genlayer/internal/container"
	"github.com/crystaldolphin/genlayer/internal/providers"
	"github.com/crystaldolphin/genlayer/internal/schema"
)

var (
	mockProvider string
	mockModel    string
	mockRole     string
	mockMessage  string
)

// mockCmd inspects the scripted mock backend.
var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Inspect the mock response database",
}

var mockLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Show the record the mock backend would answer with",
	RunE:  runMockLookup,
}

func init() {
	mockLookupCmd.Flags().StringVar(&mockProvider, "provider", "mock", "Mock provider key")
	mockLookupCmd.Flags().StringVar(&mockModel, "model", "default", "Model id (selects <model>.yaml)")
	mockLookupCmd.Flags().StringVar(&mockRole, "role", string(schema.RoleUser), "Role of the last message")
	mockLookupCmd.Flags().StringVar(&mockMessage, "message", "", "Content of the last message")
	mockCmd.AddCommand(mockLookupCmd)
}

func runMockLookup(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadWorkspace(rtwsDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c, err := container.New(rtwsDir, cfg)
	if err != nil {
		return err
	}

	p, err := cfg.ProviderByName(mockProvider)
	if err != nil {
		return err
	}
	if p.APIType != schema.APIMock {
		return &schema.ConfigError{Provider: p.Name, Reason: "provider is not a mock backend"}
	}
	gen, err := c.Registry().Lookup(schema.APIMock)
	if err != nil {
		return err
	}
	mock, ok := gen.(*providers.MockGenerator)
	if !ok {
		return fmt.Errorf("mock api type is served by %T", gen)
	}

	path := providers.MockDBPath(p.BaseURL, mockModel)
	rec, found, err := mock.Lookup(p.BaseURL, mockModel, mockRole, mockMessage)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("No record for %s:%q in %s\n", mockRole, mockMessage, path)
		return nil
	}

	fmt.Printf("Record in %s\n", path)
	fmt.Printf("  role:      %s\n", rec.Role)
	fmt.Printf("  message:   %s\n", rec.Message)
	if rec.Thinking != "" {
		fmt.Printf("  thinking:  %s\n", rec.Thinking)
	}
	fmt.Printf("  response:  %s\n", rec.Response)
	for _, fc := range rec.FuncCalls {
		fmt.Printf("  funcCall:  %s %s\n", fc.Name, fc.Arguments)
	}
	if rec.StreamError != "" {
		fmt.Printf("  streamErr: %s\n", rec.StreamError)
	}
	return nil
}
