package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/genlayer/internal/config"
	"github.com/crystaldolphin/genlayer/internal/container"
	"github.com/crystaldolphin/genlayer/internal/schema"
	"github.com/crystaldolphin/genlayer/internal/shared/cmdutils"
	"github.com/crystaldolphin/genlayer/internal/shared/llmutils"
)

var (
	genProvider     string
	genModel        string
	genPrompt       string
	genSystem       string
	genDialog       string
	genAgent        string
	genBatch        bool
	genRepeat       int
	genParallel     bool
	genShowThinking bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one generation against a configured provider",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genProvider, "provider", "p", "", "Provider key (default: matched from the model)")
	generateCmd.Flags().StringVarP(&genModel, "model", "m", "", "Model id (default: catalog default)")
	generateCmd.Flags().StringVar(&genPrompt, "prompt", "", "User message to send")
	generateCmd.Flags().StringVar(&genSystem, "system", "", "System prompt")
	generateCmd.Flags().StringVar(&genDialog, "dialog", "", "Dialog id (default: random)")
	generateCmd.Flags().StringVar(&genAgent, "agent", "", "Agent id whose model params apply")
	generateCmd.Flags().BoolVar(&genBatch, "batch", false, "Use batch mode instead of streaming")
	generateCmd.Flags().IntVarP(&genRepeat, "repeat", "n", 1, "Number of generations to run")
	generateCmd.Flags().BoolVar(&genParallel, "parallel", false, "Give each repetition its own dialog id")
	generateCmd.Flags().BoolVar(&genShowThinking, "thinking", true, "Print thinking output")
	_ = generateCmd.MarkFlagRequired("prompt")
}

// resolveTarget picks provider, model and agent spec from flags and catalog.
func resolveTarget(cfg *config.Config) (*schema.ProviderConfig, schema.AgentSpec, error) {
	agentID := genAgent
	if agentID == "" {
		agentID = cfg.Defaults.Agent
	}
	agent := cfg.Agent(agentID)

	model := genModel
	if model == "" {
		model = agent.Model
	}
	if model == "" {
		model = cfg.Defaults.Model
	}

	var (
		p   *schema.ProviderConfig
		err error
	)
	if genProvider != "" {
		p, err = cfg.ProviderByName(genProvider)
	} else {
		p, err = cfg.MatchProvider(model)
	}
	if err != nil {
		return nil, agent, err
	}
	if genModel == "" && genProvider != "" {
		if _, ok := p.Model(model); !ok && len(p.Models) > 0 {
			ids := make([]string, 0, len(p.Models))
			for id := range p.Models {
				ids = append(ids, id)
			}
			slices.Sort(ids)
			model = ids[0]
		}
	}
	agent.Model = model
	return p, agent, nil
}

func runGenerate(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadWorkspace(rtwsDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c, err := container.New(rtwsDir, cfg)
	if err != nil {
		return err
	}

	provider, agent, err := resolveTarget(cfg)
	if err != nil {
		return err
	}
	gen, err := c.Registry().For(provider)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if genRepeat < 1 {
		genRepeat = 1
	}
	dialogID := genDialog
	if dialogID == "" {
		dialogID = uuid.NewString()
	}

	fmt.Fprintf(os.Stderr, "%s %s/%s (%s) dialog %s\n", logo, provider.Name, agent.Model, provider.APIType, dialogID)

	const genseq = 1
	req := schema.GenRequest{
		Provider:     provider,
		Agent:        &agent,
		SystemPrompt: genSystem,
		Context:      []schema.Message{schema.NewPromptingMessage(genseq, uuid.NewString(), genPrompt)},
		Genseq:       genseq,
	}

	receivers := cmdutils.NewConsoleReceivers(os.Stdout, genRepeat, genseq, genShowThinking)
	mutexes := c.DialogMutexes()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < genRepeat; i++ {
		id := dialogID
		if genParallel && i > 0 {
			id = uuid.NewString()
		}
		recv := receivers[i]
		g.Go(func() error {
			return mutexes.RunWithLock(gctx, id, func(ctx context.Context) error {
				var (
					msgs []schema.Message
					res  schema.GenResult
					err  error
				)
				if genBatch {
					msgs, res, err = gen.GenerateBatch(ctx, req)
					cmdutils.PrintMessages(os.Stdout, recv.Label, msgs, genShowThinking)
				} else {
					res, err = gen.GenerateStreaming(ctx, req, recv)
					msgs = recv.Messages()
				}
				if err != nil {
					return fmt.Errorf("%s: %w", recv.Label, err)
				}
				if hint := llmutils.ToolHint(msgs); hint != "" {
					fmt.Fprintf(os.Stderr, "  ↳ [%s] requested %s\n", recv.Label, hint)
				}
				printUsage(recv.Label, res)
				return nil
			})
		})
	}
	return g.Wait()
}

func printUsage(label string, res schema.GenResult) {
	if !res.Usage.Available() {
		fmt.Fprintf(os.Stderr, "  ↳ [%s] usage unavailable\n", label)
		return
	}
	model := res.Model
	if model == "" {
		model = "-"
	}
	fmt.Fprintf(os.Stderr, "  ↳ [%s] model %s, tokens prompt=%d completion=%d total=%d\n",
		label, model, res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.TotalTokens)
}
