package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ctl "github.com/samsaffron/roundtable/internal/chat"
	"github.com/samsaffron/roundtable/internal/config"
	"github.com/samsaffron/roundtable/internal/llm"
	"github.com/samsaffron/roundtable/internal/roundtable"
	"github.com/samsaffron/roundtable/internal/signal"
	"github.com/samsaffron/roundtable/internal/store"
	"github.com/samsaffron/roundtable/internal/ui"
)

var discussCmd = &cobra.Command{
	Use:   "discuss <prompt>",
	Short: "Run a multi-agent discussion",
	Long: `Put a prompt to a roundtable of agents. Agents take turns in config
order; each sees the others' turns and replies from its own perspective.

Configure agents under "roundtable:" in the config file:

  roundtable:
    rounds: 2
    agents:
      - name: optimist
        model: claude-sonnet-4-5
        instructions: Argue for the idea.
      - name: skeptic
        provider: openai
        instructions: Argue against the idea.

Example:
  roundtable discuss "should we rewrite it in Rust?"
  roundtable discuss --rounds 3 "tabs or spaces"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscuss,
}

var (
	discussRounds int
	discussNoSave bool
)

func init() {
	discussCmd.Flags().IntVar(&discussRounds, "rounds", 0, "Volleys per prompt (0 = config default)")
	discussCmd.Flags().BoolVar(&discussNoSave, "no-save", false, "Don't persist the transcript")
	rootCmd.AddCommand(discussCmd)
}

func runDiscuss(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(cfg.Roundtable.Agents) < 2 {
		return fmt.Errorf("configure at least two agents under roundtable.agents (see %s)", configPathHint())
	}

	agents, err := buildAgents(cfg)
	if err != nil {
		return err
	}

	rounds := cfg.Roundtable.Rounds
	if discussRounds > 0 {
		rounds = discussRounds
	}

	styles := ui.DefaultStyles()
	out := cmd.OutOrStdout()

	var currentAgent string
	orch, err := roundtable.New(agents, roundtable.Options{
		Rounds:          rounds,
		MaxOutputTokens: cfg.Chat.MaxOutputTokens,
		OnEvent: func(agent string, event llm.Event) {
			if agent != currentAgent {
				currentAgent = agent
				fmt.Fprintf(out, "\n\n%s\n", styles.AgentTag.Render("◆ "+agent))
			}
			if event.Type == llm.EventTextDelta {
				fmt.Fprint(out, event.Text)
			}
		},
	})
	if err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	transcript, runErr := orch.Run(ctx, prompt)
	fmt.Fprintln(out)

	if len(transcript) > 1 && !discussNoSave && !cfg.Store.Disabled {
		if err := saveTranscript(cfg, transcript); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to save transcript: %v\n", err)
		}
	}
	return runErr
}

// buildAgents wires one provider per configured agent. Each agent gets its own
// config view so model overrides don't leak between agents sharing a provider.
func buildAgents(cfg *config.Config) ([]roundtable.Agent, error) {
	agents := make([]roundtable.Agent, 0, len(cfg.Roundtable.Agents))
	for _, a := range cfg.Roundtable.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("every roundtable agent needs a name")
		}
		agentCfg := *cfg
		agentCfg.ApplyOverrides(a.Provider, a.Model)

		provider, err := llm.NewProvider(&agentCfg, "")
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.Name, err)
		}
		agents = append(agents, roundtable.Agent{
			Name:         a.Name,
			Provider:     agentCfg.Provider,
			Model:        activeModel(&agentCfg),
			Instructions: a.Instructions,
			Transport:    provider,
		})
	}
	return agents, nil
}

func saveTranscript(cfg *config.Config, transcript []ctl.ChatMessage) error {
	st, err := store.New(false, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conv := &store.Conversation{
		ID:       store.NewID(),
		Provider: cfg.Provider,
		Model:    "roundtable",
	}
	if err := st.Create(ctx, conv); err != nil {
		return err
	}
	return st.SaveMessages(ctx, conv.ID, transcript)
}

func configPathHint() string {
	path, err := config.GetConfigPath()
	if err != nil {
		return "config file"
	}
	return path
}
