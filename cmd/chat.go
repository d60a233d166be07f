package cmd

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	ctl "github.com/samsaffron/roundtable/internal/chat"
	"github.com/samsaffron/roundtable/internal/config"
	"github.com/samsaffron/roundtable/internal/llm"
	"github.com/samsaffron/roundtable/internal/mcp"
	"github.com/samsaffron/roundtable/internal/signal"
	"github.com/samsaffron/roundtable/internal/store"
	"github.com/samsaffron/roundtable/internal/tools"
	tuichat "github.com/samsaffron/roundtable/internal/tui/chat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive streaming chat session.

Examples:
  roundtable chat
  roundtable chat --provider openai --model gpt-5-mini
  roundtable chat --resume            # continue the last conversation
  roundtable chat --no-save           # don't persist this conversation`,
	RunE: runChat,
}

var (
	chatProvider string
	chatModel    string
	chatNoSave   bool
	chatResume   bool
	chatMaxTurns int
)

func init() {
	chatCmd.Flags().StringVarP(&chatProvider, "provider", "p", "", "Provider to use (anthropic, openai, ollama, lmstudio)")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model to use")
	chatCmd.Flags().BoolVar(&chatNoSave, "no-save", false, "Don't persist this conversation")
	chatCmd.Flags().BoolVar(&chatResume, "resume", false, "Resume the most recent conversation")
	chatCmd.Flags().IntVar(&chatMaxTurns, "max-turns", 0, "Max tool turns per request (0 = config default)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext()
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(chatProvider, chatModel)

	provider, err := llm.NewProvider(cfg, "")
	if err != nil {
		return err
	}
	modelName := activeModel(cfg)

	registry := tools.DefaultRegistry()

	var manager *mcp.Manager
	if len(cfg.MCPServers) > 0 {
		manager = mcp.NewManager(mcpServerConfigs(cfg))
		manager.EnableAll(ctx)
		defer manager.StopAll()
		mcp.RegisterMCPTools(manager, registry)
	}

	engine := llm.NewEngine(provider, registry)

	st, err := store.New(cfg.Store.Disabled || chatNoSave, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	conv, err := openConversation(ctx, st, cfg.Provider, modelName)
	if err != nil {
		return err
	}

	maxTurns := cfg.Chat.MaxTurns
	if chatMaxTurns > 0 {
		maxTurns = chatMaxTurns
	}

	session := ctl.NewSession(engine, ctl.Options{
		Model:           modelName,
		Instructions:    cfg.Chat.Instructions,
		MaxOutputTokens: cfg.Chat.MaxOutputTokens,
		MaxTurns:        maxTurns,
		SessionID:       conv.ID,
		CancelTimeout:   time.Duration(cfg.Chat.CancelTimeout) * time.Second,
		OnTurnSaved: func(messages []ctl.ChatMessage) {
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := st.SaveMessages(saveCtx, conv.ID, messages); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to save conversation: %v\n", err)
			}
		},
	})
	defer session.Close()

	if chatResume {
		messages, err := st.Messages(ctx, conv.ID)
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}
		if err := session.Store().Replace(messages); err != nil {
			return err
		}
	}

	program := tea.NewProgram(
		tuichat.New(session, cfg.Provider, modelName),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// openConversation resumes the current conversation or starts a new one and
// marks it current.
func openConversation(ctx context.Context, st store.Store, provider, model string) (*store.Conversation, error) {
	if chatResume {
		conv, err := st.GetCurrent(ctx)
		if err != nil {
			return nil, err
		}
		if conv == nil {
			return nil, fmt.Errorf("no conversation to resume")
		}
		return conv, nil
	}

	conv := &store.Conversation{
		ID:       store.NewID(),
		Provider: provider,
		Model:    model,
	}
	if err := st.Create(ctx, conv); err != nil {
		return nil, err
	}
	if err := st.SetCurrent(ctx, conv.ID); err != nil {
		return nil, err
	}
	return conv, nil
}

// activeModel returns the configured model for the active provider.
func activeModel(cfg *config.Config) string {
	switch cfg.Provider {
	case "anthropic":
		return cfg.Anthropic.Model
	case "openai":
		return cfg.OpenAI.Model
	case "ollama":
		return cfg.Ollama.Model
	case "lmstudio":
		return cfg.LMStudio.Model
	default:
		return ""
	}
}

func mcpServerConfigs(cfg *config.Config) []mcp.ServerConfig {
	servers := make([]mcp.ServerConfig, 0, len(cfg.MCPServers))
	for _, s := range cfg.MCPServers {
		servers = append(servers, mcp.ServerConfig{
			Name:    s.Name,
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
		})
	}
	return servers
}
