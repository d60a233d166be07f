package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	ctl "github.com/samsaffron/roundtable/internal/chat"
	"github.com/samsaffron/roundtable/internal/config"
	"github.com/samsaffron/roundtable/internal/store"
	"github.com/samsaffron/roundtable/internal/ui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved conversations",
	Long: `List, search, show, delete, and export saved conversations.

Examples:
  roundtable sessions                       # list recent conversations
  roundtable sessions list --provider anthropic
  roundtable sessions search "kubernetes"
  roundtable sessions show <id>
  roundtable sessions delete <id>
  roundtable sessions export <id> [path.md]`,
	RunE: runSessionsList, // Default to list
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE:  runSessionsList,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search across conversations",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionsSearch,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id> [path]",
	Short: "Export a conversation as markdown",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSessionsExport,
}

var (
	sessionsProvider string
	sessionsLimit    int
	sessionsJSON     bool
)

func init() {
	sessionsListCmd.Flags().StringVar(&sessionsProvider, "provider", "", "Filter by provider")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Max conversations to list")
	sessionsListCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")
	sessionsCmd.Flags().StringVar(&sessionsProvider, "provider", "", "Filter by provider")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Max conversations to list")
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsSearchCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openStore() (store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return store.New(false, cfg.Store.Path)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	summaries, err := st.List(ctx, store.ListOptions{
		Provider: sessionsProvider,
		Limit:    sessionsLimit,
	})
	if err != nil {
		return err
	}

	if sessionsJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No conversations saved yet.")
		return nil
	}

	styles := ui.DefaultStyles()
	for _, s := range summaries {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n        %s\n",
			styles.Bold.Render(shortID(s.ID)),
			ui.Truncate(title, 70),
			styles.Muted.Render(fmt.Sprintf("%s/%s · %d messages · %s",
				s.Provider, s.Model, s.MessageCount, humanTime(s.UpdatedAt))))
	}
	return nil
}

func runSessionsSearch(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	query := strings.Join(args, " ")
	results, err := st.Search(context.Background(), query, 20)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No matches for %q.\n", query)
		return nil
	}

	styles := ui.DefaultStyles()
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n        %s\n",
			styles.Bold.Render(shortID(r.ConversationID)),
			ui.Truncate(title, 70),
			ui.Truncate(r.Snippet, 100))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	conv, messages, err := loadConversation(ctx, st, args[0])
	if err != nil {
		return err
	}

	styles := ui.DefaultStyles()
	title := conv.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n\n",
		styles.Title.Render(title),
		styles.Muted.Render(fmt.Sprintf("%s · %s/%s · %s",
			conv.ID, conv.Provider, conv.Model, humanTime(conv.UpdatedAt))))

	for _, msg := range messages {
		switch msg.Role {
		case ctl.RoleUser:
			fmt.Fprintln(cmd.OutOrStdout(), styles.UserMsg.Render("❯ "+msg.Content))
		case ctl.RoleAssistant:
			if msg.AgentName != "" {
				fmt.Fprintln(cmd.OutOrStdout(), styles.AgentTag.Render(msg.AgentName))
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMarkdown(msg.Content, 100))
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	conv, err := resolveConversation(ctx, st, args[0])
	if err != nil {
		return err
	}
	if err := st.Delete(ctx, conv.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", shortID(conv.ID))
	return nil
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	conv, messages, err := loadConversation(ctx, st, args[0])
	if err != nil {
		return err
	}

	path := shortID(conv.ID) + ".md"
	if len(args) > 1 {
		path = args[1]
	}

	var sb strings.Builder
	title := conv.Title
	if title == "" {
		title = "Conversation " + shortID(conv.ID)
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "*%s/%s · %s*\n\n", conv.Provider, conv.Model, conv.UpdatedAt.Format("2006-01-02 15:04"))

	for _, msg := range messages {
		switch msg.Role {
		case ctl.RoleUser:
			fmt.Fprintf(&sb, "## User\n\n%s\n\n", msg.Content)
		case ctl.RoleAssistant:
			heading := "Assistant"
			if msg.AgentName != "" {
				heading = msg.AgentName
			}
			fmt.Fprintf(&sb, "## %s\n\n%s\n\n", heading, msg.Content)
		}
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s.\n", path)
	return nil
}

// resolveConversation accepts a full id or an unambiguous prefix.
func resolveConversation(ctx context.Context, st store.Store, id string) (*store.Conversation, error) {
	conv, err := st.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	summaries, err := st.List(ctx, store.ListOptions{Limit: 1000})
	if err != nil {
		return nil, err
	}
	var match *store.Conversation
	for _, s := range summaries {
		if strings.HasPrefix(s.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous id prefix %q", id)
			}
			match, err = st.Get(ctx, s.ID)
			if err != nil {
				return nil, err
			}
		}
	}
	if match == nil {
		return nil, fmt.Errorf("conversation %q not found", id)
	}
	return match, nil
}

func loadConversation(ctx context.Context, st store.Store, id string) (*store.Conversation, []ctl.ChatMessage, error) {
	conv, err := resolveConversation(ctx, st, id)
	if err != nil {
		return nil, nil, err
	}
	messages, err := st.Messages(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
