// Package roundtable runs multi-agent conversations: several configured
// agents take turns responding to a shared transcript, round-robin, for a
// fixed number of rounds.
package roundtable

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/roundtable/internal/chat"
	"github.com/samsaffron/roundtable/internal/llm"
)

// Agent is one participant. Its transport is already bound to a provider and
// model by the caller.
type Agent struct {
	Name         string
	Provider     string
	Model        string
	Instructions string
	Transport    chat.Streamer
}

// Options configure a volley.
type Options struct {
	Rounds          int
	MaxOutputTokens int

	// OnEvent receives raw stream events per agent, for live display.
	OnEvent func(agent string, event llm.Event)
	// OnTurn receives each completed turn.
	OnTurn func(message chat.ChatMessage)
}

// Orchestrator drives the volley. It is single-use: one Run per value.
type Orchestrator struct {
	agents   []Agent
	opts     Options
	messages []chat.ChatMessage
}

// New creates an orchestrator over the given agents.
func New(agents []Agent, opts Options) (*Orchestrator, error) {
	if len(agents) < 2 {
		return nil, fmt.Errorf("roundtable needs at least 2 agents, got %d", len(agents))
	}
	if opts.Rounds <= 0 {
		opts.Rounds = 1
	}
	return &Orchestrator{agents: agents, opts: opts}, nil
}

// Messages returns the transcript accumulated so far.
func (o *Orchestrator) Messages() []chat.ChatMessage {
	out := make([]chat.ChatMessage, len(o.messages))
	copy(out, o.messages)
	return out
}

// Run seeds the transcript with the prompt and lets each agent speak once per
// round. Returns the full transcript; on error the partial transcript is
// still returned.
func (o *Orchestrator) Run(ctx context.Context, prompt string) ([]chat.ChatMessage, error) {
	o.messages = append(o.messages, chat.NewUserMessage(prompt))

	for round := 0; round < o.opts.Rounds; round++ {
		for _, agent := range o.agents {
			if err := ctx.Err(); err != nil {
				return o.Messages(), err
			}
			msg, err := o.takeTurn(ctx, agent)
			if err != nil {
				return o.Messages(), fmt.Errorf("agent %s: %w", agent.Name, err)
			}
			o.messages = append(o.messages, msg)
			if o.opts.OnTurn != nil {
				o.opts.OnTurn(msg)
			}
		}
	}
	return o.Messages(), nil
}

// takeTurn streams one reply from an agent against the shared transcript.
func (o *Orchestrator) takeTurn(ctx context.Context, agent Agent) (chat.ChatMessage, error) {
	req := o.buildRequest(agent)

	stream, err := agent.Transport.Stream(ctx, req)
	if err != nil {
		return chat.ChatMessage{}, err
	}
	defer stream.Close()

	msg := chat.NewAssistantMessage()
	msg.AgentName = agent.Name
	msg.AgentProvider = agent.Provider

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return msg, nil
		}
		if err != nil {
			return msg, err
		}
		switch event.Type {
		case llm.EventTextDelta:
			msg.Content += event.Text
		case llm.EventReasoningDelta:
			msg.Thinking += event.Text
		case llm.EventUsage:
			if event.Use != nil {
				msg.InputTokens += event.Use.InputTokens
				msg.OutputTokens += event.Use.OutputTokens
			}
		}
		if o.opts.OnEvent != nil {
			o.opts.OnEvent(agent.Name, event)
		}
	}
}

// buildRequest renders the shared transcript from one agent's perspective:
// its own past turns are assistant messages, everyone else's are user
// messages labeled with the speaker.
func (o *Orchestrator) buildRequest(agent Agent) llm.Request {
	var msgs []llm.Message

	instructions := agent.Instructions
	if instructions == "" {
		instructions = fmt.Sprintf("You are %s, one voice in a group discussion.", agent.Name)
	}
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\nThe other participants are: ")
	var others []string
	for _, a := range o.agents {
		if a.Name != agent.Name {
			others = append(others, a.Name)
		}
	}
	sb.WriteString(strings.Join(others, ", "))
	sb.WriteString(". Messages from them are labeled with their name. Respond as yourself; do not prefix your reply with your own name.")
	msgs = append(msgs, llm.SystemText(sb.String()))

	for _, m := range o.messages {
		switch {
		case m.Role == chat.RoleUser:
			msgs = append(msgs, llm.UserText(m.Content))
		case m.AgentName == agent.Name:
			msgs = append(msgs, llm.AssistantText(m.Content))
		default:
			msgs = append(msgs, llm.UserText(fmt.Sprintf("%s: %s", m.AgentName, m.Content)))
		}
	}

	return llm.Request{
		Model:           agent.Model,
		Messages:        msgs,
		MaxOutputTokens: o.opts.MaxOutputTokens,
	}
}
