package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"relay/internal/generate"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var (
		stream       bool
		systemPrompt string
		maxTokens    int
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message to the model",
		Long: `Send a message to the configured backend and print the response.

If no message is provided as an argument, an interactive chat session
starts. History, token budgeting and automatic compression are handled
per session.`,
		Example: `  # Send a single message
  relay chat "Hello, how are you?"

  # Stream the response
  relay chat --stream "Tell me a story"

  # Interactive chat
  relay chat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			if systemPrompt != "" {
				cliCtx.Config.Session.SystemPrompt = systemPrompt
			}
			if maxTokens > 0 {
				cliCtx.Config.Backend.MaxOutputTokens = maxTokens
			}

			session, err := cliCtx.NewSession()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return runInteractiveChat(cmd, session)
			}

			message := strings.Join(args, " ")
			if stream {
				return sendStreamingMessage(cmd, session, message)
			}
			return sendSyncMessage(cmd, session, message)
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt (overrides config)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "max output tokens (0 uses the model default)")

	return cmd
}

func sendSyncMessage(cmd *cobra.Command, session *generate.Session, message string) error {
	resp, err := session.Send(cmd.Context(), message)
	if err != nil {
		return err
	}

	fmt.Println(resp.Turn.Text())

	if resp.Turn.HasToolCalls() {
		fmt.Println("\n[Tool Calls]")
		for _, f := range resp.Turn.Fragments {
			if f.ToolCall != nil {
				fmt.Printf("- %s: %v\n", f.ToolCall.Name, f.ToolCall.Args)
			}
		}
	}

	return nil
}

func sendStreamingMessage(cmd *cobra.Command, session *generate.Session, message string) error {
	events, err := session.SendStream(cmd.Context(), message)
	if err != nil {
		return err
	}

	for ev := range events {
		switch ev.Type {
		case generate.EventTypeContent:
			fmt.Print(ev.Text)
		case generate.EventTypeToolCalls:
			for _, tc := range ev.ToolCalls {
				fmt.Printf("\n[Tool call: %s]\n", tc.Name)
			}
		case generate.EventTypeDone:
			fmt.Println()
		case generate.EventTypeError:
			return fmt.Errorf("stream error: %w", ev.Err)
		}
	}

	return nil
}

func runInteractiveChat(cmd *cobra.Command, session *generate.Session) error {
	fmt.Println("Relay Interactive Chat")
	fmt.Println("----------------------")
	fmt.Println("Type 'exit' or 'quit' to end the session")
	fmt.Println("Type 'clear' to start a new conversation")
	fmt.Println("Type 'stats' to show session statistics")
	fmt.Println("")

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("You: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		message := strings.TrimSpace(input)

		switch strings.ToLower(message) {
		case "exit", "quit":
			fmt.Println("Goodbye!")
			return nil
		case "clear":
			session.Clear()
			fmt.Println("Starting new conversation...")
			continue
		case "stats":
			printStats(session.Stats())
			continue
		case "":
			continue
		}

		fmt.Print("Model: ")
		events, err := session.SendStream(cmd.Context(), message)
		if err != nil {
			fmt.Printf("\nError: %v\n\n", err)
			continue
		}

		for ev := range events {
			switch ev.Type {
			case generate.EventTypeContent:
				fmt.Print(ev.Text)
			case generate.EventTypeToolCalls:
				for _, tc := range ev.ToolCalls {
					fmt.Printf("\n[Tool call: %s]\n", tc.Name)
				}
			case generate.EventTypeError:
				fmt.Printf("\nError: %v", ev.Err)
			}
		}
		fmt.Println()
	}
}

func printStats(stats generate.Stats) {
	fmt.Printf("Session:       %s\n", stats.SessionID)
	fmt.Printf("Turns:         %d (%d curated)\n", stats.Turns, stats.CuratedTurns)
	fmt.Printf("Tokens:        ~%d / %d\n", stats.EstimatedTokens, stats.ContextLimit)
	fmt.Printf("Compressions:  %d\n", stats.CompressionCount)
}
