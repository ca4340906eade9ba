package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kart-io/studyrag/cmd/studyrag/app/options"
	"github.com/kart-io/studyrag/internal/assistant/biz"
	"github.com/kart-io/studyrag/internal/assistant/intent"
	"github.com/kart-io/studyrag/internal/assistant/store"
	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/internal/pkg/bookmatch"
	"github.com/kart-io/studyrag/pkg/llm"
)

// historyLimit caps the in-session history; the orchestrator only reads the
// trailing window anyway.
const historyLimit = 40

// chatSession holds the wired pipeline and the mutable session state:
// conversation history, subject, and generation model.
type chatSession struct {
	opts       *options.ServerOptions
	router     *llm.Router
	classifier intent.Classifier
	matcher    *bookmatch.Matcher
	searcher   *biz.Searcher
	store      store.VectorStore
	closeStore func()

	orchestrator *biz.Orchestrator
	subject      string
	model        string
	history      []model.Message
}

func (s *chatSession) close() {
	if s.closeStore != nil {
		s.closeStore()
	}
}

// chatLoop reads questions from stdin until EOF, /exit, or context cancel.
func (s *chatSession) chatLoop(ctx context.Context) error {
	fmt.Printf("StudyRAG — subject: %s, model: %s\n", s.subject, s.model)
	fmt.Println("Type a question, or /books, /subject <name>, /model <name>, /clear, /exit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		default:
		}

		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		s.ask(ctx, line)
	}
}

// handleCommand dispatches a slash command. Returns true to exit the loop.
func (s *chatSession) handleCommand(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/exit", "/quit":
		return true

	case "/books":
		books, err := s.orchestrator.GetBooks(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n\n", err)
			return false
		}
		if len(books) == 0 {
			fmt.Print("No books in the corpus.\n\n")
			return false
		}
		fmt.Printf("--- Books (%d) ---\n", len(books))
		for i, book := range books {
			fmt.Printf("  %d. %s\n", i+1, book)
		}
		fmt.Println()

	case "/subject":
		if arg == "" {
			fmt.Printf("Current subject: %s\n\n", s.subject)
			return false
		}
		s.subject = arg
		s.rebuild()
		fmt.Printf("Subject set to: %s\n\n", s.subject)

	case "/model":
		if arg == "" {
			fmt.Printf("Current model: %s\n", s.model)
			fmt.Print("Examples: gpt-5-mini, claude-3-5-haiku-latest, deepseek-chat\n\n")
			return false
		}
		s.model = arg
		s.rebuild()
		fmt.Printf("Model set to: %s\n\n", s.model)

	case "/clear":
		s.history = nil
		fmt.Print("History cleared.\n\n")

	default:
		fmt.Printf("Unknown command: %s\n\n", cmd)
	}
	return false
}

// ask runs one turn and records it in the session history.
func (s *chatSession) ask(ctx context.Context, query string) {
	fmt.Println("\nThinking...")

	result, err := s.orchestrator.Ask(ctx, query, s.history)
	if err != nil {
		fmt.Printf("Error: %v\n\n", err)
		return
	}

	fmt.Printf("\nAssistant: %s\n", result.Response)
	if len(result.Sources) > 0 {
		fmt.Printf("(%d sources, intent %s, %dms)\n", len(result.Sources), result.Intent, result.ProcessingMillis)
	}
	fmt.Println()

	s.history = append(s.history,
		model.Message{Role: model.RoleUser, Content: query},
		model.Message{Role: model.RoleAssistant, Content: result.Response},
	)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}
