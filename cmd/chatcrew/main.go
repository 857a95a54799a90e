package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"chatcrew/internal/agent"
	"chatcrew/internal/commands"
	"chatcrew/internal/config"
	"chatcrew/internal/history"
	"chatcrew/internal/logger"
	"chatcrew/internal/mention"
	"chatcrew/internal/orchestrator"
	"chatcrew/internal/roles"
)

var (
	boldText   = color.New(color.Bold)
	errorText  = color.New(color.FgRed)
	statusText = color.New(color.Faint)
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		errorText.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var sessionName, loadSession string

	cmd := &cobra.Command{
		Use:           "chatcrew",
		Short:         "Chat with multiple configured roles at once",
		Long:          "chatcrew routes each input line to one or more configured roles (@Tech, @Creative, ...) and answers concurrently.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(sessionName, loadSession)
		},
	}
	cmd.Flags().StringVar(&sessionName, "session", "", "name for this chat session")
	cmd.Flags().StringVar(&loadSession, "load", "", "previous session to resume")
	return cmd
}

func run(sessionName, loadSession string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	dir, err := roles.NewDirectory(func() (map[string]config.RoleConfig, error) {
		c, err := config.Load()
		if err != nil {
			return nil, err
		}
		return c.Roles, nil
	})
	if err != nil {
		return err
	}

	name := sessionName
	if loadSession != "" {
		name = loadSession
	}

	var store *history.Store
	sink, err := history.NewSQLiteSink(cfg.History.DBPath)
	if err != nil {
		logger.L.Warn("history persistence unavailable; running in-memory only", "error", err)
		store = history.New(name, cfg.History.MaxMessages, nil)
	} else {
		defer sink.Close()
		store = history.New(name, cfg.History.MaxMessages, sink)
	}

	if loadSession != "" && !store.Load(loadSession) {
		errorText.Fprintf(os.Stderr, "Warning: could not load session %q\n", loadSession)
	}

	orch := orchestrator.New(dir, agent.NewOpenAICaller(cfg.OpenAI), store, orchestrator.Options{
		CallTimeout: time.Duration(cfg.Dispatch.CallTimeoutSeconds) * time.Second,
		Grace:       time.Duration(cfg.Dispatch.GraceSeconds) * time.Second,
		Progress: func(role, status string) {
			statusText.Fprintf(os.Stderr, "%s: %s\n", role, status)
		},
	})

	return repl(cfg, store, orch, commands.NewProcessor(store, dir))
}

func repl(cfg *config.Config, store *history.Store, orch *orchestrator.Orchestrator, proc *commands.Processor) error {
	fmt.Println("Welcome to chatcrew!")
	fmt.Printf("Current session: %s\n", boldText.Sprint(store.SessionID()))
	fmt.Println("Type /help for available commands.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		// a Ctrl-C pressed at the prompt only deserves a hint
		select {
		case <-sigCh:
			fmt.Println("Use 'exit' or 'quit' to exit the application.")
		default:
		}

		boldText.Print("\nYou: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit", "/exit", "/quit":
			fmt.Println("Goodbye!")
			return nil
		}

		if proc.IsCommand(line) {
			fmt.Println(proc.Process(line))
			continue
		}

		instructions := mention.Parse(line)
		if len(instructions) == 0 {
			continue
		}

		for _, inst := range instructions {
			store.Append(history.SpeakerUser, mention.FormatUserTurn(inst.Role, inst.Text))
		}

		dispatch(store, orch, sigCh, instructions, cfg.History.ContextWindow)
	}
}

// dispatch runs one instruction batch. An interrupt while the batch is in
// flight cancels it; completed answers are still shown.
func dispatch(store *history.Store, orch *orchestrator.Orchestrator, sigCh <-chan os.Signal, instructions []mention.Instruction, contextWindow int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-sigCh:
			errorText.Fprintln(os.Stderr, "\nCancelling responses...")
			cancel()
		case <-watchDone:
		}
	}()

	results := orch.Dispatch(ctx, instructions, store.Snapshot(contextWindow))

	for _, res := range results {
		switch res.Outcome {
		case orchestrator.OutcomeOk:
			fmt.Printf("\n%s:\n%s\n", boldText.Sprint(res.Role), res.Content)
		default:
			fmt.Printf("\n%s: %s\n", boldText.Sprint(res.Role), errorText.Sprint(res.Content))
		}
	}

	if ctx.Err() != nil {
		store.Append(history.SpeakerSystem, "Response generation was cancelled by user")
	}
}
