// Command voiceturns is a hands-free voice assistant for the terminal: it
// listens on the microphone, answers with an LLM and speaks the answer,
// letting the user interrupt at any time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/koscakluka/ema-voice/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voiceturns:", err)
		os.Exit(1)
	}
}

func run() error {
	printSchema := flag.Bool("config-schema", false, "print the JSON schema of the configuration and exit")
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if *printSchema {
		schema, err := config.Schema()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(os.Stdout, string(schema))
		return err
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logFile, err := tea.LogToFile(cfg.LogFile, "voiceturns")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assistant, err := newAssistant(cfg)
	if err != nil {
		return err
	}
	defer assistant.Close()

	program := tea.NewProgram(newModel(assistant), tea.WithAltScreen(), tea.WithContext(ctx))
	forwardCtx, stopForwarding := context.WithCancel(ctx)
	defer stopForwarding()
	forward := newForwarder(program.Send)
	go forward.run(forwardCtx)
	unsubscribe := assistant.orchestrator.Subscribe(forward.observer())
	defer unsubscribe()

	assistant.Start(ctx)
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal ui failed: %w", err)
	}
	return nil
}
