package main

import (
	"fmt"
	"log/slog"
	"os"

	"pdfchat/internal/backend"
	"pdfchat/internal/catalog"
	"pdfchat/internal/config"
	"pdfchat/internal/export"
	"pdfchat/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: cfg.LogLevel}))

	docs, err := catalog.Open(cfg.DBPath, cfg.ResetCatalog)
	if err != nil {
		return err
	}
	defer docs.Close()

	exp, err := export.New(cfg.ExportDir)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	client := backend.New(backend.Config{
		BaseURL:   cfg.BaseURL,
		SessionID: sessionID,
		Logger:    logger,
	})
	logger.Info("starting", "server", client.BaseURL(), "session", sessionID, "catalog", cfg.DBPath)

	m := ui.NewModel(cfg, ui.Deps{
		Backend:   client,
		Documents: docs,
		Exporter:  exp,
		Logger:    logger,
		SessionID: sessionID,
		ServerURL: client.BaseURL(),
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
