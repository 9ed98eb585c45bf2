package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/broadcaster/internal/session/sandbox"
)

var (
	sandboxChatID    string
	sandboxListLimit int
	sandboxFailed    bool
	sandboxOlderThan time.Duration
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Inspect messages captured by the sandbox session",
}

var sandboxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured messages",
	RunE:  runSandboxList,
}

var sandboxShowCmd = &cobra.Command{
	Use:   "show <message_id>",
	Short: "Show a captured message",
	Args:  cobra.ExactArgs(1),
	RunE:  runSandboxShow,
}

var sandboxClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear captured messages",
	RunE:  runSandboxClear,
}

var sandboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sandbox statistics",
	RunE:  runSandboxStats,
}

func init() {
	sandboxListCmd.Flags().StringVar(&sandboxChatID, "chat", "", "Filter by chat id")
	sandboxListCmd.Flags().IntVar(&sandboxListLimit, "limit", 50, "Maximum number of messages")
	sandboxListCmd.Flags().BoolVar(&sandboxFailed, "failed", false, "Only messages whose send was made to fail")

	sandboxClearCmd.Flags().StringVar(&sandboxChatID, "chat", "", "Clear only one chat")
	sandboxClearCmd.Flags().DurationVar(&sandboxOlderThan, "older-than", 0, "Clear messages older than this (e.g. 72h)")

	sandboxCmd.AddCommand(sandboxListCmd, sandboxShowCmd, sandboxClearCmd, sandboxStatsCmd)
	rootCmd.AddCommand(sandboxCmd)
}

func openSandboxStorage() (*sandbox.Storage, func(), error) {
	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	storage, err := sandbox.NewStorage(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create sandbox storage: %w", err)
	}

	return storage, func() { db.Close() }, nil
}

func runSandboxList(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	filter := sandbox.ListFilter{
		ChatID: sandboxChatID,
		Limit:  sandboxListLimit,
	}
	if sandboxFailed {
		failed := true
		filter.Failed = &failed
	}

	messages, err := storage.List(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(messages) == 0 {
		fmt.Println("No messages in sandbox")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCHAT\tTEXT\tRESULT\tCAPTURED")
	fmt.Fprintln(w, "--\t----\t----\t------\t--------")

	for _, msg := range messages {
		text := strings.ReplaceAll(msg.Text, "\n", " ")
		if len(text) > 40 {
			text = text[:37] + "..."
		}

		result := "sent"
		if msg.SimulatedErr != "" {
			result = "failed"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(msg.ID),
			msg.ChatID,
			text,
			result,
			msg.CapturedAt.Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d messages\n", len(messages))

	return nil
}

func runSandboxShow(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	msg, err := storage.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}

	fmt.Printf("Message:  %s\n", msg.ID)
	fmt.Printf("Chat:     %s\n", msg.ChatID)
	fmt.Printf("Captured: %s\n", msg.CapturedAt.Format("2006-01-02 15:04:05"))
	if msg.SimulatedErr != "" {
		fmt.Printf("Error:    %s\n", msg.SimulatedErr)
	}
	fmt.Printf("\n%s\n", msg.Text)
	return nil
}

func runSandboxClear(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := storage.Clear(cmd.Context(), sandboxChatID, sandboxOlderThan)
	if err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	fmt.Printf("Deleted %d messages\n", n)
	return nil
}

func runSandboxStats(cmd *cobra.Command, args []string) error {
	storage, cleanup, err := openSandboxStorage()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := storage.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Printf("Total messages: %d\n", stats.Total)
	fmt.Printf("Failed:         %d\n", stats.Failed)
	fmt.Printf("Total size:     %s\n", formatBytes(stats.TotalSize))
	if stats.Total > 0 {
		fmt.Printf("Oldest:         %s\n", stats.OldestAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Newest:         %s\n", stats.NewestAt.Format("2006-01-02 15:04:05"))
	}

	if len(stats.ByChat) > 0 {
		chats := make([]string, 0, len(stats.ByChat))
		for chat := range stats.ByChat {
			chats = append(chats, chat)
		}
		sort.Strings(chats)

		fmt.Printf("\nBy chat:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, chat := range chats {
			fmt.Fprintf(w, "  %s\t%d\n", chat, stats.ByChat[chat])
		}
		w.Flush()
	}

	return nil
}

func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
