package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbellet/sessionlog/internal/index"
	"github.com/pbellet/sessionlog/internal/recovery"
	"github.com/pbellet/sessionlog/pkg/conversation"
)

func listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}

			query, _ := cmd.Flags().GetString("search")
			limit, _ := cmd.Flags().GetInt("limit")

			var sessions []conversation.Metadata
			if query != "" && a.cfg.Index.Enabled {
				ix, err := index.Open(a.cfg.Index.Path, a.logger)
				if err != nil {
					return err
				}
				defer ix.Close()
				sessions, err = ix.Search(query, limit)
				if err != nil {
					return err
				}
			} else {
				sessions, err = a.manager.ListSessions()
				if err != nil {
					return err
				}
				if limit > 0 && len(sessions) > limit {
					sessions = sessions[:limit]
				}
			}

			if len(sessions) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, meta := range sessions {
				title := meta.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%s  %4d msgs  %s  %s\n",
					meta.SessionID,
					meta.MessageCount,
					meta.Updated.Format("2006-01-02 15:04"),
					title,
				)
			}
			return nil
		},
	}
	cmd.Flags().String("search", "", "Full-text search query (requires the index)")
	cmd.Flags().Int("limit", 0, "Maximum number of sessions to print")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}

			messages, err := a.manager.GetMessages(args[0])
			if err != nil {
				return err
			}
			printMessages(messages)
			return nil
		},
	}
}

func resumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Print the resume window selected for a token budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}

			limit, _ := cmd.Flags().GetInt("token-limit")
			estimate := recovery.CharEstimator(0)

			// No compressor here: the summarizer is an external
			// collaborator. Over budget, the window is returned as-is.
			messages, err := a.engine.LoadSessionWithContextOptimization(
				context.Background(), args[0], limit, estimate, nil,
			)
			if err != nil {
				return err
			}
			fmt.Printf("%d messages, ~%d tokens (limit %d)\n\n",
				len(messages), estimate(messages), limit)
			printMessages(messages)
			return nil
		},
	}
	cmd.Flags().Int("token-limit", 100000, "Token budget for the resume window")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			if err := a.manager.DeleteSession(args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Advisory search index management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the search index from the session store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			if !a.cfg.Index.Enabled {
				return fmt.Errorf("index is disabled in configuration")
			}

			ix, err := index.Open(a.cfg.Index.Path, a.logger)
			if err != nil {
				return err
			}
			defer ix.Close()

			if err := ix.Rebuild(a.store); err != nil {
				return err
			}
			fmt.Println("Index rebuilt.")
			return nil
		},
	})
	return cmd
}

// printMessages renders messages one per line with a short content preview.
func printMessages(messages []conversation.Message) {
	for _, msg := range messages {
		fmt.Printf("[%s] %-9s %s\n",
			msg.Timestamp.Format("15:04:05"),
			msg.Type,
			messagePreview(msg.Payload.Content),
		)
	}
}

const previewRunes = 100

// messagePreview flattens content to one line and truncates it on a rune
// boundary.
func messagePreview(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	runes := []rune(content)
	if len(runes) > previewRunes {
		return string(runes[:previewRunes]) + "…"
	}
	return content
}
