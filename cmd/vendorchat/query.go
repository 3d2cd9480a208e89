package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"vendor-chat/internal/models"
	"vendor-chat/internal/rest"
)

// Lists the conversations of the configured user.
var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return query(cmd, func(ctx context.Context, api *rest.Client, me string) error {
			list, err := api.ChatList(ctx, me)
			if err != nil {
				return err
			}
			return printChats(cmd.OutOrStdout(), list)
		})
	},
}

// Prints the message history with one counterpart.
var historyCmd = &cobra.Command{
	Use:   "history <counterpart>",
	Short: "Show the message history with a counterpart.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return query(cmd, func(ctx context.Context, api *rest.Client, me string) error {
			return showHistory(ctx, cmd.OutOrStdout(), api, me, args[0])
		})
	},
}

// Prints the unread totals.
var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show unread totals.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return query(cmd, func(ctx context.Context, api *rest.Client, me string) error {
			count, err := api.UnreadCount(ctx, me)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d unread in %d chats\n",
				count.TotalUnreadCount, count.UnreadChatsCount)
			return err
		})
	},
}

func query(cmd *cobra.Command, fn func(ctx context.Context, api *rest.Client, me string) error) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RequestTimeout.Duration())
	defer cancel()
	api := rest.NewClient(cfg.APIBaseURL, cfg.RequestTimeout.Duration())
	jww.DEBUG.Printf("query %s user_id=%s api=%s", cmd.Name(), cfg.UserID, cfg.APIBaseURL)
	return fn(ctx, api, cfg.UserID)
}

// printChats writes the well-formed entries of list as a table.
func printChats(w io.Writer, list []models.ChatSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tUNREAD\tLAST MESSAGE")
	for _, s := range list {
		conv, ok := models.ConversationFromSummary(s)
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", conv.CounterpartID, conv.Name,
			conv.Presence, conv.UnreadCount, conv.LastMessage)
	}
	return tw.Flush()
}

type historySource interface {
	ChatID(ctx context.Context, senderID, recipientID string) (string, error)
	History(ctx context.Context, senderID, recipientID string) ([]models.Message, error)
}

// showHistory prints the chat id and messages exchanged with counterpart.
// A pair that never talked is reported rather than treated as an error.
func showHistory(ctx context.Context, w io.Writer, api historySource, me, counterpart string) error {
	id, err := api.ChatID(ctx, me, counterpart)
	switch {
	case rest.IsNotFound(err):
		_, err = fmt.Fprintf(w, "no chat with %s\n", counterpart)
		return err
	case err != nil:
		return err
	}
	msgs, err := api.History(ctx, me, counterpart)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "chat %s\n", id)
	return printHistory(w, msgs, me)
}

func printHistory(w io.Writer, msgs []models.Message, me string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tFROM\tSTATUS\tCONTENT")
	for _, m := range msgs {
		from := m.SenderID
		if from == me {
			from = "you"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Timestamp.UTC().Format("2006-01-02 15:04"),
			from, m.Status, m.Content)
	}
	return tw.Flush()
}
