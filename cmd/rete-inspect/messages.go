package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	messagesTopic string
	messagesLimit int
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Peek at unconsumed messages on a topic, and overall queue stats",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		posted, unconsumed := store.MessageStats()
		fmt.Printf("posted: %d  unconsumed: %d\n", posted, unconsumed)

		if messagesTopic == "" {
			return nil
		}
		msgs := store.PeekMessages(messagesTopic, messagesLimit)
		if len(msgs) == 0 {
			fmt.Printf("no unconsumed messages on topic %q\n", messagesTopic)
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("#%d  priority=%-4d posted=%s  sender=%-16s content=%v\n", m.ID, m.Priority, m.PostedAt.Format("2006-01-02T15:04:05"), m.Sender, m.Content)
		}
		return nil
	},
}

func init() {
	messagesCmd.Flags().StringVar(&messagesTopic, "topic", "", "peek at unconsumed messages on this topic")
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 20, "maximum messages to show (0 = unlimited)")
}
