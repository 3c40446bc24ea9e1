package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	historyUUID string
	historyRule string
	historyKind string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show fact-change or rule-firing audit history, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		switch historyKind {
		case "facts", "":
			entries := store.FactHistory(historyUUID, historyLimit)
			if len(entries) == 0 {
				fmt.Println("no fact history")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  %-8s %s  type=%-16s session=%-12s attrs=%v\n", e.Timestamp.Format("2006-01-02T15:04:05"), e.Action, e.FactUUID, e.FactType, e.SessionID, e.Attributes)
			}
		case "rules":
			entries := store.RuleFirings(historyRule, historyLimit)
			if len(entries) == 0 {
				fmt.Println("no rule firings")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%s  rule=%-20s session=%-12s facts=%v bindings=%v\n", e.FiredAt.Format("2006-01-02T15:04:05"), e.RuleName, e.SessionID, e.FactUUIDs, e.Bindings)
			}
		default:
			return fmt.Errorf("unknown --kind %q (want \"facts\" or \"rules\")", historyKind)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyKind, "kind", "facts", `history kind: "facts" or "rules"`)
	historyCmd.Flags().StringVar(&historyUUID, "uuid", "", "filter fact history to one uuid (kind=facts)")
	historyCmd.Flags().StringVar(&historyRule, "rule", "", "filter rule firings to one rule name (kind=rules)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum entries to show (0 = unlimited)")
}
