package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fact/knowledge-source/audit/message counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		st := store.Stats()
		fmt.Printf("facts:             %d active / %d total\n", st.ActiveFacts, st.TotalFacts)
		fmt.Printf("knowledge sources: %d\n", st.KnowledgeSources)
		fmt.Printf("audit records:     %d\n", st.AuditRecords)
		fmt.Printf("queued messages:   %d\n", st.QueuedMessages)
		return nil
	},
}
