package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codenerd-labs/rete/blackboard"
)

var (
	factsType      string
	factsSession   string
	factsTombstone bool
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "List facts, optionally filtered by type or session",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		recs := store.QueryFacts(func(r blackboard.FactRecord) bool {
			if !factsTombstone && r.Retracted {
				return false
			}
			if factsType != "" && r.Type != factsType {
				return false
			}
			if factsSession != "" && r.SessionID != factsSession {
				return false
			}
			return true
		})

		if len(recs) == 0 {
			fmt.Println("no matching facts")
			return nil
		}
		for _, r := range recs {
			status := "active"
			if r.Retracted {
				status = "retracted"
			}
			fmt.Printf("%s  type=%-20s session=%-12s %s  attrs=%v\n", r.UUID, r.Type, r.SessionID, status, r.Attributes)
		}
		return nil
	},
}

func init() {
	factsCmd.Flags().StringVar(&factsType, "type", "", "filter by fact type")
	factsCmd.Flags().StringVar(&factsSession, "session", "", "filter by session id")
	factsCmd.Flags().BoolVar(&factsTombstone, "include-retracted", false, "include tombstoned facts")
}
