package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"rendezvous/domain"
	"rendezvous/repositories"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	conversationID := flag.Int64("conversation", 0, "Print the history of this conversation instead of the conversation list")
	limit := flag.Int("limit", repositories.DefaultHistoryLimit, "Messages per page")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := newTable()
	ctx := context.Background()
	if *conversationID > 0 {
		err = printHistory(table, db, domain.ConversationID(*conversationID), *limit)
	} else {
		err = printConversations(ctx, table, db)
	}
	if err != nil {
		log.Fatal(err)
	}
	table.Render()
}

func newTable() *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func printConversations(ctx context.Context, table *tablewriter.Table, db *badger.DB) error {
	conversations, err := repositories.NewConversationReader(db).List(ctx)
	if err != nil {
		return err
	}
	table.SetHeader([]string{"ID", "User A", "User B", "Created At"})
	for _, c := range conversations {
		table.Append([]string{
			c.ID.String(),
			c.Participants[0].String(),
			c.Participants[1].String(),
			c.CreatedAt.Format(time.RFC3339),
		})
	}
	return nil
}

// printHistory walks every page, newest first, like a client scrolling up.
func printHistory(table *tablewriter.Table, db *badger.DB, conversationID domain.ConversationID, limit int) error {
	messages := repositories.NewMessageRepository(db, logs.GetLoggerFromString("WARN"), limit)
	table.SetHeader([]string{"Created At", "Sender", "ID", "Content"})

	var cursor *string
	for {
		page, next, err := messages.GetMessages(conversationID, cursor)
		if err != nil {
			return err
		}
		for _, m := range page {
			// The first 8 characters of the id are enough to tell messages apart
			displayID := m.ID.String()[:8]
			table.Append([]string{
				m.CreatedAt.Format("2006-01-02 15:04:05.000"),
				m.SenderID.String(),
				displayID,
				m.Content,
			})
		}
		if next == nil {
			return nil
		}
		cursor = next
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// A crashed server leaves a value log to truncate, which needs a write open
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
