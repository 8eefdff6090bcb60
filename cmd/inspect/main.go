// Command inspect prints the tail of a Badger message log.
package main

import (
	"batepapo/infrastructure/storage"
	"flag"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	limit := flag.Int("limit", 50, "Number of most recent messages to show, 0 for all")
	flag.Parse()

	// BypassLockGuard lets the dump run next to a live server
	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	messages, err := storage.TailMessages(db, *limit)
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "ID", "Type", "From", "To", "Text"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, m := range messages {
		table.Append([]string{
			m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.ID.String()[:8],
			string(m.Type),
			m.From,
			m.To,
			m.Text,
		})
	}
	table.Render()
}
