package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"nexchat/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Conversation indexes ("conv:") only point at records, skip them
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	user := flag.String("user", "", "Only show messages sent or received by this user id")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Sender", "Recipient", "Created", "Flags", "Content"})
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

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var m domain.Message
				if err := json.Unmarshal(v, &m); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				if *user != "" && !m.Involves(*user) {
					return nil
				}
				count++
				table.Append([]string{
					m.ID.String(),
					m.Sender,
					m.Recipient,
					domain.CreationTime(m).Format("2006-01-02 15:04:05"),
					flags(m),
					content(m),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("\n%d message(s)\n", count)
}

func flags(m domain.Message) string {
	var out []string
	if m.IsEdited {
		out = append(out, "edited")
	}
	if m.IsDeleted {
		out = append(out, "deleted")
	}
	return strings.Join(out, ",")
}

func content(m domain.Message) string {
	switch {
	case m.IsDeleted:
		return domain.DeletedPlaceholder
	case m.File != nil && m.Text != "":
		return m.Text + " [" + *m.File + "]"
	case m.File != nil:
		return "[" + *m.File + "]"
	default:
		return m.Text
	}
}

// openDB opens the store read-only so that it can be inspected while the
// server is running.
func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
