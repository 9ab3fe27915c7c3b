package main

import (
	"chat-notify/internal"
	"flag"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/stretchr/testify/require"
)

func TestFlags_Defaults(t *testing.T) {
	req := require.New(t)

	req.Equal(database.DefaultPath, flag.Lookup("db").DefValue)
	req.Equal("notify:", flag.Lookup("prefix").DefValue)
}

func TestOpenDB_Reads_Outbox(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	// Given a store holding one outbox row
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	req.NoError(err)
	key := "notify:notify_event:1714557600000000000:0b1f"
	req.NoError(db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), []byte(`{}`)).WithTTL(time.Minute))
	}))
	req.NoError(db.Close())

	// When it is reopened read-only
	ro, err := openDB(dir)
	req.NoError(err)
	defer ro.Close()

	// Then the row is listed
	rows, err := internal.Scan(ro, "notify:", internal.DefaultMapper)
	req.NoError(err)
	req.Len(rows, 1)
	req.Equal(key, rows[0].Key)
	req.Equal("notify_event", rows[0].Scope)
}
