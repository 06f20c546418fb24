// Command vapor-guard prints the current authenticator code for an account
// in a vapor store, the way a phone authenticator would.
//
// Run:
//
//	go run ./cmd/vapor-guard -store ~/.vapor/accounts.json
//	go run ./cmd/vapor-guard -redis-addr localhost:6379 -account alice
//
// With no -account the store's main account is used. With -watch the code
// is reprinted every time the 30-second window rolls over.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	vapor "github.com/vaporhq/vapor"
	"github.com/vaporhq/vapor/store"
)

func main() {
	var (
		storePath = flag.String("store", defaultStorePath(), "path to the account store file")
		redisAddr = flag.String("redis-addr", "", "redis address; when set, the store is read from redis instead of the file")
		prefix    = flag.String("prefix", "vapor", "redis key prefix")
		account   = flag.String("account", "", "account name; defaults to the store's main account")
		watch     = flag.Bool("watch", false, "keep printing codes as windows roll over")
	)
	flag.Parse()

	ctx := context.Background()

	var (
		s   store.Store
		err error
	)
	if *redisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{*redisAddr},
		})
		defer client.Close()
		s = store.NewRedisStore(client, *prefix)
	} else {
		s, err = store.NewFileStore(*storePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open store: %v\n", err)
			os.Exit(1)
		}
	}

	rec, err := lookupAccount(ctx, s, *account)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if rec.Secrets == nil || rec.Secrets.SharedSecret == "" {
		fmt.Fprintf(os.Stderr, "account %q has no authenticator secret\n", rec.Name)
		os.Exit(1)
	}

	for {
		now := time.Now()
		code, err := vapor.GuardCode(rec.Secrets.SharedSecret, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate code: %v\n", err)
			os.Exit(1)
		}

		remaining := 30 - now.Unix()%30
		fmt.Printf("%s  (%s, %ds left)\n", code, rec.Name, remaining)

		if !*watch {
			return
		}
		time.Sleep(time.Duration(remaining) * time.Second)
	}
}

func lookupAccount(ctx context.Context, s store.Store, name string) (*store.Record, error) {
	if name == "" {
		rec, err := s.MainAccount(ctx)
		if err != nil {
			return nil, fmt.Errorf("no account selected and no main account: %w", err)
		}
		return rec, nil
	}
	rec, err := s.GetAccount(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", name, err)
	}
	return rec, nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "accounts.json"
	}
	return filepath.Join(home, ".vapor", "accounts.json")
}
