package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	app "github.com/etitcombe/tweeter"
	"github.com/etitcombe/tweeter/board"
	"github.com/etitcombe/tweeter/config"
	"github.com/etitcombe/tweeter/db"
	"github.com/etitcombe/tweeter/rand"
)

/*
Administrative tasks for a tweeter data directory. Admin rights are never
granted through the web application.

1. > ./admin -cmd=pepper
CPjaot8hYLXpm4xIaXHWsQKJWkelY3msP6AbR8wYmrE=
[put this in the "pepper" key of .config before anyone registers]
2. > ./admin -cmd=grant-admin -handle=alice
3. > ./admin -cmd=users
alice	admin	Alice
bob	verified	Bob
4. > ./admin -cmd=logout-all -handle=bob
*/

func main() {
	var (
		cmd        string
		configFile string
		handle     string
		password   string
	)
	flag.StringVar(&cmd, "cmd", "", "The command to execute: pepper, password, grant-admin, revoke-admin, logout-all, users. [Required]")
	flag.StringVar(&configFile, "config", "", "The JSON config file to load. (default .config)")
	flag.StringVar(&handle, "handle", "", "The user to act on. [Required when cmd=grant-admin, revoke-admin or logout-all]")
	flag.StringVar(&password, "password", "", "The password to hash with the configured pepper. [Required when cmd=password]")
	flag.Parse()

	if cmd == "pepper" {
		if err := generatePepper(os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatal(err)
	}
	lock := db.LockConfig{Timeout: cfg.LockTimeout, StaleAfter: cfg.LockStaleAfter}
	users, err := db.NewUserStoreFile(filepath.Join(cfg.DataDir, "users"), lock)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	switch cmd {
	case "password":
		if password == "" {
			flag.Usage()
			return
		}
		err = hashPassword(os.Stdout, cfg.Pepper, password)
	case "grant-admin", "revoke-admin":
		if handle == "" {
			flag.Usage()
			return
		}
		err = setAdmin(ctx, users, handle, cmd == "grant-admin")
	case "logout-all":
		if handle == "" {
			flag.Usage()
			return
		}
		err = logoutAll(ctx, cfg.SessionDB, handle)
	case "users":
		err = listUsers(ctx, os.Stdout, users)
	default:
		flag.Usage()
	}
	if err != nil {
		log.Fatal(err)
	}
}

func generatePepper(w io.Writer) error {
	t, err := rand.RememberToken()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, t)
	return err
}

func hashPassword(w io.Writer, pepper, password string) error {
	hash, err := board.HashPassword(pepper, password, 0)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

func setAdmin(ctx context.Context, users app.UserStore, handle string, admin bool) error {
	_, err := users.Modify(ctx, board.NormalizeHandle(handle), func(u *app.User) error {
		u.Admin = admin
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", handle, err)
	}
	return nil
}

func logoutAll(ctx context.Context, dsn, handle string) error {
	ss, err := db.NewSessionStore(dsn)
	if err != nil {
		return err
	}
	if err := ss.Open(); err != nil {
		return err
	}
	defer ss.Close()
	return ss.DeleteHandle(ctx, board.NormalizeHandle(handle))
}

func listUsers(ctx context.Context, w io.Writer, users app.UserStore) error {
	all, err := users.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range all {
		role := "-"
		switch {
		case u.Admin:
			role = "admin"
		case u.Verified:
			role = "verified"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", u.Handle, role, u.Display); err != nil {
			return err
		}
	}
	return nil
}
