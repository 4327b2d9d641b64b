package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/eringen/gitcms"
	"github.com/eringen/gitcms/profiles"
)

const roleUsage = "usage: gitcms role set <id> <role> | get <id> | delete <id> | list"

func runRole(args []string) error {
	if len(args) == 0 {
		return errors.New(roleUsage)
	}
	cfg, err := gitcms.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.ProfilesPath == "" {
		return errors.New("GITCMS_PROFILES_DB is empty; the role directory is disabled")
	}
	store, err := profiles.Open(cfg.ProfilesPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	switch {
	case args[0] == "set" && len(args) == 3:
		if err := store.SetRole(ctx, args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", args[1], args[2])
	case args[0] == "get" && len(args) == 2:
		role, err := store.Role(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Println(role)
	case args[0] == "delete" && len(args) == 2:
		if err := store.DeleteRole(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", args[1])
	case args[0] == "list" && len(args) == 1:
		list, err := store.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tROLE\tUPDATED")
		for _, p := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Role, p.UpdatedAt.Format(time.DateTime))
		}
		return w.Flush()
	default:
		return errors.New(roleUsage)
	}
	return nil
}
