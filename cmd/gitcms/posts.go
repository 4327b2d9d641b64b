package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eringen/gitcms"
	"github.com/eringen/gitcms/gateway"
	"github.com/eringen/gitcms/identity"
)

// runPosts reads the repository the way the editor does. The bearer token
// comes from GITCMS_GATEWAY_TOKEN, or is exchanged for the identity token
// in GITCMS_IDENTITY_TOKEN through the deployed exchange function.
func runPosts(args []string) error {
	if len(args) != 1 || args[0] != "list" {
		return errors.New("usage: gitcms posts list")
	}
	cfg, err := gitcms.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	gcfg := gateway.Config{
		Owner:      cfg.Repo.Owner,
		Repo:       cfg.Repo.Name,
		Branch:     cfg.Repo.Branch,
		BaseURL:    cfg.Repo.APIBaseURL,
		ContentDir: cfg.Repo.ContentDir,
		Author:     cfg.Repo.Author,
		Strict:     cfg.Repo.Strict,
		Session:    gateway.StaticSession(os.Getenv("GITCMS_GATEWAY_TOKEN")),
		Logger:     logger,
	}
	if idToken := os.Getenv("GITCMS_IDENTITY_TOKEN"); idToken != "" {
		exchanger, err := identity.New(identity.Config{
			URL: strings.TrimRight(cfg.SiteURL, "/") + identity.DefaultPath,
			Source: func(context.Context) (string, error) {
				return idToken, nil
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}
		gcfg.Exchanger = exchanger
	}

	client, err := gateway.New(gcfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := client.Init(ctx); err != nil {
		return err
	}
	posts, err := client.GetAllBlogPosts(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tDATE\tAUTHOR\tTITLE")
	for _, p := range posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Slug, p.Date, p.Author, p.Title)
	}
	return w.Flush()
}
