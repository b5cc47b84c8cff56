package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eringen/wapps"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "blog":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: wapps blog <slug> <title>")
			os.Exit(1)
		}
		err = runNewBlog(os.Args[2], os.Args[3])
	case "version":
		fmt.Printf("wapps %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`wapps - A multi-site blog and page server built with Go, Echo, and templ

Usage:
  wapps <command> [arguments]

Commands:
  serve                 Start the HTTP server
  blog <slug> <title>   Create a live blog on the default site
  version               Print the wapps version
  help                  Show this help message

Environment:
  SITE_NAME, SITE_URL, SITE_DESCRIPTION, ADDR, DATABASE_PATH,
  ADMIN_PASSWORD, ADMIN_SESSION_SECRET, COOKIE_SECURE, LOG_LEVEL`)
}

func configFromEnv() wapps.SiteConfig {
	return wapps.SiteConfig{
		Name:          wapps.EnvOr("SITE_NAME", "Site"),
		URL:           wapps.EnvOr("SITE_URL", "http://localhost:3000"),
		Description:   os.Getenv("SITE_DESCRIPTION"),
		Addr:          wapps.EnvOr("ADDR", ":3000"),
		DatabasePath:  wapps.EnvOr("DATABASE_PATH", "data/wapps.db"),
		AdminPassword: wapps.MustEnv("ADMIN_PASSWORD"),
		SessionSecret: wapps.MustEnv("ADMIN_SESSION_SECRET"),
		CookieSecure:  os.Getenv("COOKIE_SECURE") == "true",
		LogLevel:      wapps.EnvOr("LOG_LEVEL", "info"),
	}
}

func runServe() error {
	app := wapps.New(configFromEnv(), plainViews())
	defer app.Close()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		app.Log.Info().Msg("shutting down")
		_ = app.Echo.Close()
	}()

	return app.Start()
}

func runNewBlog(slug, title string) error {
	cfg := configFromEnv()
	app := wapps.New(cfg, plainViews())
	if err := app.Setup(); err != nil {
		return err
	}
	defer app.Close()

	site, err := app.Store.SiteForHost("")
	if err != nil {
		return err
	}
	blog := wapps.Blog{Page: wapps.Page{SiteID: site.ID, Slug: slug, Title: title, Live: true}}
	if err := app.Store.SaveBlog(&blog); err != nil {
		return err
	}
	fmt.Printf("Created blog %q at %s\n", title, wapps.BuildURL(site.RootURL(), blog.Slug))
	return nil
}
