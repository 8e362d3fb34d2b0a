package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/feedsnap/feedsnap/browse"
	"github.com/feedsnap/feedsnap/capture"
	"github.com/feedsnap/feedsnap/config"
	"github.com/feedsnap/feedsnap/feed"
	"github.com/feedsnap/feedsnap/log"
	"github.com/feedsnap/feedsnap/monitor"
	"github.com/feedsnap/feedsnap/store"
	"github.com/feedsnap/feedsnap/types"
)

var version = "dev"

func printSummary(stats types.PassStats) {
	slog.Info("printing pass summary")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Discovered", "New", "Duplicates", "Extract Errors", "Capture Errors"})
	table.Append([]string{
		strconv.Itoa(stats.Discovered),
		strconv.Itoa(stats.NewlyPersisted),
		strconv.Itoa(stats.Duplicates),
		strconv.Itoa(stats.ExtractFailures),
		strconv.Itoa(stats.CaptureFailures),
	})
	table.SetBorder(false)
	table.Render()
}

func main() {
	targetURL := flag.String("url", "", "The url of the feed to scrape. Overrides the config file.")
	mode := flag.String("mode", "scrape", "Either 'scrape' for a single pass or 'monitor' to keep scraping on an interval.")
	maxPosts := flag.Int("max-posts", 0, "The maximum number of posts to harvest per pass. Overrides the config file.")
	interval := flag.Int("interval", 0, "Minutes between passes in monitor mode. Overrides the config file.")
	configLoc := flag.String("c", "./config.yml", "The location of the configuration file.")
	dbPath := flag.String("db", "", "The sqlite database file. Overrides the config file.")
	screenshotDir := flag.String("screenshots", "", "The directory screenshots are written to. Overrides the config file.")
	exportPath := flag.String("export", "", "Export all stored posts to the given file as json after scraping.")
	fastFlag := flag.Bool("fast", false, "Use short waits. Faster but less reliable on slow pages.")
	headful := flag.Bool("headful", false, "Run the browser with a visible window.")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as yaml and exit.")
	debugFlag := flag.Bool("debug", false, "Prints debug logs.")
	summaryFlag := flag.Bool("summary", false, "Print a summary table at the end.")
	printVersion := flag.Bool("v", false, "The version of feedsnap.")

	flag.Parse()

	if *printVersion {
		buildInfo, ok := debug.ReadBuildInfo()
		if ok {
			if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
				fmt.Println(buildInfo.Main.Version)
				return
			}
		}
		fmt.Println(version)
		return
	}

	// optional; env vars may come from the environment directly
	_ = godotenv.Load()

	config.Debug = *debugFlag
	log.InitializeDefaultLogger()

	conf, err := config.NewConfig(*configLoc)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		os.Exit(1)
	}
	if *targetURL != "" {
		conf.TargetURL = *targetURL
	}
	if *maxPosts > 0 {
		conf.MaxPosts = *maxPosts
	}
	if *interval > 0 {
		conf.IntervalMinutes = *interval
	}
	if *dbPath != "" {
		conf.DBPath = *dbPath
	}
	if *screenshotDir != "" {
		conf.ScreenshotDir = *screenshotDir
	}
	if *exportPath != "" {
		conf.ExportPath = *exportPath
	}
	if *fastFlag {
		conf.FastMode = true
	}
	if *headful {
		conf.Headless = false
	}
	if *printConfig {
		yamlData, err := yaml.Marshal(conf)
		if err != nil {
			slog.Error(fmt.Sprintf("error while marshaling. %v", err))
			os.Exit(1)
		}
		fmt.Println(string(yamlData))
		return
	}

	if err := conf.Validate(); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		os.Exit(1)
	}

	db, err := store.Open(conf.DBPath)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		os.Exit(1)
	}
	defer db.Close()

	capturer, err := capture.NewCapturer(conf.ScreenshotDir)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		os.Exit(1)
	}

	profile := conf.ProfileFor()
	factory := func(ctx context.Context) (*feed.ScrapeSession, error) {
		driver := browse.NewChromeDriver(browse.Options{
			Headless:      conf.Headless,
			UserAgent:     conf.UserAgent,
			ActionsPerSec: profile.ActionsPerSec,
		})
		if err := driver.Start(ctx); err != nil {
			driver.Close()
			return nil, err
		}
		strategy := feed.NewFeedStrategy(driver, db, capturer, conf.TargetURL, conf.MaxPosts, profile)
		return feed.NewScrapeSession(driver, strategy), nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var totals types.PassStats
	switch *mode {
	case "scrape":
		session, err := factory(ctx)
		if err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			os.Exit(1)
		}
		stats, err := session.RunPass(ctx)
		session.Close()
		totals = stats
		if err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			os.Exit(1)
		}
	case "monitor":
		scheduler := monitor.NewScheduler(factory, time.Duration(conf.IntervalMinutes)*time.Minute)
		err := scheduler.Run(ctx)
		totals = scheduler.Totals()
		if err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			os.Exit(1)
		}
	default:
		slog.Error(fmt.Sprintf("mode %s not implemented", *mode))
		os.Exit(1)
	}

	if conf.ExportPath != "" {
		if err := db.ExportJSON(conf.ExportPath); err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			os.Exit(1)
		}
		slog.Info(fmt.Sprintf("successfully exported posts to file %s", conf.ExportPath))
	}

	if *summaryFlag {
		printSummary(totals)
	}
}
