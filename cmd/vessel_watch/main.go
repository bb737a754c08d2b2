// Command-line entry point for vessel watch.
//
// Commands
// --------
//   run       - run the full service: fetch, ingest, detect, serve status API
//   simulate  - run the traffic simulator offline and emit JSONL reports
//   scenario  - validate a YAML scenario file
//
// The run command defaults to the embedded SQLite store plus the built-in
// simulator source, so it works with no external services. Point it at
// PostgreSQL/ClickHouse with -db=postgres and at a NATS broker with -nats.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vessel_watch/internal/api"
	"vessel_watch/internal/collision"
	"vessel_watch/internal/feed"
	"vessel_watch/internal/pipeline"
	"vessel_watch/internal/scheduler"
	"vessel_watch/internal/sim"
	"vessel_watch/internal/source"
	"vessel_watch/internal/storage"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "vessel_watch - commands:")
	fmt.Fprintln(w, "  run       - run the tracking service")
	fmt.Fprintln(w, "  simulate  - run the simulator offline and emit JSONL reports")
	fmt.Fprintln(w, "  scenario  - validate a YAML scenario file")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  vessel_watch run [-db sqlite|postgres] [-sqlite watch.db] [-nats URL] [-vessels N] [-scenario FILE] [-port 8080]")
	fmt.Fprintln(w, "  vessel_watch simulate [-scenario FILE] [-vessels N] [-duration 1h] [-tick 30s] [-output out.jsonl] [-pretty] [-stats]")
	fmt.Fprintln(w, "  vessel_watch scenario -file scenario.yaml")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "run":
		runService(os.Args[2:])
	case "simulate":
		runSimulate(os.Args[2:])
	case "scenario":
		runScenario(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runService(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dbKind := fs.String("db", "sqlite", "Storage backend: sqlite or postgres")
	sqlitePath := fs.String("sqlite", "vessel_watch.db", "SQLite database path (db=sqlite)")
	natsURL := fs.String("nats", "", "NATS server URL (empty disables publishing)")
	vessels := fs.Int("vessels", 20, "Random vessels to simulate when no scenario is given")
	scenarioPath := fs.String("scenario", "", "YAML scenario file for the simulator source")
	port := fs.Int("port", 8080, "HTTP port for the status API (0 disables)")
	fetchEvery := fs.Duration("fetch-interval", scheduler.DefaultFetchInterval, "Source fetch interval")
	detectEvery := fs.Duration("detect-interval", scheduler.DefaultDetectInterval, "Collision detection interval")
	cpaThreshold := fs.Float64("cpa", collision.DefaultCPAThresholdNM, "CPA alert threshold in nautical miles")
	tcpaThreshold := fs.Duration("tcpa", collision.DefaultTCPAThreshold, "TCPA alert threshold")

	// PostgreSQL / ClickHouse connection flags (db=postgres).
	pgHost := fs.String("pg-host", envOrDefault("POSTGRES_HOST", "localhost"), "PostgreSQL host")
	pgPort := fs.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", 5432), "PostgreSQL port")
	pgUser := fs.String("pg-user", envOrDefault("POSTGRES_USER", "vessel_watch"), "PostgreSQL user")
	pgPassword := fs.String("pg-password", envOrDefault("POSTGRES_PASSWORD", "vessel_watch"), "PostgreSQL password")
	pgDB := fs.String("pg-database", envOrDefault("POSTGRES_DATABASE", "vessel_watch_state"), "PostgreSQL database")
	chHost := fs.String("ch-host", envOrDefault("CLICKHOUSE_HOST", "localhost"), "ClickHouse host")
	chPort := fs.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", 9000), "ClickHouse port")
	chUser := fs.String("ch-user", envOrDefault("CLICKHOUSE_USER", "default"), "ClickHouse user")
	chPassword := fs.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", ""), "ClickHouse password")
	chDB := fs.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", "vessel_watch"), "ClickHouse database")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage.
	var (
		states  pipeline.StateStore
		history pipeline.HistoryStore
		alerts  pipeline.AlertStore
		reader  api.StatesReader
		alertRd api.AlertsReader
		histRd  api.HistoryReader
		stSrc   scheduler.StatesSource
	)
	switch *dbKind {
	case "sqlite":
		db, err := storage.OpenSQLite(*sqlitePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening SQLite: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		states, history, alerts = db, db, db
		reader, alertRd, stSrc = db, db, db
	case "postgres":
		ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host: *chHost, Port: *chPort, Database: *chDB, User: *chUser, Password: *chPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening ClickHouse: %v\n", err)
			os.Exit(1)
		}
		defer ch.Close()
		pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
			Host: *pgHost, Port: *pgPort, Database: *pgDB, User: *pgUser, Password: *pgPassword,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening PostgreSQL: %v\n", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := ch.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating ClickHouse schema: %v\n", err)
			os.Exit(1)
		}
		if err := pg.CreateSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating PostgreSQL schema: %v\n", err)
			os.Exit(1)
		}
		states, history, alerts = pg, ch, pg
		reader, alertRd, stSrc = pg, pg, pg
		histRd = ch
	default:
		fmt.Fprintf(os.Stderr, "Unknown db backend: %s\n", *dbKind)
		os.Exit(2)
	}

	// Message bus.
	var pub *feed.Publisher
	if *natsURL != "" {
		p, err := feed.Connect(*natsURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting NATS: %v\n", err)
			os.Exit(1)
		}
		defer p.Close()
		pub = p
	}

	// Simulator source.
	fleet := sim.NewFleet(0)
	if *scenarioPath != "" {
		sc, err := sim.LoadScenarioFile(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
			os.Exit(1)
		}
		if err := fleet.LoadScenario(sc); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
			os.Exit(1)
		}
	} else {
		fleet.GenerateRandomTraffic(*vessels, sim.DefaultBBox)
	}

	manager, err := source.NewManager(source.DefaultManagerConfig(), sim.NewAdapter("simulator", fleet))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building source manager: %v\n", err)
		os.Exit(1)
	}
	manager.StartAll(ctx)
	defer manager.StopAll()

	// Pipeline.
	processor := pipeline.NewProcessor(states, history, pub)
	detector := collision.NewDetector()
	detector.CPAThresholdNM = *cpaThreshold
	detector.TCPAThreshold = *tcpaThreshold
	var alertHistory pipeline.AlertHistoryStore
	if ch, ok := history.(*storage.ClickHouseDB); ok {
		alertHistory = ch
	}
	sink := pipeline.NewAlertSink(alerts, alertHistory, pub)

	// Status API.
	if *port > 0 {
		server := api.NewStatusServer(manager, reader, alertRd, histRd, api.Config{Port: *port})
		go func() {
			if err := server.Run(); err != nil {
				log.Printf("status api: %v", err)
			}
		}()
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.FetchInterval = *fetchEvery
	schedCfg.DetectInterval = *detectEvery
	sched := scheduler.New(schedCfg, manager, processor, detector, stSrc, sink)

	log.Printf("vessel watch running (db=%s, fetch every %s, detect every %s)", *dbKind, *fetchEvery, *detectEvery)
	if err := sched.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Scheduler error: %v\n", err)
		os.Exit(1)
	}
}

func runSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	scenarioPath := fs.String("scenario", "", "YAML scenario file (default: random traffic)")
	vessels := fs.Int("vessels", 20, "Random vessels when no scenario is given")
	duration := fs.Duration("duration", time.Hour, "Simulated time to cover")
	tick := fs.Duration("tick", 30*time.Second, "Simulated time step")
	outPath := fs.String("output", "", "Output JSONL file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	showStats := fs.Bool("stats", false, "Print fleet counters to stderr")
	_ = fs.Parse(args)

	fleet := sim.NewFleet(*tick)
	if *scenarioPath != "" {
		sc, err := sim.LoadScenarioFile(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
			os.Exit(1)
		}
		if err := fleet.LoadScenario(sc); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
			os.Exit(1)
		}
		if sc.DurationMinutes > 0 {
			*duration = time.Duration(sc.DurationMinutes * float64(time.Minute))
		}
	} else {
		fleet.GenerateRandomTraffic(*vessels, sim.DefaultBBox)
	}

	var wout io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		wout = f
	}

	enc := json.NewEncoder(wout)
	if *pretty {
		enc.SetIndent("", "  ")
	}

	var emitted int
	for elapsed := time.Duration(0); elapsed < *duration; elapsed += *tick {
		fleet.Tick(*tick)
		for _, report := range fleet.Reports("simulator", nil) {
			if err := enc.Encode(&report); err != nil {
				fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
				os.Exit(1)
			}
			emitted++
		}
	}

	if *showStats {
		stats := fleet.Statistics()
		fmt.Fprintf(os.Stderr,
			"stats: vessels=%d transmitting=%d ticks=%d reports=%d behaviors=%v\n",
			stats.VesselCount, stats.Transmitting, stats.TickCount, emitted, stats.Behaviors,
		)
	}
}

func runScenario(args []string) {
	fs := flag.NewFlagSet("scenario", flag.ExitOnError)
	file := fs.String("file", "", "YAML scenario file to validate")
	_ = fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "scenario: -file is required")
		os.Exit(2)
	}

	sc, err := sim.LoadScenarioFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid scenario: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scenario %q is valid:\n", sc.Name)
	fmt.Printf("  vessels: %d\n", len(sc.Vessels))
	if sc.DurationMinutes > 0 {
		fmt.Printf("  duration: %.0f minutes\n", sc.DurationMinutes)
	}
	if sc.BBox != nil {
		fmt.Printf("  bounding box: [%.4f, %.4f] x [%.4f, %.4f]\n",
			sc.BBox.MinLat, sc.BBox.MaxLat, sc.BBox.MinLon, sc.BBox.MaxLon)
	}
	for _, v := range sc.Vessels {
		behavior := v.Behavior
		if behavior == "" {
			behavior = "straight"
		}
		fmt.Printf("  %d %-24s %s\n", v.MMSI, v.Name, behavior)
	}
	if len(sc.ExpectedAlerts) > 0 {
		fmt.Printf("  expected alerts: %d\n", len(sc.ExpectedAlerts))
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
