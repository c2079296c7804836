package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"idealcity/internal/builder"
	"idealcity/internal/buildplan"
	"idealcity/internal/catalog"
	"idealcity/internal/cityphone"
	"idealcity/internal/exhibit"
	"idealcity/internal/model"
	"idealcity/internal/mods"
	"idealcity/internal/normalize"
	"idealcity/internal/oracle"
	"idealcity/internal/patch"
	"idealcity/internal/persistence/indexdb"
	"idealcity/internal/persistence/repo"
	"idealcity/internal/persistence/txlog"
	"idealcity/internal/pipeline"
	"idealcity/internal/planner"
	"idealcity/internal/protocolfs"
	"idealcity/internal/rcon"
	"idealcity/internal/story"
	"idealcity/internal/transport/httpapi"
	"idealcity/internal/tuning"
	"idealcity/internal/worldview"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		configDir    = flag.String("configs", "./configs", "config directory")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		protocolDir  = flag.String("protocol", "./data/protocol", "protocol artefact directory shared with the game runtime")
		modsDir      = flag.String("mods", "./mods", "installed mods root")
		tuningPath   = flag.String("tuning", "", "path to pipeline.yaml (default: <configs>/pipeline.yaml)")
		scenarioFlag = flag.String("scenario", "", "default scenario id (default: first scenario on disk)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite read-model index")
		drainQueue   = flag.Bool("drain_queue", true, "run the build-queue drain loop")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "pipeline.yaml")
	}
	cfg, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	roots := tuning.ResolveRoots(*dataDir, *protocolDir, *modsDir)
	for _, dir := range []string{roots.Data, roots.Protocol} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	wv, err := worldview.NewWorldviewStore(filepath.Join(*configDir, "worldview.json")).Load()
	if err != nil {
		logger.Fatalf("load worldview: %v", err)
	}
	scenarios := worldview.NewScenarioStore(filepath.Join(*configDir, "scenarios"))
	defaultScenario := strings.TrimSpace(*scenarioFlag)
	if defaultScenario == "" {
		if ids, err := scenarios.List(); err == nil && len(ids) > 0 {
			defaultScenario = ids[0]
		}
	}
	if defaultScenario == "" {
		logger.Fatalf("no scenario available: add one under %s or pass -scenario", filepath.Join(*configDir, "scenarios"))
	}

	cat, err := catalog.Load(filepath.Join(*configDir, "catalog_seed.json"), roots.Mods)
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}
	logger.Printf("catalog loaded: %d resources digest=%s", cat.Len(), cat.Digest())

	rules, err := cityphone.LoadArchivalRules(cfg.ArchivalRulesPath)
	if err != nil {
		logger.Fatalf("load archival rules: %v", err)
	}

	registry := mods.NewRegistry(roots.Mods)
	if err := registry.Refresh(); err != nil {
		logger.Fatalf("refresh mods: %v", err)
	}
	logger.Printf("mods registry: %d installed", len(registry.List()))

	// Optional read-model index; the JSONL streams stay canonical.
	var index repo.Indexer
	if !*disableDB {
		idx, err := indexdb.Open(filepath.Join(roots.Data, "index.db"))
		if err != nil {
			logger.Fatalf("open index db: %v", err)
		}
		defer idx.Close()
		index = idx
	}

	store, err := repo.Open(roots.Data, index)
	if err != nil {
		logger.Fatalf("open repo: %v", err)
	}
	txl, err := txlog.Open(roots.Data)
	if err != nil {
		logger.Fatalf("open txlog: %v", err)
	}
	scheduler, err := builder.NewScheduler(filepath.Join(roots.Data, "build_queue"), logger)
	if err != nil {
		logger.Fatalf("open build queue: %v", err)
	}
	intents, err := protocolfs.NewIntentWriter(roots.Protocol, true, logger)
	if err != nil {
		logger.Fatalf("open intents: %v", err)
	}
	social, err := protocolfs.NewSocialFeed(roots.Protocol)
	if err != nil {
		logger.Fatalf("open social feed: %v", err)
	}
	technology := protocolfs.NewTechnologyReader(roots.Protocol)

	o := oracle.New(cfg, logger)
	if !o.Enabled() {
		logger.Printf("llm disabled; deterministic fallbacks active")
	}

	var runner patch.CommandRunner
	var rconClient *rcon.Client
	if cfg.AutoExecute {
		rconClient = rcon.NewClient(cfg.RCON)
		defer rconClient.Close()
		runner = rconClient
		logger.Printf("auto-execute enabled via rcon %s:%d", cfg.RCON.Host, cfg.RCON.Port)
	}

	pipe := pipeline.New(pipeline.Deps{
		Config:          cfg,
		Log:             logger,
		Oracle:          o,
		Scenarios:       scenarios,
		Worldview:       wv,
		Normaliser:      normalize.New(o, logger),
		Story:           story.NewManager(story.NewRepository(filepath.Join(roots.Data, "story_state")), story.NewAgent(o, logger), cfg.ReadyBuildCapability, logger),
		Plans:           buildplan.New(o, logger),
		Planner:         planner.NewChain(planner.Deterministic{}, planner.NewCatalog(cat)),
		PatchExec:       patch.NewExecutor(txl, logger),
		Scheduler:       scheduler,
		Registry:        registry,
		Store:           store,
		Intents:         intents,
		Technology:      technology,
		Social:          social,
		Exhibits:        exhibit.NewStore(filepath.Join(roots.Data, "exhibit_instances")),
		Narratives:      exhibit.NewNarrativeStore(filepath.Join(roots.Data, "exhibits")),
		Renderer:        cityphone.NewRenderer(rules),
		Runner:          runner,
		DefaultScenario: defaultScenario,
	})

	ctx, cancel := signalContext()
	defer cancel()

	// Technology file watcher: log stage movement as it happens instead of
	// waiting for the next CityPhone poll.
	if watcher, err := protocolfs.NewWatcher(technology, logger); err != nil {
		logger.Printf("technology watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
		go watcher.Run(func(status model.TechnologyStatus) {
			logger.Printf("technology status updated: stage=%s risks=%d", status.Stage.Label, len(status.Risks))
		})
	}

	// Build-queue drain loop.
	if *drainQueue {
		executor := builder.NewExecutor(scheduler, registry, logger)
		interval := time.Duration(cfg.QueueDrainSeconds) * time.Second
		if interval <= 0 {
			interval = 5 * time.Second
		}
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := executor.Drain(ctx, runner, interval); err != nil && ctx.Err() == nil {
						logger.Printf("queue drain: %v", err)
					}
					switch archived, err := txl.ArchiveIfOver(txl.ArchiveDir(), cfg.TxlogArchiveBytes()); {
					case err != nil:
						logger.Printf("txlog rotate: %v", err)
					case archived != "":
						logger.Printf("txlog rotated to %s", archived)
					}
				}
			}
		}()
	}

	mux := http.NewServeMux()
	httpapi.NewServer(pipe, store, scheduler, registry, logger).Routes(mux)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s scenario=%s", *addr, defaultScenario)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
