// Command tripkeeper runs the flight-status update scheduler and its HTTP
// control surface.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/tripkeeper/tripkeeper/internal/api"
	"github.com/tripkeeper/tripkeeper/internal/cache"
	"github.com/tripkeeper/tripkeeper/internal/config"
	"github.com/tripkeeper/tripkeeper/internal/docstore"
	"github.com/tripkeeper/tripkeeper/internal/gitsync"
	"github.com/tripkeeper/tripkeeper/internal/itinerary"
	"github.com/tripkeeper/tripkeeper/internal/logging"
	"github.com/tripkeeper/tripkeeper/internal/provider"
	"github.com/tripkeeper/tripkeeper/internal/quota"
	"github.com/tripkeeper/tripkeeper/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	// .env is optional; real deployments set the variables directly.
	_ = godotenv.Load()

	if flag.Arg(0) == "encrypt-key" {
		if err := runEncryptKey(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configPath); err != nil {
		log.WithError(err).Fatal("tripkeeper exited with error")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging)

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if errClose := store.Close(); errClose != nil {
			log.WithError(errClose).Warn("closing document store failed")
		}
	}()

	accessKey, err := cfg.ResolveAccessKey()
	if err != nil {
		return err
	}
	if accessKey == "" {
		log.Warn("no provider access key configured, status updates will be skipped until one is set")
	}
	client := provider.NewAviationStackClient(accessKey, cfg.Provider.BaseURL, cfg.ProviderTimeout())

	var syncer *gitsync.Syncer
	if cfg.GitSync.Enabled {
		fileStore, ok := store.(*docstore.FileStore)
		if !ok {
			log.Warn("git sync requires file storage, disabling")
		} else if syncer, err = gitsync.NewSyncer(fileStore.Dir(), cfg.GitSync.RemoteURL, cfg.GitSync.Token); err != nil {
			log.WithError(err).Warn("git sync unavailable, continuing without it")
			syncer = nil
		}
	}

	tracker := quota.NewTracker(store, cfg.Quota.MonthlyLimit)
	statusCache := cache.New(store)
	sched := scheduler.New(scheduler.Options{
		Source:      itinerary.NewFileSource(cfg.VacationsFile),
		Updater:     scheduler.NewUpdater(client, tracker, statusCache),
		Cache:       statusCache,
		Quota:       tracker,
		Jobs:        jobsFromConfig(cfg),
		Pacing:      cfg.PacingDuration(),
		Credentials: client.Configured,
		Syncer:      syncer,
	})

	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			logging.SetLevel(updated.Logging.Level)
			tracker.SetMonthlyLimit(updated.Quota.MonthlyLimit)
			sched.SetPacing(updated.PacingDuration())
		}); err != nil {
			log.WithError(err).Warn("config watcher unavailable")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return api.NewServer(sched, addr).Run(ctx)
}

func buildStore(cfg *config.Config) (docstore.Store, error) {
	switch cfg.Storage.Type {
	case "file":
		return docstore.NewFileStore(cfg.Storage.DataDir)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return docstore.NewPostgresStore(ctx, cfg.Storage.PostgresDSN)
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return docstore.NewS3Store(ctx, docstore.S3Options{
			Endpoint:  cfg.Storage.S3.Endpoint,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Bucket:    cfg.Storage.S3.Bucket,
			UseSSL:    cfg.Storage.S3.UseSSL,
		})
	case "memory":
		log.Warn("memory storage configured: quota counter and status cache will not survive restarts")
		return docstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func jobsFromConfig(cfg *config.Config) []scheduler.Job {
	jobs := scheduler.DefaultJobs()
	specs := map[string]string{
		"daily":   cfg.Scheduler.DailyCron,
		"midday":  cfg.Scheduler.MiddayCron,
		"evening": cfg.Scheduler.EveningCron,
		"hourly":  cfg.Scheduler.HourlyCron,
	}
	for i := range jobs {
		if spec := specs[jobs[i].Name]; spec != "" {
			jobs[i].Spec = spec
		}
	}
	return jobs
}

// runEncryptKey reads a provider key from stdin and prints the encrypted
// blob for provider.encrypted-key-file.
func runEncryptKey() error {
	passphrase := os.Getenv(config.EnvPassphrase)
	if passphrase == "" {
		return fmt.Errorf("set %s before encrypting a key", config.EnvPassphrase)
	}
	fmt.Fprint(os.Stderr, "provider access key: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return fmt.Errorf("empty key")
	}
	blob, err := config.EncryptSecret(passphrase, []byte(key))
	if err != nil {
		return err
	}
	fmt.Println(blob)
	return nil
}
