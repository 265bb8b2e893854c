package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"texttools/internal/config"
	"texttools/internal/models"
	"texttools/internal/preprocess"
	"texttools/internal/services"
	"texttools/internal/store"
	"texttools/internal/store/filestate"
	"texttools/internal/store/primary"
	"texttools/internal/worker"
	"texttools/pkg/categorizer"
	"texttools/pkg/detector"
	"texttools/pkg/handlers"
)

type App struct {
	Config *config.Config

	Provider  *services.OpenAIBatchProvider
	JobClient store.JobClient // nil when Redis is unreachable or not configured

	// Exactly one of these backs job state, depending on batch.state_backend.
	FileState    *filestate.Store
	PrimaryStore *primary.StoreImpl

	Redis    *redis.Client // only set when batch.lock.enabled
	Handlers []services.ResultHandler

	Detector    *detector.Detector
	Categorizer *categorizer.LLMCategorizer // nil until categories are configured

	resultsDB   *sql.DB
	prototypeDB *sql.DB
}

// NewApp builds every component the CLI, API server and worker share.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	app.Provider = services.NewOpenAIBatchProvider(services.OpenAIOptions{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		Organization: cfg.OpenAI.Organization,
	})

	if err := app.initStateStore(ctx); err != nil {
		return nil, err
	}
	if err := app.initRedis(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.initJobClient()
	if err := app.initHandlers(ctx); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.initDetector(); err != nil {
		app.Close()
		return nil, err
	}
	if len(cfg.Categorizer.Categories) > 0 {
		c, err := app.NewCategorizer(cfg.Categorizer.Categories)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Categorizer = c
	}

	log.Debug("Application initialization complete.")
	return app, nil
}

// --- Private Helper Methods ---

func (a *App) initStateStore(ctx context.Context) error {
	switch a.Config.Batch.StateBackend {
	case "postgres":
		ps, err := primary.NewPrimaryStore(ctx, a.Config.Database.Primary.DSN)
		if err != nil {
			return fmt.Errorf("init primary store: %w", err)
		}
		if err := ps.EnsureSchema(ctx); err != nil {
			ps.Close()
			return fmt.Errorf("init primary store: %w", err)
		}
		a.PrimaryStore = ps
	default:
		a.FileState = filestate.New(a.Config.Batch.StateDir)
	}
	return nil
}

// stateStore returns the job state store for one use case.
func (a *App) stateStore(kind string) store.JobStateStore {
	if a.PrimaryStore != nil {
		return store.NewNamespaced(a.PrimaryStore, kind)
	}
	return filestate.New(filepath.Join(a.FileState.Dir(), kind))
}

func (a *App) initRedis(ctx context.Context) error {
	if !a.Config.Batch.Lock.Enabled {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return fmt.Errorf("connect to redis for job locks: %w", err)
	}
	a.Redis = rdb
	return nil
}

func (a *App) locker(kind string) store.Locker {
	if a.Redis == nil {
		return store.NoopLocker{}
	}
	return store.NewRedisLocker(a.Redis, a.Config.Batch.Lock.Prefix+kind+":", a.Config.Batch.Lock.TTL)
}

func (a *App) initJobClient() {
	jc, err := store.NewAsynqJobClient(a.RedisClientOpt())
	if err != nil {
		log.Warnf("Background batch checks disabled: %v", err)
		return
	}
	a.JobClient = jc
}

// RedisClientOpt is the asynq connection shared by the job client and worker.
func (a *App) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

func (a *App) initHandlers(ctx context.Context) error {
	cfg := a.Config.Handlers
	if cfg.Print {
		a.Handlers = append(a.Handlers, handlers.NewPrintResultHandler(os.Stdout))
	}
	if cfg.SaveFile != "" {
		a.Handlers = append(a.Handlers, handlers.NewSaveToFileResultHandler(cfg.SaveFile))
	}
	if cfg.Database.Enabled {
		db, err := handlers.OpenSQL(ctx, cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("init results database: %w", err)
		}
		a.resultsDB = db
		h, err := handlers.NewSQLResultHandler(db, cfg.Database.Table)
		if err != nil {
			return fmt.Errorf("init results database: %w", err)
		}
		if err := h.EnsureTable(ctx); err != nil {
			return fmt.Errorf("init results database: %w", err)
		}
		a.Handlers = append(a.Handlers, h)
	}
	if len(a.Handlers) == 0 {
		a.Handlers = append(a.Handlers, handlers.NoOpResultHandler{})
	}
	return nil
}

func (a *App) serviceOptions(kind string) services.BatchServiceOptions {
	b := a.Config.Batch
	return services.BatchServiceOptions{
		Endpoint:         b.Endpoint,
		CompletionWindow: b.CompletionWindow,
		WorkDir:          b.WorkDir,
		Handlers:         append([]services.ResultHandler(nil), a.Handlers...),
		Locker:           a.locker(kind),
	}
}

func (a *App) preprocessor() preprocess.Func {
	return preprocess.FromOptions(preprocess.Options{
		Normalize:    a.Config.Preprocess.Normalize,
		MaxSentences: a.Config.Preprocess.MaxSentences,
	})
}

func (a *App) initDetector() error {
	cfg := a.Config
	prompt, err := config.LoadPromptContent(cfg.Detector.Prompt)
	if err != nil {
		return fmt.Errorf("load detector prompt: %w", err)
	}
	if err := os.MkdirAll(cfg.Batch.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	d, err := detector.New(a.Provider, a.stateStore(models.KindDetect), a.serviceOptions(models.KindDetect), detector.Options{
		Model:        cfg.Detector.Model,
		SystemPrompt: prompt,
		Temperature:  cfg.Detector.Temperature,
		MaxTokens:    cfg.Detector.MaxTokens,
		Preprocess:   a.preprocessor(),
		PollInterval: cfg.Batch.PollInterval,
		Timeout:      cfg.Batch.Timeout,
	})
	if err != nil {
		return err
	}
	a.Detector = d
	return nil
}

// NewCategorizer builds a categorizer for names, sharing state and handlers
// with the configured one.
func (a *App) NewCategorizer(names []string) (*categorizer.LLMCategorizer, error) {
	cfg := a.Config
	categories, err := categorizer.NewCategories(names...)
	if err != nil {
		return nil, err
	}
	prompt, err := config.LoadPromptContent(cfg.Categorizer.Prompt)
	if err != nil {
		return nil, fmt.Errorf("load categorizer prompt: %w", err)
	}
	return categorizer.NewLLMCategorizer(a.Provider, a.stateStore(models.KindCategorize), a.serviceOptions(models.KindCategorize), categories, categorizer.Options{
		Model:          cfg.Categorizer.Model,
		PromptTemplate: prompt,
		Temperature:    cfg.Categorizer.Temperature,
		MaxTokens:      cfg.Categorizer.MaxTokens,
		Preprocess:     a.preprocessor(),
		PollInterval:   cfg.Batch.PollInterval,
		Timeout:        cfg.Batch.Timeout,
	})
}

// NewEmbeddingCategorizer builds the synchronous embedding categorizer for
// names. Prototypes come from database.primary when categorizer.embedding.store
// is set and are embedded on the fly otherwise.
func (a *App) NewEmbeddingCategorizer(ctx context.Context, names []string) (*categorizer.EmbeddingCategorizer, error) {
	cfg := a.Config.Categorizer.Embedding
	categories, err := categorizer.NewCategories(names...)
	if err != nil {
		return nil, err
	}
	embedder := a.Provider.Embedder(cfg.Model)

	var protos categorizer.Prototypes
	if cfg.Store {
		ps, err := a.prototypeStore(ctx)
		if err != nil {
			return nil, err
		}
		protos, err = categorizer.LoadOrBuildPrototypes(ctx, embedder, ps, embedder.Model(), categories, cfg.Examples)
		if err != nil {
			return nil, err
		}
	} else {
		protos, err = categorizer.BuildPrototypes(ctx, embedder, categories, cfg.Examples)
		if err != nil {
			return nil, err
		}
	}
	return categorizer.NewEmbeddingCategorizer(embedder, categories, protos, categorizer.EmbeddingOptions{
		Preprocess: a.preprocessor(),
	})
}

func (a *App) prototypeStore(ctx context.Context) (*primary.PrototypeStore, error) {
	if a.prototypeDB == nil {
		db, err := handlers.OpenSQL(ctx, "pgx", a.Config.Database.Primary.DSN)
		if err != nil {
			return nil, fmt.Errorf("open prototype store: %w", err)
		}
		a.prototypeDB = db
	}
	ps := primary.NewPrototypeStore(a.prototypeDB)
	if err := ps.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return ps, nil
}

// Lifecycle returns the batch service behind a use case kind.
func (a *App) Lifecycle(kind string) (*services.BatchService, error) {
	switch kind {
	case models.KindDetect:
		return a.Detector.Service(), nil
	case models.KindCategorize:
		if a.Categorizer == nil {
			return nil, fmt.Errorf("categorizer.categories is not configured")
		}
		return a.Categorizer.Service(), nil
	}
	return nil, fmt.Errorf("unknown kind %q", kind)
}

// Watchers lists the lifecycles the background worker can poll.
func (a *App) Watchers() map[string]worker.BatchWatcher {
	w := map[string]worker.BatchWatcher{models.KindDetect: a.Detector.Service()}
	if a.Categorizer != nil {
		w[models.KindCategorize] = a.Categorizer.Service()
	} else {
		log.Warn("No categories configured; categorize jobs will not be watched.")
	}
	return w
}

// Close releases connections opened by NewApp.
func (a *App) Close() {
	if a.JobClient != nil {
		if err := a.JobClient.Close(); err != nil {
			log.Printf("Error closing job client: %v", err)
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.resultsDB != nil {
		a.resultsDB.Close()
	}
	if a.prototypeDB != nil {
		a.prototypeDB.Close()
	}
	if a.PrimaryStore != nil {
		a.PrimaryStore.Close()
	}
}
