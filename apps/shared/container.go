// Package shared wires the services used by both the API and the admin CLI.
package shared

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/prepdesk/core"
	"github.com/trezcool/prepdesk/core/template"
	assetsvc "github.com/trezcool/prepdesk/services/assets"
	importsvc "github.com/trezcool/prepdesk/services/importer"
	logsvc "github.com/trezcool/prepdesk/services/logger"
	notifysvc "github.com/trezcool/prepdesk/services/notify"
	"github.com/trezcool/prepdesk/services/session"
	inmemcache "github.com/trezcool/prepdesk/storage/cache/inmem"
	rediscache "github.com/trezcool/prepdesk/storage/cache/redis"
	"github.com/trezcool/prepdesk/storage/database"
	inmemdb "github.com/trezcool/prepdesk/storage/database/inmem"
	sqlxrepos "github.com/trezcool/prepdesk/storage/database/sqlx"
)

type (
	Storage struct {
		Saves  template.SaveLogRepository
		Drafts template.DraftRepository
		DB     *sqlx.DB
		Redis  *redis.Client
	}

	Container struct {
		Conf        *core.Config
		Logger      core.Logger
		Validate    *validator.Validate
		Translator  ut.Translator
		Session     *session.Store
		Previews    *template.Previews
		Notes       *notifysvc.Recorder
		Storage     Storage
		TemplateSvc *template.Service
	}
)

func NewLogger(conf *core.Config, prefix string) core.Logger {
	stdLogger := log.New(os.Stdout, prefix+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func NewValidation() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	template.InitValidators(validate, translator)
	return validate, translator
}

// OpenStorage connects the save log to the database and the drafts to Redis.
// In debug mode an unreachable backend is replaced by its in-memory variant.
func OpenStorage(ctx context.Context, conf *core.Config, logger core.Logger) (Storage, error) {
	var st Storage

	db, err := setUpDB(ctx, conf)
	switch {
	case err == nil:
		st.DB = db
		st.Saves = sqlxrepos.NewSaveLogRepository(db)
	case conf.Debug:
		logger.Warn(fmt.Sprintf("database unavailable, keeping the save log in memory: %v", err))
		st.Saves = inmemdb.NewSaveLogRepository()
	default:
		return Storage{}, errors.Wrap(err, "setting up database")
	}

	rdb, err := rediscache.Open(ctx, conf)
	switch {
	case err == nil:
		st.Redis = rdb
		st.Drafts = rediscache.NewDraftRepository(rdb, conf.Redis.DraftTTL)
	case conf.Debug:
		logger.Warn(fmt.Sprintf("redis unavailable, keeping drafts in memory: %v", err))
		st.Drafts = inmemcache.NewDraftRepository(conf.Redis.DraftTTL)
	default:
		st.Close()
		return Storage{}, errors.Wrap(err, "setting up redis")
	}
	return st, nil
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (st Storage) Close() {
	if st.DB != nil {
		_ = st.DB.Close()
	}
	if st.Redis != nil {
		_ = st.Redis.Close()
	}
}

// NewContainer builds the template service and everything it talks to.
func NewContainer(conf *core.Config, logger core.Logger, st Storage) (*Container, error) {
	validate, translator := NewValidation()

	previews, err := template.NewPreviews(conf.Uploads.StagingDir)
	if err != nil {
		return nil, err
	}

	sess := session.NewStore(conf.Templates.Token, nil, &http.Client{})
	sess.Subscribe(func(ev session.Event) {
		logger.Warn(fmt.Sprintf("template service session %s", ev))
	})

	limits := template.MediaLimits{
		MaxImageBytes: conf.Uploads.MaxImageBytes,
		MaxAudioBytes: conf.Uploads.MaxAudioBytes,
	}

	notes := notifysvc.NewRecorder(100)
	notifiers := core.Notifiers{notifysvc.NewLogNotifier(logger), notes}
	if !conf.Debug && conf.Notify.SendgridAPIKey != "" {
		notifiers = append(notifiers, notifysvc.NewSendgridNotifier(conf, logger))
	}

	svc, err := template.NewService(template.ServiceDeps{
		Uploader: assetsvc.NewUploader(sess, conf.Templates.BaseURL, limits, conf.Templates.UploadTimeout),
		Importer: importsvc.NewClient(sess, conf.Templates.BaseURL, conf.Templates.RequestTimeout),
		Gate:     template.NewGate(validate, translator),
		Saves:    st.Saves,
		Drafts:   st.Drafts,
		Notifier: notifiers,
		Logger:   logger,
		Status:   conf.Templates.Status,
	})
	if err != nil {
		return nil, err
	}

	return &Container{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Session:     sess,
		Previews:    previews,
		Notes:       notes,
		Storage:     st,
		TemplateSvc: svc,
	}, nil
}
