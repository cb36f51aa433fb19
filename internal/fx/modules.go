package fx

import (
	"database/sql"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"rally-tagger/internal/annotate"
	"rally-tagger/internal/api"
	"rally-tagger/internal/config"
	"rally-tagger/internal/constants"
	"rally-tagger/internal/database"
	"rally-tagger/internal/db"
	"rally-tagger/internal/logger"
	"rally-tagger/internal/repository"
	"rally-tagger/internal/server"
	"rally-tagger/internal/service"
	"rally-tagger/internal/session"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

func ProvideSessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		FlushInterval: cfg.FlushInterval,
		TagSpeed:      cfg.TagSpeed,
		Preview: annotate.Preview{
			Lead: cfg.PreviewLead.Seconds(),
			Tail: cfg.PreviewTail.Seconds(),
		},
		FrameStep: constants.FrameStep,
	}
}

func ProvideManager(svc *service.SessionService, store *repository.TaggingStore, webhook *api.WebhookClient, opts session.Options, logger zerolog.Logger) *session.Manager {
	return session.NewManager(svc, svc, store, webhook, opts, logger)
}

// Store is the storage layer shared by the server and tagctl.
var Store = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	// repos
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewSetRepository),
	fx.Provide(repository.NewRallyRepository),
	// svc
	fx.Provide(service.NewFinalizeService),
	fx.Provide(service.NewSessionService),
)

var Module = fx.Options(
	Store,
	fx.Provide(repository.NewTaggingStore),
	// webhook client
	fx.Provide(api.NewWebhookClient),
	// sessions
	fx.Provide(ProvideSessionOptions),
	fx.Provide(ProvideManager),
	// server
	fx.Provide(server.NewTaggingServer),
)
