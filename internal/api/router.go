package api

import (
	"context"
	"fmt"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/api/handlers"
	"github.com/AmirShokry/medicalchallengearena-sub000/internal/api/middleware"
	"github.com/AmirShokry/medicalchallengearena-sub000/internal/config"
	"github.com/AmirShokry/medicalchallengearena-sub000/internal/repository"
	"github.com/AmirShokry/medicalchallengearena-sub000/internal/service"
	"github.com/AmirShokry/medicalchallengearena-sub000/internal/websocket"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/database"
	jwtutil "github.com/AmirShokry/medicalchallengearena-sub000/pkg/jwt"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/logger"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

const (
	httpBurst = 100
	httpRate  = 10
)

// Server is the wired coordinator plus its HTTP surface.
type Server struct {
	Router  *gin.Engine
	Hub     *websocket.Hub
	Game    *service.GameService
	Sweeper *service.Sweeper
}

// collaborators are the external stores the coordinator consumes.
type collaborators struct {
	friends    service.FriendStore
	decks      service.DeckProvider
	categories handlers.CategoryLister
	results    service.ResultStore
}

func newCollaborators(db *database.DB) (collaborators, error) {
	if db == nil {
		logger.Warn("No database configured, using in-memory storage")
		decks := repository.NewMemoryDeckProvider(repository.SampleCases(4, 10, 5))
		return collaborators{
			friends:    repository.NewMemoryFriendStore(),
			decks:      decks,
			categories: decks,
			results:    repository.NewMemoryResultStore(),
		}, nil
	}

	gdb, err := db.Gorm()
	if err != nil {
		return collaborators{}, err
	}
	content := repository.NewContentRepository(gdb)
	return collaborators{
		friends:    repository.NewFriendRepository(db),
		decks:      content,
		categories: content,
		results:    repository.NewMatchResultRepository(db),
	}, nil
}

// SetupRouter builds the coordinator and its routes. ctx bounds every
// websocket connection. db may be nil.
func SetupRouter(ctx context.Context, cfg *config.Config, db *database.DB) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	deps, err := newCollaborators(db)
	if err != nil {
		return nil, fmt.Errorf("failed to set up storage: %w", err)
	}

	hub := websocket.NewHub(logger.Named("ws"))
	presence := service.NewPresenceService(deps.friends, logger.Named("presence"))
	pool := service.NewMatchmakingPool(cfg.MatchCandidateWindow)
	sessions := service.NewSessionStore(logger.Named("sessions"))
	peers := service.NewPeerTable()

	matchmaking := service.NewMatchmakingService(hub, presence, pool, sessions, peers, deps.decks, cfg.DefaultDeckSize, logger.Named("matchmaking"))
	relay := service.NewRelayService(hub, sessions, peers, logger.Named("relay"))
	results := service.NewResultService(sessions, deps.results, logger.Named("results"))
	game := service.NewGameService(hub, presence, pool, sessions, peers, matchmaking, relay, results, logger.Named("game"))

	wsLimiter := ratelimit.NewRateLimiter(cfg.WSMessageBurst, cfg.WSMessageRate)
	httpLimiter := ratelimit.NewRateLimiter(httpBurst, httpRate)
	sweeper := service.NewSweeper(sessions, game, cfg.SessionMaxAge, cfg.SweepInterval, logger.Named("sweeper"), wsLimiter, httpLimiter)

	jwtManager := jwtutil.NewManager(cfg.JWTSecret, cfg.JWTExpiration)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	wsHandler := handlers.NewWebSocketHandler(ctx, hub, websocket.Upgrader(cfg.CORSAllowedOrigins), game, wsLimiter, logger.Named("ws"))
	presenceHandler := handlers.NewPresenceHandler(presence)
	statsHandler := handlers.NewStatsHandler(game)
	categoryHandler := handlers.NewCategoryHandler(deps.categories)

	router.GET("/health", handlers.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ws", middleware.Auth(jwtManager), wsHandler.HandleWebSocket)

		authed := v1.Group("")
		authed.Use(middleware.Auth(jwtManager))
		authed.Use(middleware.RateLimit(httpLimiter, middleware.RateLimitConfig{Capacity: httpBurst, RefillRate: httpRate}))
		{
			authed.GET("/presence", presenceHandler.GetStatuses)
			authed.GET("/stats", statsHandler.GetStats)
			authed.GET("/categories", categoryHandler.ListCategories)
		}
	}

	return &Server{
		Router:  router,
		Hub:     hub,
		Game:    game,
		Sweeper: sweeper,
	}, nil
}
