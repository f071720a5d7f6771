package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Resona/cache"
	"Resona/config"
	"Resona/core/engine"
	"Resona/core/events"
	"Resona/core/player"
	"Resona/db"
	"Resona/logger"
	"Resona/repository"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/mux"
)

// Start wires the full control-plane and blocks until shutdown.
func Start() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
	})

	// player state store: Redis when configured, in-process otherwise
	var store player.Store
	if cfg.RedisHost != "" {
		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Fatal("failed to connect to Redis", logger.ErrorField(err))
		}
		defer cache.CloseRedis()
		store = cache.NewRedisPlayerStore(cache.RedisClient)
		logger.Info("using Redis player store", logger.String("host", cfg.RedisHost))
	} else {
		store = cache.NewMemoryPlayerStore()
		logger.Info("using in-process player store")
	}

	// persisted settings are optional
	var settingsRepo repository.SettingsRepository
	if cfg.DBName != "" {
		if err := db.ConnectDB(cfg); err != nil {
			logger.Fatal("failed to connect to database", logger.ErrorField(err))
		}
		defer db.CloseDB()
		if err := db.AutoMigrate(repository.PlayerSettingsRecord()); err != nil {
			logger.Fatal("failed to migrate database", logger.ErrorField(err))
		}
		settingsRepo = repository.NewGormSettingsRepository(db.DB)
	}

	if cfg.DiscordToken == "" {
		logger.Fatal("DISCORD_TOKEN is required")
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("failed to create Discord session", logger.ErrorField(err))
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	session.StateEnabled = true

	if err := session.Open(); err != nil {
		logger.Fatal("failed to open Discord gateway", logger.ErrorField(err))
	}
	defer session.Close()

	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		logger.Fatal("failed to parse bot user id", logger.ErrorField(err))
	}
	logger.Info("Discord gateway connected",
		logger.String("user", session.State.User.Username),
		logger.User(botID))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	eng, err := engine.NewLavalinkEngine(ctx, botID, engine.NodeConfig{
		Name:     cfg.LavalinkName,
		Address:  cfg.LavalinkAddress,
		Password: cfg.LavalinkPassword,
		Secure:   cfg.LavalinkSecure,
	})
	cancel()
	if err != nil {
		logger.Fatal("failed to connect to Lavalink", logger.ErrorField(err))
	}

	// voice state flows gateway -> engine
	session.AddHandler(func(_ *discordgo.Session, event *discordgo.VoiceServerUpdate) {
		eng.OnVoiceServerUpdate(event)
	})
	session.AddHandler(func(_ *discordgo.Session, event *discordgo.VoiceStateUpdate) {
		eng.OnVoiceStateUpdate(botID, event)
	})

	presence := voicePresenceFunc(session)

	hub := events.NewHub(presence)
	go hub.Run()
	defer hub.Stop()

	service := player.NewService(store, eng, settingsRepo, hub)
	musicHandler := NewMusicHandler(service, hub, presence, cfg.APIKey)

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.HandleFunc("/healthz", handleHealthz(cfg)).Methods(http.MethodGet)
	musicHandler.Register(router)

	// no WriteTimeout: /events holds connections open indefinitely
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}

// voicePresenceFunc answers whether a user shares the bot's voice channel,
// from the gateway state cache.
func voicePresenceFunc(session *discordgo.Session) events.VoicePresenceFunc {
	return func(guildID, userID snowflake.ID) bool {
		guild, err := session.State.Guild(guildID.String())
		if err != nil {
			return false
		}

		var botChannel string
		for _, vs := range guild.VoiceStates {
			if vs.UserID == session.State.User.ID {
				botChannel = vs.ChannelID
				break
			}
		}
		if botChannel == "" {
			return false
		}

		for _, vs := range guild.VoiceStates {
			if vs.UserID == userID.String() {
				return vs.ChannelID == botChannel
			}
		}
		return false
	}
}

func handleHealthz(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.RedisHost != "" {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cache.PingRedis(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Redis unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
