package main

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"bookwhisper/chat"
	"bookwhisper/database"
	"bookwhisper/handlers"
	"bookwhisper/identity"
	"bookwhisper/media"
	"bookwhisper/middleware"
	"bookwhisper/notify"
)

func main() {
	log := logrus.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}

	if level, err := logrus.ParseLevel(envOr("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}
	if envOr("LOG_FORMAT", "text") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := database.Initialize(envOr("DATABASE_PATH", "whisper.db")); err != nil {
		log.WithError(err).Fatal("database initialization failed")
	}
	defer database.Close()
	log.Info("database initialized")

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	// Participant directory: existence probes and note addresses come from
	// the external account service; DIRECTORY_FILE is the local stand-in.
	var directory identity.DirectoryFunc
	address := handlers.AddressFunc(func(string) (string, error) {
		return "", os.ErrNotExist
	})
	if path := os.Getenv("DIRECTORY_FILE"); path != "" {
		dir, err := identity.LoadFileDirectory(path)
		if err != nil {
			log.WithError(err).Fatal("directory file load failed")
		}
		directory = dir.Exists
		address = dir.Address
	}
	resolver := identity.NewJWTResolver([]byte(secret), directory)

	hub := handlers.NewHub(log)
	go hub.Run()

	coordinator := chat.NewCoordinator(hub, log)

	mediaDir := envOr("MEDIA_DIR", "./media-store")
	mediaStore := &media.DiskStore{Dir: mediaDir, URLPrefix: "/media"}

	var notifier notify.Notifier = &notify.LogNotifier{Log: log}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		notifier = &notify.SMTPNotifier{
			Host:     host,
			Port:     envOr("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     envOr("SMTP_FROM", os.Getenv("SMTP_USERNAME")),
		}
	}

	chatHandler := &handlers.ChatHandler{
		Coordinator: coordinator,
		Hub:         hub,
		Resolver:    resolver,
		Media:       mediaStore,
		Log:         log,
	}
	noteHandler := &handlers.NoteHandler{
		Notifier: notifier,
		Resolver: resolver,
		Address:  address,
		Log:      log,
	}

	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(resolver))
	api.HandleFunc("/chat", chatHandler.ListThreads).Methods("GET")
	api.HandleFunc("/chat/user/{id}", chatHandler.LookupUser).Methods("GET")
	api.HandleFunc("/chat/{id}", chatHandler.SendMessage).Methods("POST")
	api.HandleFunc("/chat/{id}/image", chatHandler.SendImage).Methods("POST")
	api.HandleFunc("/chat/{id}/video", chatHandler.SendVideo).Methods("POST")
	api.HandleFunc("/chat/{id}/clear", chatHandler.ClearThread).Methods("POST")
	api.HandleFunc("/contacts", chatHandler.GetContacts).Methods("GET")
	api.HandleFunc("/note", noteHandler.SendNote).Methods("POST")

	router.Handle("/ws", middleware.Auth(resolver)(handlers.HandleWebSocket(hub)))
	router.Handle("/metrics", promhttp.Handler())
	router.PathPrefix("/media/").Handler(
		http.StripPrefix("/media/", http.FileServer(http.Dir(mediaDir))))

	port := envOr("PORT", "8080")
	log.WithField("port", port).Info("server starting")
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
