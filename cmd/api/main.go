package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"learnhub/internal/adapter/api"
	"learnhub/internal/adapter/api/handler"
	apimiddleware "learnhub/internal/adapter/api/middleware"
	"learnhub/internal/adapter/api/router"
	"learnhub/internal/adapter/repository"
	domainrepo "learnhub/internal/domain/repository"
	"learnhub/internal/domain/service"
	"learnhub/internal/infrastructure/auth"
	"learnhub/internal/infrastructure/firebase"
	"learnhub/internal/infrastructure/messaging"
	"learnhub/internal/infrastructure/ratelimit"
	"learnhub/internal/infrastructure/storage"
	"learnhub/internal/infrastructure/websocket"
	"learnhub/internal/usecase"
	"learnhub/pkg/config"
	"learnhub/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		convRepo    domainrepo.ConversationRepository
		userRepo    domainrepo.UserRepository
		provisioner auth.AccountProvisioner
		verifier    auth.TokenVerifier
		attachments service.AttachmentStorage
	)

	if cfg.UsesFirestore() {
		opts := credentialOptions(cfg)

		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			logger.Fatal("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		convRepo = repository.NewFirestoreConversationRepository(firestoreClient)
		userRepo = repository.NewFirestoreUserRepository(firestoreClient)

		if cfg.AuthProvider == "firebase" {
			firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
			if err != nil {
				logger.Fatal("Failed to initialize Firebase: %v", err)
			}
			authClient, err := firebaseApp.Auth(ctx)
			if err != nil {
				logger.Fatal("Failed to initialize Firebase Auth: %v", err)
			}
			verifier = firebase.NewFirebaseAuthClient(authClient)
		}

		if cfg.StorageBucket != "" {
			storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, cfg.AllowedOrigins, opts...)
			if err != nil {
				logger.Fatal("Failed to initialize Cloud Storage: %v", err)
			}
			defer storageClient.Close()
			attachments = storageClient
		}
	} else {
		if cfg.AuthProvider == "firebase" {
			logger.Fatal("AUTH_PROVIDER=firebase requires FIREBASE_PROJECT_ID")
		}
		logger.Warn("FIREBASE_PROJECT_ID not set, using in-memory stores")

		memoryUsers := repository.NewMemoryUserRepository()
		convRepo = repository.NewMemoryConversationRepository()
		userRepo = memoryUsers
		provisioner = memoryProvisioner(cfg, memoryUsers)
	}

	if verifier == nil {
		jwtVerifier, err := newJWTVerifier(cfg)
		if err != nil {
			logger.Fatal("Failed to initialize token verifier: %v", err)
		}
		defer jwtVerifier.Close()
		verifier = jwtVerifier
	}

	authenticator := auth.NewAuthenticator(verifier, userRepo, cfg.AuthTimeout)
	if provisioner != nil {
		authenticator.WithProvisioner(provisioner)
	}

	publisher := messaging.NewNoopPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		logger.Info("Publishing message events to %s on %v", cfg.KafkaTopicMessageSent, cfg.KafkaBrokers)
		publisher = messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicMessageSent)
	}
	defer publisher.Close()

	rateLimiter := ratelimit.NewRateLimiter(nil)
	rateLimiter.StartCleanupRoutine(ctx)

	presence := websocket.NewPresence(userRepo, cfg.WSEventTimeout)
	rooms := websocket.NewRooms(convRepo)

	chatUseCase := usecase.NewChatUseCase(convRepo, userRepo, presence, rooms, rateLimiter, usecase.ChatUseCaseOptions{
		Attachments:  attachments,
		Publisher:    publisher,
		EventTimeout: cfg.WSEventTimeout,
	})

	handlers := handler.Setup(ctx, chatUseCase, authenticator, cfg.AllowedOrigins, websocket.ClientOptions{
		WriteWait:      cfg.WSWriteWait,
		PingInterval:   cfg.WSPingInterval,
		MaxMessageSize: cfg.WSMaxMessage,
		SendBuffer:     cfg.WSSendBuffer,
	})

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authenticator)
	adminMiddleware := apimiddleware.NewAdminMiddleware(userRepo)

	router.Setup(e, handlers, authMiddleware, adminMiddleware, rateLimiter)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down, closing %d connection(s)", len(presence.OnlineUsers()))
	presence.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

// credentialOptions prefers inline service-account JSON, then a file path.
// With neither, the client libraries fall back to application default
// credentials or the emulator.
func credentialOptions(cfg *config.Config) []option.ClientOption {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))}
	}
	if path := cfg.FirebaseServiceAccountPath; path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Fatal("Service account file does not exist: %s", path)
		}
		logger.Info("Using Firebase service account from file: %s", path)
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// memoryProvisioner is nil unless AUTH_AUTO_PROVISION is set, so unknown
// subjects fail authentication by default.
func memoryProvisioner(cfg *config.Config, users *repository.MemoryUserRepository) auth.AccountProvisioner {
	if !cfg.AuthAutoProvision {
		return nil
	}
	logger.Warn("AUTH_AUTO_PROVISION enabled, unknown token subjects get accounts on first connect")
	return users
}

func newJWTVerifier(cfg *config.Config) (*auth.JWTVerifier, error) {
	if cfg.JWTJWKSURL != "" {
		return auth.NewJWKSVerifier(cfg.JWTJWKSURL, cfg.JWTSecret)
	}
	return auth.NewJWTVerifier(cfg.JWTSecret), nil
}
