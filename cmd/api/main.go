package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ewanfisher/voxmail/backend/internal/config"
	"github.com/ewanfisher/voxmail/backend/internal/handler"
	"github.com/ewanfisher/voxmail/backend/internal/mailtool"
	aiService "github.com/ewanfisher/voxmail/backend/internal/service/ai"
	agentService "github.com/ewanfisher/voxmail/backend/internal/service/agent"
	sessionService "github.com/ewanfisher/voxmail/backend/internal/service/session"
	speechService "github.com/ewanfisher/voxmail/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Mailbox adapters, one per configured account slot
	boxes := make([]mailtool.Mailbox, 0, len(cfg.Mail.Accounts))
	for _, account := range cfg.Mail.Accounts {
		boxes = append(boxes, mailtool.NewIMAPMailbox(account))
		log.Printf("mail account %q configured", account.Name)
	}
	if len(boxes) == 0 {
		log.Println("warning: no mail accounts configured; list/read/send will be unavailable")
	}

	// AI service drives intent classification and reply drafting
	var classifier agentService.Classifier
	var replies agentService.ReplyGenerator
	if cfg.AI.Enabled() {
		aiSvc, err := aiService.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing with the fixed command vocabulary only")
		} else {
			classifier = aiSvc
			replies = aiSvc
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("model credentials not configured, skipping AI initialization")
	}

	sessions := sessionService.NewStore(cfg.Mail.AccountNames(), cfg.Session.IdleTimeout)
	sessions.StartSweeper(ctx, cfg.Session.SweepInterval)

	engine := agentService.NewService(sessions, boxes, classifier, replies)

	// Speech service enables the voice websocket
	var speechSvc *speechService.Service
	if cfg.Speech.Enabled {
		speechSvc = speechService.NewService(cfg.Speech)
		log.Println("Speech service initialized successfully")
	} else {
		log.Println("speech credentials not configured, voice turns disabled")
	}

	router := handler.NewRouter(engine, speechSvc)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voxmail backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
