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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/joho/godotenv"

	"github.com/leomaro7/kb-chat/internal/config"
	"github.com/leomaro7/kb-chat/internal/handler"
	streamHandler "github.com/leomaro7/kb-chat/internal/handler/stream"
	"github.com/leomaro7/kb-chat/internal/service/chat"
	"github.com/leomaro7/kb-chat/internal/service/kb"
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

	chatSvc := chat.NewService()

	var querier streamHandler.Querier
	if cfg.KB.Enabled() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KB.Region))
		if err != nil {
			log.Printf("warning: failed to load AWS configuration: %v", err)
			log.Println("continuing without knowledge base functionality")
		} else {
			client := bedrockagentruntime.NewFromConfig(awsCfg)
			querier = kb.New(client, cfg.KB)
			log.Printf("knowledge base service initialized kb=%s region=%s", cfg.KB.KnowledgeBaseID, cfg.KB.Region)
		}
	} else {
		log.Println("KB_ID not set, skipping knowledge base initialization")
	}

	router := handler.NewRouter(chatSvc, querier, cfg.KB)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("knowledge base chat listening on %s", serverCfg.Addr)
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
