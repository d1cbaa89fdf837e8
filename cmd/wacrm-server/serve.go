package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wacrm/internal/auth"
	"wacrm/internal/campaign"
	"wacrm/internal/config"
	"wacrm/internal/database"
	"wacrm/internal/handlers"
	"wacrm/internal/importer"
	"wacrm/internal/logging"
	"wacrm/internal/metrics"
	"wacrm/internal/models"
	"wacrm/internal/whatsapp"
)

func newServeCommand(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServer(*cfgFile)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer log.Sync()

			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.ServerConfig, log *zap.Logger) error {
	appDB, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer appDB.Close()
	log.Info("application database initialized", zap.String("path", cfg.Database.Path))

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	contactRepo := models.NewContactRepository(appDB)
	categoryRepo := models.NewCategoryRepository(appDB)
	draftRepo := models.NewDraftRepository(appDB)
	campaignRepo := models.NewCampaignRepository(appDB)
	qrHandler := handlers.NewQRHandler()

	var (
		link      handlers.WhatsAppLink
		directory importer.Directory
		creator   handlers.CampaignCreator
		progress  handlers.CampaignProgress
		worker    *campaign.Worker
	)
	if cfg.WhatsApp.Enabled {
		whatsappClient, err := whatsapp.NewClient(cfg.WhatsApp.SessionPath, log)
		if err != nil {
			return fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		defer whatsappClient.Disconnect()

		// Wire up QR code callbacks
		whatsappClient.SetQRHandler(qrHandler.SetQR)
		whatsappClient.SetQRClearHandler(qrHandler.ClearQR)

		if err := whatsappClient.ConnectIfLinked(); err != nil {
			log.Warn("could not restore WhatsApp session", zap.Error(err))
		}
		metrics.SetWhatsAppConnected(whatsappClient.IsConnected())
		link, directory = whatsappClient, whatsappClient

		worker = campaign.NewWorker(campaignRepo, whatsappClient, campaign.Options{
			MinDelay:     cfg.Campaign.MinDelay,
			MaxDelay:     cfg.Campaign.MaxDelay,
			PollInterval: cfg.Campaign.PollInterval,
			SendTimeout:  cfg.Campaign.SendTimeout,
			Logger:       log,
		})
		creator = campaign.NewService(draftRepo, contactRepo, categoryRepo, campaignRepo, log)
		progress = worker
	} else {
		log.Info("WhatsApp disabled")
	}

	importService := importer.NewService(contactRepo, categoryRepo, directory, log)

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: handlers.NewRouter(handlers.Deps{
			Contacts:         contactRepo,
			Categories:       categoryRepo,
			Importer:         importService,
			Drafts:           draftRepo,
			Campaigns:        campaignRepo,
			CampaignCreator:  creator,
			CampaignProgress: progress,
			WhatsApp:         link,
			QR:               qrHandler,
			Verifier:         issuer,
			MaxPageSize:      cfg.API.MaxPageSize,
			Logger:           log,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting wacrm API server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if worker != nil {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}
