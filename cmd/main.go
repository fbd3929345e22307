package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jcervantes/foliofotos/internal/config"
	"github.com/jcervantes/foliofotos/internal/util"
	"github.com/jcervantes/foliofotos/pkg/drive"
	"github.com/jcervantes/foliofotos/pkg/form"
	"github.com/jcervantes/foliofotos/pkg/pdf"
	"github.com/jcervantes/foliofotos/pkg/pipeline"
	"github.com/jcervantes/foliofotos/pkg/session"
	"github.com/jcervantes/foliofotos/pkg/submit"
)

func main() {

	// set logging to json format for application
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(jsonHandler).
		With(slog.String(util.ServiceKey, util.ServiceFolioFotos)))

	// create a logger for the main package
	logger := slog.Default().
		With(slog.String(util.PackageKey, util.PackageMain)).
		With(slog.String(util.ComponentKey, util.ComponentMain))

	cfg, err := config.Load(util.ServiceFolioFotos)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load %s service config", util.ServiceFolioFotos), "err", err.Error())
		os.Exit(1)
	}

	store := drive.New(drive.Config{
		TenantID:     cfg.Drive.TenantID,
		ClientID:     cfg.Drive.ClientID,
		ClientSecret: cfg.Drive.ClientSecret,
		User:         cfg.Drive.User,
		Scope:        cfg.Drive.Scope,
		BaseURL:      cfg.Drive.BaseURL,
		Timeout:      cfg.Drive.Timeout,
	})

	normalizer := pipeline.NewNormalizer()
	assembler := pdf.NewAssembler()
	orchestrator := submit.New(store, normalizer, assembler, cfg.Flow.BaseFolder)
	sessions := session.NewStore(cfg.Flow.SessionTTL)
	handler := form.NewHandler(sessions, orchestrator, normalizer)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.SetHTMLTemplate(form.Templates())
	handler.RegisterRoutes(engine)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info(fmt.Sprintf("starting %s service on %s", util.ServiceFolioFotos, addr))

	if err := engine.Run(addr); err != nil {
		logger.Error(fmt.Sprintf("failed to run %s service", util.ServiceFolioFotos), "err", err.Error())
		os.Exit(1)
	}
}
