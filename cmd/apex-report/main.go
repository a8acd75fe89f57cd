package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SeanSwan/Apex-sub007/internal/api"
	"github.com/SeanSwan/Apex-sub007/internal/config"
	"github.com/SeanSwan/Apex-sub007/internal/delivery"
	"github.com/SeanSwan/Apex-sub007/internal/enhance"
	"github.com/SeanSwan/Apex-sub007/internal/enhance/providers"
	"github.com/SeanSwan/Apex-sub007/internal/logging"
	"github.com/SeanSwan/Apex-sub007/internal/metrics"
	"github.com/SeanSwan/Apex-sub007/internal/persistence"
	"github.com/SeanSwan/Apex-sub007/internal/rasterize"
	"github.com/SeanSwan/Apex-sub007/internal/render"
	"github.com/SeanSwan/Apex-sub007/internal/workflow"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "apex-report",
	Short:   "Apex weekly security report pipeline",
	Long:    `apex-report builds, brands, and delivers weekly client security reports: metrics, daily narratives, AI-assisted text, a paginated PDF, and email/SMS delivery.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the report API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate [output.pdf]",
	Short: "Render the persisted draft to a PDF file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := "report.pdf"
		if len(args) == 1 {
			out = args[0]
		}
		return runGenerate(out)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Deliver the persisted draft to its configured recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("apex-report %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired components shared by the subcommands.
type app struct {
	cfg        *config.Config
	controller *workflow.Controller
	clients    *persistence.SQLiteClientDirectory
	repo       *persistence.FileRepository
	metrics    *metrics.Store
	queue      *delivery.ScheduleQueue
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "apex-report",
	})

	repo, err := persistence.NewFileRepository(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("draft storage: %w", err)
	}
	clients, err := persistence.NewSQLiteClientDirectory(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("client directory: %w", err)
	}
	metricsStore, err := metrics.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("metrics storage: %w", err)
	}
	queue, err := delivery.NewScheduleQueue(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("schedule queue: %w", err)
	}

	var store delivery.ContentStore
	if cfg.S3Configured() {
		store, err = delivery.NewS3Store(ctx, cfg.S3.Bucket, cfg.S3.Region, cfg.S3.LinkExpiry)
		if err != nil {
			return nil, fmt.Errorf("document store: %w", err)
		}
	} else {
		log.Warn().Msg("No S3 bucket configured, storing documents locally")
		store, err = delivery.NewLocalStore(cfg.DataDir+"/documents", "file://"+cfg.DataDir+"/documents")
		if err != nil {
			return nil, fmt.Errorf("document store: %w", err)
		}
	}

	var email delivery.EmailChannel
	if cfg.EmailConfigured() {
		email = delivery.NewEmailSender(delivery.EmailConfig{
			SMTPHost: cfg.SMTP.Host,
			SMTPPort: cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			TLS:      cfg.SMTP.TLS,
			StartTLS: cfg.SMTP.StartTLS,
		})
	}
	var sms delivery.SMSChannel
	if cfg.SMSConfigured() {
		sms = delivery.NewSMSSender(delivery.SMSConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
			BaseURL:    cfg.Twilio.BaseURL,
		})
	}

	var enhancer workflow.Enhancer
	if cfg.AIConfigured() {
		provider, err := providers.NewFromConfig(providers.Config{
			Provider: cfg.AI.Provider,
			APIKey:   cfg.AI.APIKey,
			Model:    cfg.AI.Model,
			BaseURL:  cfg.AI.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("AI provider: %w", err)
		}
		enhancer = enhance.NewAdapter(provider)
	} else {
		log.Info().Msg("No AI provider configured, enhancement disabled")
	}

	rasterizer := rasterize.New()
	rasterizer.SetSettleDelay(cfg.ChartSettleDelay)

	controller := workflow.NewController(workflow.Config{
		Repo:     repo,
		Clients:  clients,
		Metrics:  metricsStore,
		Enhancer: enhancer,
		Capturer: rasterizer,
		Renderer: render.NewGenerator(),
		Sender:   delivery.NewDispatcher(store, email, sms),
		Queue:    queue,
	})
	if err := controller.Resume(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not restore previous session, starting fresh")
	}

	return &app{
		cfg:        cfg,
		controller: controller,
		clients:    clients,
		repo:       repo,
		metrics:    metricsStore,
		queue:      queue,
	}, nil
}

func (a *app) close() {
	if err := a.repo.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to flush draft storage")
	}
	_ = a.clients.Close()
	_ = a.metrics.Close()
	_ = a.queue.Close()
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	go a.controller.RunScheduler(ctx, a.cfg.PollInterval)

	server := api.NewServer(a.controller, a.clients)
	log.Info().Str("version", Version).Msg("Starting report pipeline")
	return server.Run(ctx, a.cfg.ListenAddr)
}

func runGenerate(out string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	doc, err := a.controller.Preview(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, doc.Bytes, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	log.Info().Str("path", out).Int("pages", doc.PageCount).Msg("Report generated")
	return nil
}

func runSend() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.controller.Send(ctx)
	if err != nil {
		return err
	}
	if res == nil {
		log.Info().Msg("Delivery scheduled")
		return nil
	}
	for _, o := range res.Outcomes {
		log.Info().Str("recipient", o.Recipient).Str("channel", o.Channel).Bool("success", o.Success).Msg("Dispatch outcome")
	}
	log.Info().Str("documentUrl", res.DocumentURL).Msg("Report delivered")
	return nil
}
