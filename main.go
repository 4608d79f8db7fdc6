package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"meetsync/agent"
	"meetsync/calendar"
	"meetsync/config"
	"meetsync/dispatch"
	"meetsync/jobs"
	"meetsync/middleware"
	"meetsync/notify"
	"meetsync/routes"
	"meetsync/utils"
	"meetsync/worker"
)

func main() {
	logger := log.New(os.Stdout, "MEETSYNC: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := config.ConnectRedis(); err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}

	if err := config.InitSentry(); err != nil {
		logger.Printf("Sentry not initialized: %v", err)
	}

	if err := config.InitGemini(); err != nil {
		logger.Fatalf("Failed to initialize decision service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Outbound email path
	mailer := utils.NewSMTPMailer(
		config.AppConfig.SMTPHost,
		config.AppConfig.SMTPPort,
		config.AppConfig.SMTPUsername,
		config.AppConfig.SMTPPassword,
	)
	dispatcher := dispatch.NewScheduler(config.DB, mailer, dispatch.Config{
		HumanizeDelayMin:  time.Duration(config.AppConfig.Scheduling.HumanizeDelayMinSec) * time.Second,
		HumanizeDelayMax:  time.Duration(config.AppConfig.Scheduling.HumanizeDelayMaxSec) * time.Second,
		BlackoutStartHour: config.AppConfig.Scheduling.BlackoutStartHour,
		BlackoutEndHour:   config.AppConfig.Scheduling.BlackoutEndHour,
		FromEmail:         config.AppConfig.FromEmail,
		FromName:          config.AppConfig.FromName,
	}, log.New(os.Stdout, "DISPATCH: ", log.LstdFlags))

	// Principal notification channels and the confirmation ledger
	hub := notify.NewHub(log.New(os.Stdout, "HUB: ", log.LstdFlags))
	channels := &notify.Channels{
		SMS:    notify.NewSMSChannel(config.AppConfig.SMSGateway.URL, config.AppConfig.SMSGateway.APIKey, config.AppConfig.SMSGateway.Sender),
		Chat:   notify.NewChatChannel(config.AppConfig.SMSGateway.URL, config.AppConfig.SMSGateway.APIKey, config.AppConfig.SMSGateway.Sender),
		InApp:  notify.NewInAppChannel(hub),
		Logger: log.New(os.Stdout, "NOTIFY: ", log.LstdFlags),
	}
	ledger := notify.NewLedger(config.DB, channels, log.New(os.Stdout, "LEDGER: ", log.LstdFlags))

	// Calendar backend
	calProvider, err := calendar.NewGoogleProvider(ctx)
	if err != nil {
		logger.Fatalf("Failed to initialize calendar provider: %v", err)
	}

	// Orchestration loop
	toolbox := agent.NewToolbox(config.DB, calProvider, dispatcher, ledger, log.New(os.Stdout, "TOOLS: ", log.LstdFlags))
	decision := agent.NewGeminiDecisionService(config.GeminiClient)
	loop := agent.NewLoop(decision, toolbox, config.AppConfig.Scheduling.MaxAgentRounds, log.New(os.Stdout, "LOOP: ", log.LstdFlags))
	agentService := agent.NewService(config.DB, loop, ledger, log.New(os.Stdout, "AGENT: ", log.LstdFlags))

	// Background workers
	jobScheduler := jobs.NewScheduler(config.Redis, log.New(os.Stdout, "JOBS: ", log.LstdFlags))

	dispatchWorker := worker.NewDispatchWorker(dispatcher, log.New(os.Stdout, "DISPATCH-WORKER: ", log.LstdFlags))
	go dispatchWorker.Start(ctx)

	reminderWorker := worker.NewReminderWorker(config.DB, jobScheduler, agentService, log.New(os.Stdout, "REMINDER: ", log.LstdFlags))
	go reminderWorker.Start(ctx)
	go jobScheduler.Start(ctx)

	mailboxWorker := worker.NewMailboxWorker(config.DB, worker.MailboxConfig{
		Host:     config.AppConfig.IMAPHost,
		Port:     config.AppConfig.IMAPPort,
		Username: config.AppConfig.IMAPUsername,
		Password: config.AppConfig.IMAPPassword,
		Mailbox:  config.AppConfig.IMAPMailbox,
	}, agentService, log.New(os.Stdout, "MAILBOX: ", log.LstdFlags))
	go mailboxWorker.Start(ctx)

	// HTTP surface
	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, routes.Deps{
		DB:         config.DB,
		Agent:      agentService,
		Dispatcher: dispatcher,
		Ledger:     ledger,
		Hub:        hub,
	})

	logger.Printf("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
