package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"

	"vendor-chat/internal/chat"
	"vendor-chat/internal/config"
	"vendor-chat/internal/notify"
	"vendor-chat/internal/observability"
	"vendor-chat/internal/rest"
	"vendor-chat/internal/status"
	"vendor-chat/internal/transport"
)

const serviceName = "vendor-chat"

var (
	openID, openName string
	debugRoutes      bool
)

// Mounts a chat session for the configured user, serves the status endpoints
// and reads commands and messages from stdin until /quit or a signal.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive chat session.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSession(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&openID, "open", "",
		"Counterpart id of a conversation to open on start.")
	runCmd.Flags().StringVar(&openName, "name", "",
		"Display name used when the --open conversation is not known yet.")
	runCmd.Flags().BoolVar(&debugRoutes, "debug", false,
		"Expose the debug routes on the status server.")
}

func runSession(ctx context.Context, cfg config.Config) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		jww.WARN.Printf("tracing not started: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			jww.WARN.Printf("tracing shutdown: %v", err)
		}
	}()

	api := rest.NewClient(cfg.APIBaseURL, cfg.RequestTimeout.Duration())
	conn, err := transport.NewClient(transport.Config{
		URL:               cfg.BrokerURL,
		Login:             cfg.BrokerLogin,
		Passcode:          cfg.BrokerPasscode,
		HeartbeatOutgoing: cfg.Heartbeat.Duration(),
		HeartbeatIncoming: cfg.Heartbeat.Duration(),
		ReconnectDelay:    cfg.ReconnectDelay.Duration(),
	})
	if err != nil {
		return errors.Wrap(err, "build transport")
	}

	publisher := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	jww.INFO.Printf("notification publisher mode=%s reason=%s",
		notify.PublisherMode(publisher), notify.PublisherNoopReason(publisher))

	out := &syncWriter{w: os.Stdout}
	notifier := notify.Multi{
		notify.LogNotifier{},
		consoleNotifier{out: out},
		notify.NewAMQPNotifier(publisher, "chat."+cfg.UserID, serviceName, cfg.UserID),
	}

	ctrl, err := chat.New(conn, api, notifier, chat.Options{
		UserID:         cfg.UserID,
		PollInterval:   cfg.PollInterval.Duration(),
		TypingIdle:     cfg.TypingIdle.Duration(),
		RequestTimeout: cfg.RequestTimeout.Duration(),
		RefreshBurst:   cfg.RefreshBurst,
	})
	if err != nil {
		return err
	}

	if err := ctrl.Mount(ctx, nil); err != nil {
		return err
	}
	defer func() {
		unmountCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout.Duration())
		defer cancel()
		if err := ctrl.Unmount(unmountCtx); err != nil {
			jww.WARN.Printf("unmount: %v", err)
		}
	}()

	if cfg.StatusAddr != "" {
		router := status.NewRouter(ctrl, status.Options{
			Token:    cfg.StatusToken,
			Debug:    debugRoutes,
			Notifier: notifier,
		})
		go func() {
			if err := status.Serve(ctx, cfg.StatusAddr, router); err != nil {
				jww.ERROR.Printf("%v", err)
			}
		}()
	}

	sh := newShell(ctrl, out, cfg.RequestTimeout.Duration())
	if openID != "" {
		sh.exec(ctx, "/open "+openID+" "+openName)
	}
	return sh.run(ctx, os.Stdin)
}
