// Package main starts gophlockd: the PIN lock and security-code gate served
// as a JSON API on a loopback address.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/GophLock/internal/biometric"
	"github.com/atinyakov/GophLock/internal/config"
	"github.com/atinyakov/GophLock/internal/feedback"
	"github.com/atinyakov/GophLock/internal/files"
	"github.com/atinyakov/GophLock/internal/logger"
	"github.com/atinyakov/GophLock/internal/seal"
	"github.com/atinyakov/GophLock/internal/server/handler/http"
	"github.com/atinyakov/GophLock/internal/service"
	"github.com/atinyakov/GophLock/internal/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(2)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cipher := seal.New(seal.Params{Iterations: options.KDFIterations})

	st, err := openStore(ctx, options, cipher, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot open store", zap.String("driver", options.StoreDriver), zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			zapLogger.Error("failed to close store", zap.Error(err))
		}
	}()

	var bio biometric.Authenticator = biometric.Unavailable{}
	if fields := strings.Fields(options.BiometricCommand); len(fields) > 0 {
		bio = &biometric.Command{Path: fields[0], Args: fields[1:], Log: zapLogger.Named("biometric")}
	}

	sess := session.New(ctx, session.Config{
		Store:     st,
		Cipher:    cipher,
		Biometric: bio,
		Feedback:  feedback.Logger{Log: zapLogger.Named("feedback")},
		Files: &files.Local{
			Root:      options.FilesRoot,
			ShareDir:  options.ShareDir,
			ExportDir: options.ExportDir,
			Log:       zapLogger.Named("files"),
		},
		Sentinel:      options.Sentinel,
		VerifyLimiter: rate.NewLimiter(rate.Limit(options.VerifyRate), options.VerifyBurst),
		Log:           zapLogger,
	})
	defer sess.Close()

	pinHandler := &http.PinHandler{PinService: service.NewPinService(sess.Pin, sess)}
	gateHandler := &http.GateHandler{GateService: service.NewGateService(sess.Gate, sess.Guard)}
	router := http.NewRouter(pinHandler, gateHandler, sess, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}()

	zapLogger.Info("starting HTTP server",
		zap.String("addr", options.Address),
		zap.String("store", options.StoreDriver),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
