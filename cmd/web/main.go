package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/etitcombe/tweeter/board"
	"github.com/etitcombe/tweeter/config"
	"github.com/etitcombe/tweeter/db"
)

func main() {
	var (
		port       int
		configFile string
	)
	flag.IntVar(&port, "port", 0, "the port to start the web server on, overrides the config file")
	flag.StringVar(&configFile, "config", "", "the JSON config file to load (default .config)")
	flag.Parse()

	config, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if port != 0 {
		config.Port = port
	}

	logger := newLogger(os.Stdout, config.Production())
	fatal := func(msg string, err error) {
		logger.Error(msg, "err", err)
		os.Exit(1)
	}

	lock := db.LockConfig{Timeout: config.LockTimeout, StaleAfter: config.LockStaleAfter}
	userStore, err := db.NewUserStoreFile(filepath.Join(config.DataDir, "users"), lock)
	if err != nil {
		fatal("user store", err)
	}
	postStore, err := db.NewPostStoreFile(filepath.Join(config.DataDir, "posts"), lock)
	if err != nil {
		fatal("post store", err)
	}
	imageStore, err := db.NewImageStore(filepath.Join(config.DataDir, "imgs"), config.MaxAvatarBytes)
	if err != nil {
		fatal("image store", err)
	}

	sessionStore, err := db.NewSessionStore(config.SessionDB)
	if err != nil {
		fatal("session store", err)
	}
	defer sessionStore.Close()

	if err := sessionStore.Open(); err != nil {
		fatal("open session store", err)
	}

	resolver := board.NewResolver(userStore, sessionStore, config.Pepper, logger)
	resolver.PasswordMinLength = config.PasswordMinLength
	engine := board.NewEngine(userStore, postStore, logger)

	server := newServer(logger, resolver, engine, imageStore, config.MaxAvatarBytes, config.Production())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		ErrorLog:     server.errorLog,
		Handler:      server,
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		s := <-sigint

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		logger.Info("shutting down", "signal", s.String())
		if err := srv.Shutdown(ctx); err != nil {
			// Error from closing listeners, or context timeout:
			logger.Error("HTTP server Shutdown", "err", err)
		}
		close(idleConnsClosed)
	}()

	logger.Info("tweeter listening", "port", config.Port, "data_dir", config.DataDir)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		// Error starting or closing listener:
		fatal("HTTP server ListenAndServe", err)
	}

	<-idleConnsClosed
}
