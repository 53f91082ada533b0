package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grovelabs/leafsense-backend/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}

	application.Start()
	application.Log.Info("LeafSense backend running",
		"metrics_addr", application.Cfg.MetricsAddr,
		"model", application.Cfg.ModelName,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	application.Log.Info("Shutting down", "signal", s.String())
	application.Close()
}
