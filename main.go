package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nlund/reflred/reduce"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configFile = flag.String("config", "config.yaml", "Path to experiment configuration file")
	dataDir    = flag.String("data-dir", ".", "Directory containing event CSV files")
	outputDir  = flag.String("output", "out", "Directory for curve JSON and figure outputs")
	gridCache  = flag.String("grid-cache", reduce.DefaultGridCachePath, "Path to persisted reference grid (empty disables)")
	workers    = flag.Int("workers", 0, "Worker goroutines per reduction (0 = number of CPUs)")
	httpMode   = flag.Bool("http", false, "Serve curves and figures over HTTP after reducing")
	httpPort   = flag.Int("http-port", 8080, "HTTP server port")
	mqttMode   = flag.Bool("mqtt", false, "Publish reduced curves to the configured MQTT broker")
)

func main() {
	flag.Parse()
	fmt.Printf("reflred version: %s\n", Version)

	app := NewApp()
	app.ConfigFile = *configFile
	app.DataDir = *dataDir
	app.OutputDir = *outputDir
	app.GridCache = *gridCache
	app.Workers = *workers
	app.HttpPort = *httpPort
	app.HttpMode = *httpMode
	app.MqttMode = *mqttMode

	if err := app.Load(); err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if app.MqttMode {
		client, err := reduce.InitMQTT(&app.Config.MQTT)
		if err != nil {
			log.Fatalf("Error connecting to MQTT: %v", err)
		}
		if client != nil {
			app.MQTTClient = client
			app.Publisher = reduce.NewPublisher(client, app.Config.MQTT.TopicPrefix)
		}
	}

	if err := app.RunReduction(); err != nil {
		log.Fatalf("Error reducing: %v", err)
	}
	if err := app.WriteOutputs(); err != nil {
		log.Fatalf("Error writing outputs: %v", err)
	}

	if !app.HttpMode {
		return
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.HttpPort),
		Handler: newHTTPServer(app),
	}
	go func() {
		log.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down")
	server.Close()
	if app.MQTTClient != nil {
		app.MQTTClient.Disconnect(250)
	}
}
