//go:build gocv

// Command capture runs one face verification attempt against a local camera
// and prints the receipt as registration form fields.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/patient-idv/internal/application/capture"
	"github.com/patient-idv/internal/config"
	"github.com/patient-idv/internal/infrastructure/logger"
	"github.com/patient-idv/internal/infrastructure/opencv"
	"github.com/patient-idv/internal/pkg/imaging"
)

func main() {
	device := flag.Int("device", 0, "camera device index")
	docPath := flag.String("document", "", "path to the ID document image")
	pause := flag.Duration("pause", 2*time.Second, "pause between the two live captures")
	flag.Parse()
	if *docPath == "" {
		log.Fatal("-document is required")
	}

	_ = godotenv.Load()
	cfg := config.Load()
	if err := logger.Init(cfg.AppEnv, cfg.LogLevel, ""); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pipeline := opencv.New(cfg.Face)
	defer pipeline.Close()
	session := capture.NewSession(cfg.Face.Policy(), opencv.NewWebcam(*device), pipeline)
	defer session.Cancel()

	if err := run(ctx, session, *docPath, *pause); err != nil {
		log.Fatalf("%v (%s)", err, session.Message())
	}
	receipt, ok := session.Receipt()
	if !ok {
		log.Fatalf("verification did not match: %s", session.Message())
	}
	values, err := receipt.FormValues()
	if err != nil {
		log.Fatalf("encode receipt: %v", err)
	}
	for key := range values {
		fmt.Printf("%s=%s\n", key, values.Get(key))
	}
}

const maxCaptures = 6

func run(ctx context.Context, session *capture.Session, docPath string, pause time.Duration) error {
	raw, err := os.ReadFile(docPath)
	if err != nil {
		return err
	}
	doc, err := imaging.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := session.Open(ctx); err != nil {
		return err
	}
	if out := <-session.SetDocument(ctx, doc); out.Err != nil {
		return out.Err
	}

	for i := 0; i < maxCaptures && session.State() != capture.StateMatched; i++ {
		ok, hint, err := session.CheckLighting(ctx)
		if err != nil {
			return err
		}
		if ok {
			outcomes, err := session.Capture(ctx)
			if err != nil {
				return err
			}
			if out := <-outcomes; out.Message != "" {
				fmt.Println(out.Message)
			}
		} else {
			fmt.Println(hint)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
	return nil
}
