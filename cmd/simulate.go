// Package cmd provides command-line interface commands for trailguard.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trailguard/client"
	"trailguard/core"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// Simulate flags
var (
	serverURL    string
	apiKey       string
	deviceID     string
	deviceSecret string
	species      []string
	count        int
	interval     time.Duration
	heartbeats   bool
	noColor      bool
)

// simulateResponse is the subset of the intake receipt the simulator prints.
type simulateResponse struct {
	EventID   string `json:"event_id"`
	AckID     string `json:"ack_id"`
	Duplicate bool   `json:"duplicate"`
}

// NewSimulateCmd creates the simulate command: it plays the role of a field
// device, posting signed synthetic detections and heartbeats at a running
// server.
func NewSimulateCmd() *cobra.Command {
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Post synthetic detections at a running server",
		Long: `Simulate a field device: register, then post signed synthetic detections
(and optionally heartbeats) at a running trailguard server. Useful for
exercising the intake pipeline, auto-alerts, and the live stream without
hardware.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: runSimulate,
	}

	simulateCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server base URL")
	simulateCmd.Flags().StringVar(&apiKey, "api-key", "", "Shared API key (required)")
	simulateCmd.Flags().StringVar(&deviceID, "device-id", "sim-cam-01", "Simulated device id")
	simulateCmd.Flags().StringVar(&deviceSecret, "secret", "", "Device HMAC secret (optional)")
	simulateCmd.Flags().StringSliceVar(&species, "species",
		[]string{"tiger", "leopard", "elephant"}, "Species pool to sample from")
	simulateCmd.Flags().IntVar(&count, "count", 5, "Number of detections to post")
	simulateCmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Pause between detections")
	simulateCmd.Flags().BoolVar(&heartbeats, "heartbeats", true, "Send a heartbeat before detections")
	simulateCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	simulateCmd.MarkFlagRequired("api-key")

	return simulateCmd
}

func runSimulate(cmd *cobra.Command, args []string) error {
	logger := zap.NewNop().Sugar()
	c := client.New(client.Options{
		BaseURL:      serverURL,
		APIKey:       apiKey,
		DeviceID:     deviceID,
		DeviceSecret: deviceSecret,
	}, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	infoColor.Printf("Simulating device %s against %s\n", deviceID, serverURL)

	if _, err := c.Do(ctx, http.MethodPost, "/api/devices/register", map[string]any{
		"device_id": deviceID,
		"name":      "Simulated Camera",
		"firmware":  "sim-1.0",
	}); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	successColor.Println("✓ Device registered")

	if heartbeats {
		if err := sendHeartbeat(ctx, c); err != nil {
			warningColor.Printf("! Heartbeat failed: %v\n", err)
		} else {
			successColor.Println("✓ Heartbeat sent")
		}
	}

	sent, duplicates, failed := 0, 0, 0
	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}

		resp, err := sendDetection(ctx, c, int64(i+1))
		if err != nil {
			failed++
			errorColor.Printf("✗ Detection %d rejected: %v\n", i+1, err)
			continue
		}
		if resp.Duplicate {
			duplicates++
			warningColor.Printf("! Detection %d absorbed as duplicate (ack %s)\n", i+1, resp.AckID)
			continue
		}
		sent++
		successColor.Printf("✓ Detection %d accepted: %s (ack %s)\n", i+1, resp.EventID, resp.AckID)
	}

	fmt.Println()
	infoColor.Printf("Done: %d accepted, %d duplicates, %d rejected\n", sent, duplicates, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d detections rejected", failed, count)
	}
	return nil
}

// sendDetection posts one synthetic detection with a valid content checksum.
func sendDetection(ctx context.Context, c *client.Client, detectionID int64) (*simulateResponse, error) {
	now := time.Now()
	name := species[rand.Intn(len(species))]
	confidence := 0.70 + rand.Float64()*0.29
	eventID := fmt.Sprintf("det_%s_%d_%d", deviceID, now.UnixMilli(), detectionID)

	payload := map[string]any{
		"event_id":     eventID,
		"detection_id": detectionID,
		"device_id":    deviceID,
		"device_name":  "Simulated Camera",
		"class_name":   name,
		"confidence":   confidence,
		"timestamp":    float64(now.Unix()),
		"bbox":         []float64{0.1, 0.2, 0.5, 0.6},
		"checksum":     core.ContentChecksum(eventID, deviceID, name, confidence, now),
	}

	data, err := c.Do(ctx, http.MethodPost, "/api/detections", payload)
	if err != nil {
		return nil, err
	}
	var resp simulateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func sendHeartbeat(ctx context.Context, c *client.Client) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/heartbeat", map[string]any{
		"device_id": deviceID,
		"status":    "online",
		"stats": map[string]any{
			"system": map[string]any{
				"cpu_percent":         20 + rand.Float64()*40,
				"memory_percent":      30 + rand.Float64()*30,
				"temperature_celsius": 35 + rand.Float64()*20,
			},
			"power": map[string]any{
				"source":          "battery",
				"battery_percent": 50 + rand.Float64()*50,
			},
			"uptime_seconds": 3600,
		},
	})
	return err
}
