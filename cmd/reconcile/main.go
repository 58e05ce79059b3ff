package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-mileage/internal/audit"
	"github.com/ukydev/fleet-mileage/internal/db"
	"github.com/ukydev/fleet-mileage/internal/mileage"
)

// Bulk repair job: reconciles calculated mileage across the fleet (or a
// comma-separated list of vehicles) and exits non-zero when any trip
// update failed.
func main() {
	var (
		vehicles     = flag.String("vehicles", "", "comma-separated vehicle ids, empty for the whole fleet")
		workers      = flag.Int("workers", 4, "vehicles reconciled concurrently")
		vehicleDelay = flag.Duration("vehicle-delay", 0, "pause between vehicles, e.g. 200ms")
		attempts     = flag.Int("write-attempts", 3, "tries per trip update")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment")
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "fleet"
	}
	trips := &db.MongoTripCollection{Collection: client.Database(dbName).Collection("trips")}

	var sink audit.Sink = audit.NopSink{}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		topic := os.Getenv("AUDIT_TOPIC")
		if topic == "" {
			topic = "fleet/audit/mileage"
		}
		mqttSink, err := audit.NewMQTTSink(broker, "fleet-mileage-reconcile", topic)
		if err != nil {
			log.WithError(err).Warn("audit broker unreachable, audit trail disabled")
		} else {
			defer mqttSink.Close()
			sink = audit.NewRetrySink(mqttSink, 3, 200*time.Millisecond)
		}
	}

	corrector := mileage.NewCorrector(trips, sink, mileage.Options{
		Workers:       *workers,
		WriteAttempts: *attempts,
		VehicleDelay:  *vehicleDelay,
	})

	// SIGINT/SIGTERM stop scheduling further vehicles; in-flight vehicles
	// finish, so every trip is either corrected or untouched.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var vehicleIDs []string
	if *vehicles != "" {
		for _, id := range strings.Split(*vehicles, ",") {
			if id = strings.TrimSpace(id); id != "" {
				vehicleIDs = append(vehicleIDs, id)
			}
		}
	}

	start := time.Now()
	report, err := corrector.Run(ctx, vehicleIDs...)
	if err != nil {
		log.WithError(err).Fatal("reconciliation run failed")
	}

	log.WithFields(log.Fields{
		"vehicles": report.Vehicles,
		"examined": report.Examined,
		"updated":  report.Updated,
		"failed":   len(report.FailedIDs),
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("reconciliation finished")

	if len(report.FailedIDs) > 0 {
		log.WithField("trip_ids", report.FailedIDs).Error("some trips kept a stale mileage value")
		os.Exit(1)
	}
}
