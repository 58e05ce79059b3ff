package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-mileage/internal/audit"
	"github.com/ukydev/fleet-mileage/internal/auth"
	"github.com/ukydev/fleet-mileage/internal/db"
	"github.com/ukydev/fleet-mileage/internal/handlers"
	"github.com/ukydev/fleet-mileage/internal/middleware"
	"github.com/ukydev/fleet-mileage/internal/mileage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment")
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	log.Info("connected to MongoDB")

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "fleet"
	}
	database := client.Database(dbName)
	trips := &db.MongoTripCollection{Collection: database.Collection("trips")}
	users := &db.MongoUserCollection{Collection: database.Collection("users")}

	sink := buildAuditSink()
	corrector := mileage.NewCorrector(trips, sink, mileage.Options{})

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("failed to create auth service")
	}
	authMiddleware := middleware.NewAuthMiddleware(authService)

	authHandler := handlers.NewAuthHandler(authService, users)
	mileageHandler := handlers.NewMileageHandler(corrector)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", authHandler.Login)
	mux.Handle("/api/mileage/reconcile",
		authMiddleware.RequireReconcileAccess(http.HandlerFunc(mileageHandler.Reconcile)))
	mux.Handle("/api/mileage/reconcile/",
		authMiddleware.RequireReconcileAccess(http.HandlerFunc(mileageHandler.Reconcile)))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.WithField("port", port).Info("HTTP server listening")
	log.Fatal(http.ListenAndServe(":"+port, authMiddleware.Authenticate(mux)))
}

// buildAuditSink wires the MQTT audit trail when a broker is configured,
// falling back to a no-op sink otherwise. Delivery failures downgrade to
// local logging either way.
func buildAuditSink() audit.Sink {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		log.Info("MQTT_BROKER not set, audit trail disabled")
		return audit.NopSink{}
	}
	topic := os.Getenv("AUDIT_TOPIC")
	if topic == "" {
		topic = "fleet/audit/mileage"
	}
	mqttSink, err := audit.NewMQTTSink(broker, "fleet-mileage-server", topic)
	if err != nil {
		log.WithError(err).Warn("audit broker unreachable, audit trail disabled")
		return audit.NopSink{}
	}
	return audit.NewRetrySink(mqttSink, 3, 200*time.Millisecond)
}
