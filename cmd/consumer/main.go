// The consumer drains the GPS topic and applies each sample through the
// telemetry ingestor, an alternate ingress for deployments where trackers
// publish to Kafka instead of calling the HTTP endpoint.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/campus-fleet/internal/booking"
	"github.com/example/campus-fleet/internal/cache"
	"github.com/example/campus-fleet/internal/fleet"
	"github.com/example/campus-fleet/internal/logging"
	"github.com/example/campus-fleet/internal/models"
	"github.com/example/campus-fleet/internal/otp"
	"github.com/example/campus-fleet/internal/store"
	"github.com/example/campus-fleet/internal/telemetry"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total GPS messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	samplesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_samples_applied_total",
		Help: "Total samples applied to the fleet state",
	})
	applyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_apply_errors_total",
		Help: "Total samples that failed to apply",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, samplesApplied, applyErrors)
}

func main() {
	_ = godotenv.Load()

	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	logger := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL")})

	brokers := []string{}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		for _, b := range strings.Split(env, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}
	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "gps-samples"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "campus-fleet-consumer"
	}

	var st store.Store
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		ps, err := store.NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("postgres unavailable: %v", err)
		}
		defer ps.Close()
		st = ps
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	var rdb *redis.Client
	var otpStore otp.Store = otp.NewMemoryStore()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		defer rdb.Close()
		otpStore = otp.NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"))
	}

	registry := fleet.NewRegistry(st, cache.NewVehicleLocations(rdb, 0), logger)
	bookings := booking.NewService(st, registry, otp.NewLedger(otpStore), nil, logger)
	ingestor := telemetry.NewIngestor(st, registry, bookings, logger)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if rdb != nil {
				if err := rdb.Ping(r.Context()).Err(); err != nil {
					http.Error(w, "redis not ready", 503)
					return
				}
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer r.Close()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var sample models.GPSSample
		if err := json.Unmarshal(m.Value, &sample); err != nil || sample.IMEI == "" {
			msgsInvalid.Inc()
			log.Printf("invalid message: %v", err)
			continue
		}

		if err := applyWithRetry(ctx, ingestor, sample, 3, 200*time.Millisecond); err != nil {
			applyErrors.Inc()
			log.Printf("apply failed for imei=%s: %v", sample.IMEI, err)
			continue
		}
		samplesApplied.Inc()
	}
}

// GPSApplier is the small surface the retry loop needs, kept narrow so
// tests can fake it.
type GPSApplier interface {
	ReceiveGPS(ctx context.Context, s models.GPSSample) (uuid.UUID, error)
}

// applyWithRetry pushes a sample into the fleet state, retrying transient
// failures with doubling delays. A sample for an unregistered tracker is
// dropped immediately; retrying cannot make it valid.
func applyWithRetry(ctx context.Context, applier GPSApplier, s models.GPSSample, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		_, err = applier.ReceiveGPS(ctx, s)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
