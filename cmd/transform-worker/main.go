package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cloud.google.com/go/pubsub"
	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/models"
	"github.com/marginworks/costbooks_backend/transform"
	"github.com/marginworks/costbooks_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultSubscription = "transform-runs-worker"

func subscriptionName() string {
	if v := os.Getenv("TRANSFORM_SUBSCRIPTION"); v != "" {
		return v
	}
	return defaultSubscription
}

// Pull worker for queued transform runs. Runs are idempotent, so
// at-least-once delivery needs no dedup here.
func main() {
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Minimal health endpoint so the worker can run on Cloud Run.
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		_ = http.ListenAndServe(":"+port, mux)
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	}

	policy, err := config.LoadTransformPolicy()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "transform policy"}).Panic(err.Error())
	}

	client, err := config.GetClient(sigCtx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Panic(err.Error())
	}
	topic, err := config.CreateTopicIfNotExists(client, transform.RunTopic())
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Panic(err.Error())
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, subscriptionName(), topic)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Panic(err.Error())
	}

	store := transform.NewGormStore()
	logger.WithFields(logrus.Fields{
		"subscription": subscriptionName(),
		"topic":        transform.RunTopic(),
	}).Info("[worker] receiving transform runs")

	err = sub.Receive(sigCtx, func(ctx context.Context, m *pubsub.Message) {
		var msg transform.QueuedRun
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			config.LogError(logger, "main.go", "Receive", "Unmarshal run message", string(m.Data), err)
			m.Ack()
			return
		}
		if err := msg.Validate(); err != nil {
			config.LogError(logger, "main.go", "Receive", "Invalid run message", msg, err)
			m.Ack()
			return
		}

		correlationId := msg.CorrelationId
		if correlationId == "" {
			correlationId = m.ID
		}
		runCtx := utils.SetBusinessIdInContext(ctx, msg.BusinessId)
		runCtx = utils.SetCorrelationIdInContext(runCtx, correlationId)

		if _, err := transform.Execute(runCtx, store, policy, msg); err != nil {
			var failed *transform.RunFailedError
			if errors.As(err, &failed) {
				// Finalized on the ledger; redelivery would only repeat it.
				m.Ack()
				return
			}
			if isPreconditionErr(err) {
				config.LogError(logger, "main.go", "Receive", "Precondition failed", msg, err)
				m.Ack()
				return
			}
			config.LogError(logger, "main.go", "Receive", "Execute", msg, err)
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil && sigCtx.Err() == nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Error("receive stopped: " + err.Error())
	}

	logger.Info("[worker] shutdown complete")
}

func isPreconditionErr(err error) bool {
	return errors.Is(err, transform.ErrUploadNotFound) ||
		errors.Is(err, transform.ErrUploadNotValidated) ||
		errors.Is(err, transform.ErrWrongRecordType) ||
		errors.Is(err, transform.ErrNoValidRows) ||
		errors.Is(err, transform.ErrNoBatches)
}
