package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/models"
	"github.com/marginworks/costbooks_backend/transform"
	"github.com/marginworks/costbooks_backend/utils"
	"gorm.io/gorm"
)

type transformRequest struct {
	UploadId   int               `json:"upload_id" binding:"required,gt=0"`
	RecordType models.RecordType `json:"record_type" binding:"required,oneof=inventory sales"`
	DryRun     bool              `json:"dry_run"`
	Queued     bool              `json:"queued"`
}

func preconditionStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, transform.ErrUploadNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, transform.ErrUploadNotValidated),
		errors.Is(err, transform.ErrWrongRecordType),
		errors.Is(err, transform.ErrNoValidRows),
		errors.Is(err, transform.ErrNoBatches):
		return http.StatusConflict, true
	default:
		return 0, false
	}
}

// transformHandler triggers a run synchronously or enqueues it. The
// queued path returns 202 with the publish id; the caller polls the run
// history for the outcome.
func transformHandler(policy config.TransformPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()
		businessId, _ := utils.GetBusinessIdFromContext(ctx)

		var req transformRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":  "invalid request",
					"fields": utils.ProcessValidationErrors(verrs),
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}

		msg := transform.QueuedRun{
			BusinessId:  businessId,
			UploadId:    req.UploadId,
			RecordType:  req.RecordType,
			DryRun:      req.DryRun,
			TriggeredBy: "api",
		}
		if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			msg.CorrelationId = cid
		}

		if req.Queued {
			id, err := transform.PublishRun(ctx, msg)
			if err != nil {
				config.LogError(logger, "transforms.go", "transformHandler", "PublishRun", msg, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not enqueue transform"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"message_id": id})
			return
		}

		result, err := transform.Execute(ctx, transform.NewGormStore(), policy, msg)
		if err != nil {
			var failed *transform.RunFailedError
			if errors.As(err, &failed) {
				c.JSON(http.StatusUnprocessableEntity, failed.Result)
				return
			}
			if status, ok := preconditionStatus(err); ok {
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			config.LogError(logger, "transforms.go", "transformHandler", "Execute", msg, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transform failed"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getTransformHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		businessId, _ := utils.GetBusinessIdFromContext(ctx)

		runId, err := strconv.Atoi(c.Param("id"))
		if err != nil || runId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		// Terminal runs never change again, so they are safe to cache.
		cacheKey := "TransformRun:" + businessId + ":" + strconv.Itoa(runId)
		var cached models.TransformRun
		if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, cached)
			return
		}

		run, err := models.GetTransformRunById(ctx, businessId, runId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load run"})
			return
		}
		if run.Status != models.TransformRunStatusProcessing {
			_ = config.SetRedisObject(cacheKey, run, time.Hour)
		}
		c.JSON(http.StatusOK, run)
	}
}

func listTransformsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		businessId, _ := utils.GetBusinessIdFromContext(ctx)

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := models.ListTransformRuns(ctx, businessId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list runs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

type pubSubPushMessage struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// transformPubSubHandler is the push endpoint for queued runs. Malformed
// or poisoned messages are acked and dropped; infrastructure errors
// return non-2xx so Pub/Sub retries.
func transformPubSubHandler(policy config.TransformPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(logger, "transforms.go", "transformPubSubHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		var push pubSubPushMessage
		if err := json.Unmarshal(body, &push); err != nil {
			config.LogError(logger, "transforms.go", "transformPubSubHandler", "Unmarshal body", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		var msg transform.QueuedRun
		if err := json.Unmarshal(push.Message.Data, &msg); err != nil {
			config.LogError(logger, "transforms.go", "transformPubSubHandler", "Unmarshal run message", string(push.Message.Data), err)
			c.Status(http.StatusNoContent)
			return
		}
		if err := msg.Validate(); err != nil {
			config.LogError(logger, "transforms.go", "transformPubSubHandler", "Invalid run message", msg, err)
			c.Status(http.StatusNoContent)
			return
		}

		correlationId := msg.CorrelationId
		if correlationId == "" {
			correlationId = push.Message.ID
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), msg.BusinessId)
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)

		if _, err := transform.Execute(ctx, transform.NewGormStore(), policy, msg); err != nil {
			var failed *transform.RunFailedError
			if errors.As(err, &failed) {
				// The run finalized and its failure is on the ledger;
				// redelivery would only repeat it.
				c.Status(http.StatusNoContent)
				return
			}
			if _, ok := preconditionStatus(err); ok {
				config.LogError(logger, "transforms.go", "transformPubSubHandler", "Precondition failed", msg, err)
				c.Status(http.StatusNoContent)
				return
			}
			config.LogError(logger, "transforms.go", "transformPubSubHandler", "Execute", msg, err)
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
