package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/ingest"
	"github.com/marginworks/costbooks_backend/models"
	"github.com/marginworks/costbooks_backend/posfeed"
	"github.com/marginworks/costbooks_backend/utils"
)

const maxUploadBytes = 50 << 20 // 50 MB

func formatForFilename(name string) (ingest.Format, string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".xlsx":
		return ingest.FormatXLSX, ext, nil
	case ".csv", ".tsv", ".txt":
		return ingest.FormatCSV, ext, nil
	default:
		return "", ext, fmt.Errorf("unsupported file type %q", ext)
	}
}

func readUploadFile(header *multipart.FileHeader) ([]byte, error) {
	if header.Size > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
}

// uploadHandler ingests one raw file: archive the bytes, parse and stage
// tier-1 batches, and report the parse summary.
func uploadHandler(policy config.TransformPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()
		businessId, _ := utils.GetBusinessIdFromContext(ctx)

		recordType := models.RecordType(strings.TrimSpace(c.PostForm("record_type")))
		if recordType != models.RecordTypeInventory && recordType != models.RecordTypeSales {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_type must be inventory or sales"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		format, ext, err := formatForFilename(fileHeader.Filename)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := readUploadFile(fileHeader)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		upload := &models.Upload{
			BusinessId:     businessId,
			RecordType:     recordType,
			SourceProvider: "upload",
			FileName:       fileHeader.Filename,
			ObjectKey:      fmt.Sprintf("%s/uploads/%s%s", businessId, utils.GenerateUniqueFilename(), ext),
			Status:         models.UploadStatusUploaded,
		}
		if err := models.CreateUpload(ctx, upload); err != nil {
			config.LogError(logger, "uploads.go", "uploadHandler", "CreateUpload", businessId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create upload"})
			return
		}

		// Raw bytes are archived before parsing so a bad parse can be
		// replayed from the original file.
		contentType := fileHeader.Header.Get("Content-Type")
		if err := utils.UploadBytesToGCS(ctx, upload.ObjectKey, data, contentType); err != nil {
			config.LogError(logger, "uploads.go", "uploadHandler", "UploadBytesToGCS", upload.ObjectKey, err)
			_ = models.MarkUploadFailed(ctx, upload.ID)
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not archive upload"})
			return
		}

		release, err := utils.UploadLock(ctx, businessId, upload.ID, "uploads.go", "uploadHandler")
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		defer release()

		parser := ingest.NewParser(ingest.SchemaFor(recordType), policy.BatchSize, ingest.GormSink{})
		summary, err := parser.Parse(ctx, businessId, upload.ID, bytes.NewReader(data), format)
		if err != nil {
			_ = models.MarkUploadFailed(ctx, upload.ID)
			var missing *ingest.MissingHeadersError
			if errors.As(err, &missing) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error":           "required headers missing",
					"missing_headers": missing.Missing,
				})
				return
			}
			config.LogError(logger, "uploads.go", "uploadHandler", "Parse", upload.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "parse failed"})
			return
		}

		if err := models.MarkUploadValidated(ctx, upload.ID, summary.RowsTotal, summary.RowsValid, summary.RowsInvalid, summary.BatchCount); err != nil {
			config.LogError(logger, "uploads.go", "uploadHandler", "MarkUploadValidated", upload.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not finalize upload"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"upload_id": upload.ID,
			"summary":   summary,
		})
	}
}

// posFeedHandler stages a POS provider payload into the same tier-1
// upload format file ingestion produces.
func posFeedHandler(policy config.TransformPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()
		businessId, _ := utils.GetBusinessIdFromContext(ctx)

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read body"})
			return
		}
		provider, records, err := posfeed.DecodeFeed(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(records) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "feed contains no line items"})
			return
		}

		upload, err := posfeed.NewStager(policy).Stage(ctx, businessId, provider, records)
		if err != nil {
			config.LogError(logger, "uploads.go", "posFeedHandler", "Stage", businessId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not stage feed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"upload_id":    upload.ID,
			"provider":     provider,
			"status":       upload.Status,
			"rows_total":   upload.RowsTotal,
			"rows_valid":   upload.RowsValid,
			"rows_invalid": upload.RowsInvalid,
			"batch_count":  upload.BatchCount,
		})
	}
}
