package models

import (
	"github.com/marginworks/costbooks_backend/config"
	"github.com/sirupsen/logrus"
)

// MigrateTable runs AutoMigrate for every persisted type. DDL can block
// busy tables, so startup may skip this and run it as a separate job.
func MigrateTable() {
	logger := config.GetLogger()
	err := config.GetDB().AutoMigrate(
		&Upload{},
		&UploadBatch{},
		&InventoryItem{},
		&SalesTransaction{},
		&TransformRun{},
		&ReviewQueueEntry{},
	)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"field": "migrations",
		}).Panic(err.Error())
	}
}
