package models

import (
	"log"

	"github.com/realcrm/realty_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Seller{}, &Property{},
		&SheetSyncRun{}, &SheetSyncError{}, &SellerDeletionLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
