package main

import (
	"fmt"
	"log"

	"im-social/config"
	"im-social/internal/model"
	"im-social/pkg/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	cfg := config.LoadConfig()

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("Database handle failed: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Database connection test failed: %v", err)
	}

	fmt.Println("Database connected successfully")
	fmt.Printf("Driver: %s Database: %s\n", cfg.Database.Driver, cfg.Database.Database)

	tables := tableNames(gdb)

	fmt.Printf("\nWARNING: This operation will CLEAR ALL DATA in tables %v!\n", tables)
	fmt.Print("Type 'YES' to confirm: ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "YES" {
		fmt.Println("Operation cancelled")
		return
	}

	mysql := cfg.Database.Driver != "sqlite"
	if mysql {
		_ = gdb.Exec("SET FOREIGN_KEY_CHECKS=0").Error
	}

	// child tables first
	for i := len(tables) - 1; i >= 0; i-- {
		table := tables[i]
		fmt.Printf("Clearing table %s... ", table)
		if err := gdb.Exec("DELETE FROM ?", clause.Table{Name: table}).Error; err != nil {
			fmt.Printf("Failed: %v\n", err)
			continue
		}
		fmt.Println("Success")

		if !mysql {
			continue
		}
		if err := gdb.Exec("ALTER TABLE ? AUTO_INCREMENT = 1", clause.Table{Name: table}).Error; err != nil {
			fmt.Printf("Resetting %s auto-increment failed: %v\n", table, err)
		}
	}

	if mysql {
		_ = gdb.Exec("SET FOREIGN_KEY_CHECKS=1").Error
	}

	fmt.Println("\nDatabase reset completed!")
	fmt.Println("All table data cleared, table structure preserved")
}

// tableNames resolves the migrated tables in model.AllModels order
func tableNames(gdb *gorm.DB) []string {
	var names []string
	for _, m := range model.AllModels() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(m); err != nil {
			log.Fatalf("Parse model %T failed: %v", m, err)
		}
		names = append(names, stmt.Schema.Table)
	}
	return names
}
