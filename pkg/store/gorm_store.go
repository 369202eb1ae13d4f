package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/st243452-ship-it/smart-analyst-saas/pkg/domain"
)

const migrateLockID int64 = 48125012

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race the schema.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UsageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Load reads every usage row into the flat map form.
func (s *GormStore) Load() (map[string]domain.UserRecord, error) {
	var rows []UsageModel
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load usage records: %w", err)
	}
	out := make(map[string]domain.UserRecord, len(rows))
	for _, row := range rows {
		record, err := recordFromModel(row)
		if err != nil {
			return nil, err
		}
		out[row.Email] = record
	}
	return out, nil
}

// Save replaces all usage rows with the provided map.
func (s *GormStore) Save(records map[string]domain.UserRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&UsageModel{}).Error; err != nil {
			return fmt.Errorf("clear usage records: %w", err)
		}
		for email, record := range records {
			row, err := modelFromRecord(email, record)
			if err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("save usage record: %w", err)
			}
		}
		return nil
	})
}

// RecordAnswer appends one entry and bumps the counter inside a row-locked
// transaction.
func (s *GormStore) RecordAnswer(email, documentName, question, answer string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row UsageModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("email = ?", email).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = UsageModel{Email: email, CreatedAt: time.Now().UTC()}
			err = nil
		}
		if err != nil {
			return fmt.Errorf("load usage record: %w", err)
		}

		record, convErr := recordFromModel(row)
		if convErr != nil {
			return convErr
		}
		record.History = append(record.History, domain.QAEntry{
			Time:     time.Now().Format(TimestampFormat),
			Doc:      documentName,
			Question: question,
			Answer:   answer,
		})
		record.CreditsUsed++

		history, marshalErr := json.Marshal(record.History)
		if marshalErr != nil {
			return fmt.Errorf("encode history: %w", marshalErr)
		}
		row.CreditsUsed = record.CreditsUsed
		row.History = datatypes.JSON(history)
		row.UpdatedAt = time.Now().UTC()
		return tx.Save(&row).Error
	})
}

// GetStats reports zero usage for unknown emails.
func (s *GormStore) GetStats(email string) (int, []domain.QAEntry, error) {
	var row UsageModel
	err := s.db.Where("email = ?", email).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("load usage record: %w", err)
	}
	record, convErr := recordFromModel(row)
	if convErr != nil {
		return 0, nil, convErr
	}
	return record.CreditsUsed, record.History, nil
}

func recordFromModel(row UsageModel) (domain.UserRecord, error) {
	record := domain.UserRecord{CreditsUsed: row.CreditsUsed, History: []domain.QAEntry{}}
	if len(row.History) == 0 {
		return record, nil
	}
	if err := json.Unmarshal(row.History, &record.History); err != nil {
		return domain.UserRecord{}, fmt.Errorf("decode history for %s: %w", row.Email, err)
	}
	return record, nil
}

func modelFromRecord(email string, record domain.UserRecord) (UsageModel, error) {
	history, err := json.Marshal(record.History)
	if err != nil {
		return UsageModel{}, fmt.Errorf("encode history for %s: %w", email, err)
	}
	now := time.Now().UTC()
	return UsageModel{
		Email:       email,
		CreditsUsed: record.CreditsUsed,
		History:     datatypes.JSON(history),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(context.Background(), conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}
