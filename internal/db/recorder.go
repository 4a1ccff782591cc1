// Package db persists the engine's append-only logs — discovered
// opportunities, dispatched executions, oracle price history and safety
// events — via GORM against MySQL.
package db

import (
	"fmt"
	"math/big"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	arbengine "github.com/vantablack/arbengine"
)

// OpportunityRecord is one candidate path discovered and costed by the
// pipeline, whether or not it was ultimately dispatched.
type OpportunityRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp      time.Time `gorm:"index;not null"`
	HopCount       int       `gorm:"not null"`
	StartToken     string    `gorm:"type:varchar(42);not null;index"`
	GrossProfit    string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	NetProfit      string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	RoiBps         int64     `gorm:"not null"`
	Profitable     bool      `gorm:"not null;index"`
	MeetsThreshold bool      `gorm:"not null;index"`
	FlashLoanSource string   `gorm:"type:varchar(32)"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (OpportunityRecord) TableName() string { return "opportunities" }

// ExecutionRecord is one bundle actually dispatched on-chain, keyed by
// the correlation ID threaded through the whole pipeline.
type ExecutionRecord struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	BundleID      string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	Timestamp     time.Time `gorm:"index;not null"`
	TxHash        string    `gorm:"type:varchar(66);index"`
	Status        uint64    `gorm:"not null"`
	GasUsed       string    `gorm:"type:varchar(78)"`
	NetProfit     string    `gorm:"type:varchar(78);comment:big.Int as string"`
	SentPrivately bool      `gorm:"not null"`
	Reverted      bool      `gorm:"not null;index"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (ExecutionRecord) TableName() string { return "executions" }

// OracleHistoryRecord is one committed price update, retained for audit
// even after the Price Oracle Validator's own in-memory ring has
// rotated it out.
type OracleHistoryRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	Symbol          string    `gorm:"type:varchar(16);not null;index"`
	PriceScaled1e18 string    `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	Source          string    `gorm:"type:varchar(64)"`
	TsMs            int64     `gorm:"not null;index"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (OracleHistoryRecord) TableName() string { return "oracle_history" }

// SafetyEventRecord is one circuit-breaker trip, emergency-stop latch or
// rate-limit rejection, for post-incident review.
type SafetyEventRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	Kind      string    `gorm:"type:varchar(32);not null;index"`
	Reason    string    `gorm:"type:varchar(255)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (SafetyEventRecord) TableName() string { return "safety_events" }

// Recorder persists the four append-only logs via GORM/MySQL.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder opens a MySQL connection and migrates all four tables.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewRecorder(dsn string) (*Recorder, error) {
	gormDB, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewRecorderWithDB(gormDB)
}

// NewRecorderWithDB wraps an existing GORM connection, migrating all
// four tables. Used directly by tests against an sqlmock-backed DB.
func NewRecorderWithDB(gormDB *gorm.DB) (*Recorder, error) {
	if err := gormDB.AutoMigrate(
		&OpportunityRecord{}, &ExecutionRecord{}, &OracleHistoryRecord{}, &SafetyEventRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Recorder{db: gormDB}, nil
}

// RecordOpportunity appends one discovered-and-costed candidate.
func (r *Recorder) RecordOpportunity(path arbengine.ArbitragePath, bd arbengine.ProfitBreakdown) error {
	record := OpportunityRecord{
		Timestamp:       time.Now(),
		HopCount:        len(path.Hops),
		StartToken:      path.StartToken().Hex(),
		GrossProfit:     bigIntToString(bd.Gross),
		NetProfit:       bigIntToString(bd.Net),
		RoiBps:          bd.RoiBps,
		Profitable:      bd.Profitable,
		MeetsThreshold:  bd.MeetsThreshold,
		FlashLoanSource: string(path.FlashLoanProvider),
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record opportunity: %w", result.Error)
	}
	return nil
}

// RecordExecution appends one dispatched bundle's on-chain outcome.
func (r *Recorder) RecordExecution(bundle arbengine.CandidateBundle, txHash string, status uint64, gasUsed *big.Int, sentPrivately bool) error {
	record := ExecutionRecord{
		BundleID:      bundle.ID,
		Timestamp:     time.Now(),
		TxHash:        txHash,
		Status:        status,
		GasUsed:       bigIntToString(gasUsed),
		NetProfit:     bigIntToString(bundle.Breakdown.Net),
		SentPrivately: sentPrivately,
		Reverted:      status == 0,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record execution: %w", result.Error)
	}
	return nil
}

// RecordOraclePrice appends one committed price update to the audit log.
func (r *Recorder) RecordOraclePrice(snapshot arbengine.PriceSnapshot) error {
	record := OracleHistoryRecord{
		Symbol:          snapshot.Symbol,
		PriceScaled1e18: bigIntToString(snapshot.PriceScaled1e18),
		Source:          snapshot.Source,
		TsMs:            snapshot.TsMs,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record oracle price: %w", result.Error)
	}
	return nil
}

// RecordSafetyEvent appends one breaker trip / emergency stop / rate
// limit rejection.
func (r *Recorder) RecordSafetyEvent(kind, reason string) error {
	record := SafetyEventRecord{Timestamp: time.Now(), Kind: kind, Reason: reason}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record safety event: %w", result.Error)
	}
	return nil
}

// CountOpportunities returns the total number of logged opportunities.
func (r *Recorder) CountOpportunities() (int64, error) {
	var count int64
	result := r.db.Model(&OpportunityRecord{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count opportunities: %w", result.Error)
	}
	return count, nil
}

// Close releases the underlying connection pool.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

func bigIntToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
