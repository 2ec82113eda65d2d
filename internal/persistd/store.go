// Package persistd is the reference persistence daemon for the dashboard. It
// stores analysis records and activity logs in SQLite and serves the REST
// surface the dashboard's persistence client talks to.
package persistd

import (
	"encoding/json"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sentinelops/sentinel-go/internal/errors"
	"github.com/sentinelops/sentinel-go/internal/model"
)

// analysisRow is the stored form of one analysis record. The per-detection
// list is kept as a JSON payload; the daemon never queries inside it.
type analysisRow struct {
	Seq                  uint   `gorm:"primaryKey;autoIncrement"`
	AnalysisID           string `gorm:"uniqueIndex;size:64"`
	ImageName            string
	Timestamp            string
	TotalDetections      int
	Threats              int
	Verified             int
	Analyzing            int
	ProcessingTimeMs     int
	AnnotatedImageBase64 string
	Lat                  *float64
	Lng                  *float64
	DetectionsJSON       []byte
	CreatedAt            time.Time
}

// activityLogRow is the stored form of one activity log entry.
type activityLogRow struct {
	Seq        uint   `gorm:"primaryKey;autoIncrement"`
	LogID      string `gorm:"uniqueIndex;size:64"`
	Message    string
	Timestamp  string
	Type       string
	AnalysisID string `gorm:"index;size:64"`
	CreatedAt  time.Time
}

// DataStore wraps the SQLite database behind the daemon's REST surface.
type DataStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the SQLite database at path and migrates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string, logger *slog.Logger) (*DataStore, error) {
	if logger == nil {
		logger = slog.Default().With("service", "persistd")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("persistd").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&analysisRow{}, &activityLogRow{}); err != nil {
		return nil, errors.New(err).
			Component("persistd").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}

	return &DataStore{db: db, logger: logger}, nil
}

// Close releases the underlying database connection.
func (ds *DataStore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveAnalysis inserts one analysis record.
func (ds *DataStore) SaveAnalysis(record *model.AnalysisRecord) error {
	detections, err := json.Marshal(record.Detections)
	if err != nil {
		return errors.New(err).
			Component("persistd").
			Category(errors.CategoryDatabase).
			Context("analysis_id", record.ID).
			Build()
	}

	row := analysisRow{
		AnalysisID:           record.ID,
		ImageName:            record.ImageName,
		Timestamp:            record.Timestamp,
		TotalDetections:      record.TotalDetections,
		Threats:              record.Threats,
		Verified:             record.Verified,
		Analyzing:            record.Analyzing,
		ProcessingTimeMs:     record.ProcessingTimeMs,
		AnnotatedImageBase64: record.AnnotatedImageBase64,
		DetectionsJSON:       detections,
	}
	if record.Coordinates != nil {
		lat, lng := record.Coordinates.Lat, record.Coordinates.Lng
		row.Lat, row.Lng = &lat, &lng
	}

	if err := ds.db.Create(&row).Error; err != nil {
		return errors.New(err).
			Component("persistd").
			Category(errors.CategoryDatabase).
			Context("analysis_id", record.ID).
			Build()
	}
	return nil
}

// Analyses returns every stored record, newest first.
func (ds *DataStore) Analyses() ([]model.AnalysisRecord, error) {
	var rows []analysisRow
	if err := ds.db.Order("seq DESC").Find(&rows).Error; err != nil {
		return nil, errors.New(err).
			Component("persistd").
			Category(errors.CategoryDatabase).
			Build()
	}

	records := make([]model.AnalysisRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toRecord()
		if err != nil {
			ds.logger.Warn("skipping undecodable analysis row",
				"analysis_id", rows[i].AnalysisID,
				"error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *analysisRow) toRecord() (model.AnalysisRecord, error) {
	var detections []model.Detection
	if len(r.DetectionsJSON) > 0 {
		if err := json.Unmarshal(r.DetectionsJSON, &detections); err != nil {
			return model.AnalysisRecord{}, err
		}
	}

	record := model.AnalysisRecord{
		ID:                   r.AnalysisID,
		ImageName:            r.ImageName,
		Timestamp:            r.Timestamp,
		TotalDetections:      r.TotalDetections,
		Threats:              r.Threats,
		Verified:             r.Verified,
		Analyzing:            r.Analyzing,
		ProcessingTimeMs:     r.ProcessingTimeMs,
		AnnotatedImageBase64: r.AnnotatedImageBase64,
		Detections:           detections,
	}
	if r.Lat != nil && r.Lng != nil {
		record.Coordinates = &model.Coordinates{Lat: *r.Lat, Lng: *r.Lng}
	}
	return record, nil
}

// DeleteAnalysis removes one record and its activity logs. Unknown ids are a
// no-op so the dashboard's fire-and-forget deletes stay idempotent.
func (ds *DataStore) DeleteAnalysis(analysisID string) error {
	return ds.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("analysis_id = ?", analysisID).Delete(&analysisRow{}).Error; err != nil {
			return err
		}
		return tx.Where("analysis_id = ?", analysisID).Delete(&activityLogRow{}).Error
	})
}

// DeleteAllAnalyses empties both tables.
func (ds *DataStore) DeleteAllAnalyses() error {
	return ds.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&analysisRow{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&activityLogRow{}).Error
	})
}

// SaveActivityLog inserts one activity log entry.
func (ds *DataStore) SaveActivityLog(entry *model.ActivityLog) error {
	row := activityLogRow{
		LogID:      entry.ID,
		Message:    entry.Message,
		Timestamp:  entry.Timestamp,
		Type:       string(entry.Type),
		AnalysisID: entry.AnalysisID,
	}
	if err := ds.db.Create(&row).Error; err != nil {
		return errors.New(err).
			Component("persistd").
			Category(errors.CategoryDatabase).
			Context("log_id", entry.ID).
			Build()
	}
	return nil
}

// ActivityLogs returns every stored entry, newest first.
func (ds *DataStore) ActivityLogs() ([]model.ActivityLog, error) {
	var rows []activityLogRow
	if err := ds.db.Order("seq DESC").Find(&rows).Error; err != nil {
		return nil, errors.New(err).
			Component("persistd").
			Category(errors.CategoryDatabase).
			Build()
	}

	logs := make([]model.ActivityLog, 0, len(rows))
	for i := range rows {
		logs = append(logs, model.ActivityLog{
			ID:         rows[i].LogID,
			Message:    rows[i].Message,
			Timestamp:  rows[i].Timestamp,
			Type:       model.LogType(rows[i].Type),
			AnalysisID: rows[i].AnalysisID,
		})
	}
	return logs, nil
}
