// internal/services/report_service.go
package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"gorm.io/gorm"

	"github.com/retailradar/arbitrage-backend/internal/config"
	"github.com/retailradar/arbitrage-backend/internal/models"
)

// ReportService exports one CSV per detection day with every opportunity
// found that day. Without AWS credentials it runs in local mode and only
// announces what it would have uploaded.
type ReportService struct {
	db       *gorm.DB
	cfg      config.AWSConfig
	s3Client *s3.S3
}

type ReportResult struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Rows int    `json:"rows"`
	Size int64  `json:"size"`
}

func NewReportService(db *gorm.DB, cfg config.AWSConfig) (*ReportService, error) {
	if cfg.AccessKeyID == "" {
		// Local development mode, no S3
		return &ReportService{db: db, cfg: cfg}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &ReportService{
		db:       db,
		cfg:      cfg,
		s3Client: s3.New(sess),
	}, nil
}

// GenerateDailyReport builds and uploads the CSV for the given day. Expired
// rows are included; the report is the audit trail, not the live view.
func (s *ReportService) GenerateDailyReport(date time.Time) (*ReportResult, error) {
	detectionDate := date.Format("2006-01-02")

	var opportunities []models.ArbitrageOpportunity
	err := s.db.Where("detection_date = ?", detectionDate).
		Order("priority DESC, gross_margin DESC").
		Find(&opportunities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load opportunities for report: %w", err)
	}

	content, err := renderReportCSV(opportunities)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/opportunities-%s.csv", s.cfg.ReportPrefix, detectionDate)

	if s.s3Client == nil {
		fmt.Printf("Report would be uploaded to s3://%s/%s (%d rows)\n", s.cfg.S3Bucket, key, len(opportunities))
		return &ReportResult{
			Key:  key,
			Rows: len(opportunities),
			Size: int64(len(content)),
		}, nil
	}

	_, err = s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String("text/csv"),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload report to S3: %w", err)
	}

	return &ReportResult{
		Key:  key,
		URL:  fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.S3Bucket, s.cfg.Region, key),
		Rows: len(opportunities),
		Size: int64(len(content)),
	}, nil
}

func renderReportCSV(opportunities []models.ArbitrageOpportunity) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"opportunity_id", "detection_date", "status",
		"buy_retailer", "sell_retailer",
		"cheap_entity_id", "expensive_entity_id",
		"buy_price", "sell_price", "gross_margin",
		"percentage_diff", "roi", "opportunity_score", "match_confidence",
		"risk_level", "priority", "times_detected",
		"detected_at", "estimated_expiry",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}

	for i := range opportunities {
		opp := &opportunities[i]
		row := []string{
			opp.ID.String(),
			opp.DetectionDate,
			string(opp.Status),
			opp.BuyRetailer,
			opp.SellRetailer,
			opp.CheapEntityID,
			opp.ExpensiveEntityID,
			strconv.FormatInt(opp.BuyPrice, 10),
			strconv.FormatInt(opp.SellPrice, 10),
			strconv.FormatInt(opp.GrossMargin, 10),
			strconv.FormatFloat(opp.PercentageDiff, 'f', 2, 64),
			strconv.FormatFloat(opp.ROI, 'f', 4, 64),
			strconv.FormatFloat(opp.OpportunityScore, 'f', 4, 64),
			strconv.FormatFloat(opp.MatchConfidence, 'f', 4, 64),
			string(opp.RiskLevel),
			strconv.Itoa(opp.Priority),
			strconv.Itoa(opp.TimesDetected),
			opp.DetectedAt.Format(time.RFC3339),
			opp.EstimatedExpiry.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to render report: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}
