package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/logging"
	"github.com/beaconhq/beacon/internal/models"
)

var (
	ErrReportNotFound         = errors.New("emergency report not found")
	ErrInvalidStatus          = errors.New("invalid report status")
	ErrAllNotificationsFailed = errors.New("failed to notify any recipient")
)

const emergenciesTable = "emergencies"

type SubmitReportParams struct {
	UserID        uuid.UUID
	UserName      string
	EmergencyType string
	SpecificType  string
	Location      string
	Description   string
}

type SOSParams struct {
	FromUserID uuid.UUID
	FromName   string
	Location   string
	Phone      string
	Latitude   *float64
	Longitude  *float64
	Address    string
}

// FriendLister is the slice of the friend service the SOS fan-out needs.
type FriendLister interface {
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error)
}

// AlertCreator is the error-returning notification surface; fan-out paths
// count successes, so the swallow-everything Notify is not enough here.
type AlertCreator interface {
	Create(ctx context.Context, params CreateNotificationParams) (*models.Notification, error)
}

type EmergencyService struct {
	db            DB
	friends       FriendLister
	notifications AlertCreator
	feed          ChangeFeed
	async         func(fn func())
	asyncCtx      context.Context
}

func NewEmergencyService(db DB, friends FriendLister, notifications AlertCreator, feed ChangeFeed) *EmergencyService {
	return &EmergencyService{
		db:            db,
		friends:       friends,
		notifications: notifications,
		feed:          feed,
		async: func(fn func()) {
			go fn()
		},
		asyncCtx: context.Background(),
	}
}

func (s *EmergencyService) SetAsync(fn func(fn func())) {
	s.async = fn
}

func (s *EmergencyService) SetAsyncContext(ctx context.Context) {
	if ctx == nil {
		s.asyncCtx = context.Background()
		return
	}
	s.asyncCtx = ctx
}

// SubmitReport validates, inserts with status forced to active, then fans an
// area-broadcast alert out to every user. The fan-out is advisory: it runs
// off the request path and its failures never surface to the reporter.
func (s *EmergencyService) SubmitReport(ctx context.Context, params SubmitReportParams) (*models.EmergencyReport, error) {
	switch {
	case params.UserID == uuid.Nil:
		return nil, missingField("user_id")
	case params.UserName == "":
		return nil, missingField("user_name")
	case params.EmergencyType == "":
		return nil, missingField("emergency_type")
	case params.SpecificType == "":
		return nil, missingField("specific_type")
	case params.Location == "":
		return nil, missingField("location")
	case params.Description == "":
		return nil, missingField("description")
	}

	report := &models.EmergencyReport{}
	err := s.db.QueryRow(ctx,
		`INSERT INTO emergencies (user_id, user_name, emergency_type, specific_type, location, description, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'active')
		 RETURNING id, user_id, user_name, emergency_type, specific_type, location, description, status, created_at`,
		params.UserID, params.UserName, params.EmergencyType, params.SpecificType, params.Location, params.Description,
	).Scan(&report.ID, &report.UserID, &report.UserName, &report.EmergencyType, &report.SpecificType,
		&report.Location, &report.Description, &report.Status, &report.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating emergency report: %w", err)
	}

	publishChange(ctx, s.feed, ChangeEvent{
		Table:  emergenciesTable,
		Op:     ChangeOpInsert,
		RowID:  report.ID,
		UserID: report.UserID,
	})

	broadcast := *report
	s.async(func() {
		baseCtx := s.asyncCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		bctx, cancel := context.WithTimeout(baseCtx, 30*time.Second)
		defer cancel()
		s.broadcastAlert(bctx, &broadcast)
	})

	return report, nil
}

// broadcastAlert notifies every user in the directory about the report.
// Area broadcast, not geofenced: proximity filtering happens client-side.
func (s *EmergencyService) broadcastAlert(ctx context.Context, report *models.EmergencyReport) {
	rows, err := s.db.Query(ctx,
		"SELECT DISTINCT COALESCE(user_id, id) FROM profiles",
	)
	if err != nil {
		logging.Error("Failed to load broadcast recipients", map[string]interface{}{
			"report_id": report.ID.String(),
			"error":     err.Error(),
		})
		return
	}
	defer rows.Close()

	var recipients []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			continue
		}
		recipients = append(recipients, id)
	}

	if len(recipients) == 0 {
		return
	}

	var failed int32
	var wg sync.WaitGroup
	for _, recipient := range recipients {
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			_, err := s.notifications.Create(ctx, CreateNotificationParams{
				UserID:        userID,
				Type:          models.NotificationTypeEmergency,
				Title:         "Emergency Alert",
				Message:       fmt.Sprintf("%s emergency reported near %s: %s", report.SpecificType, report.Location, report.Description),
				Priority:      models.NotificationPriorityHigh,
				ActionType:    models.ActionEmergencyAlert,
				ActionData:    report.ID.String(),
				Location:      report.Location,
				EmergencyType: report.EmergencyType,
			})
			if err != nil {
				atomic.AddInt32(&failed, 1)
			}
		}(recipient)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&failed); n > 0 {
		logging.Warn("Some broadcast notifications failed", map[string]interface{}{
			"report_id": report.ID.String(),
			"failed":    n,
			"total":     len(recipients),
		})
	}
}

func (s *EmergencyService) RecentReports(ctx context.Context, limit int) ([]models.EmergencyReport, error) {
	return s.queryReports(ctx,
		`SELECT id, user_id, user_name, emergency_type, specific_type, location, description, status, created_at
		 FROM emergencies
		 ORDER BY created_at DESC
		 LIMIT $1`,
		clampLimit(limit),
	)
}

// ReportsByArea is a substring match on the free-text location field.
// There is no geospatial index; "area" is whatever the reporter typed.
func (s *EmergencyService) ReportsByArea(ctx context.Context, area string, limit int) ([]models.EmergencyReport, error) {
	return s.queryReports(ctx,
		`SELECT id, user_id, user_name, emergency_type, specific_type, location, description, status, created_at
		 FROM emergencies
		 WHERE LOWER(location) LIKE $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		"%"+strings.ToLower(strings.TrimSpace(area))+"%", clampLimit(limit),
	)
}

func (s *EmergencyService) queryReports(ctx context.Context, query string, args ...any) ([]models.EmergencyReport, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying emergency reports: %w", err)
	}
	defer rows.Close()

	var reports []models.EmergencyReport
	for rows.Next() {
		var r models.EmergencyReport
		if err := rows.Scan(&r.ID, &r.UserID, &r.UserName, &r.EmergencyType, &r.SpecificType,
			&r.Location, &r.Description, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning emergency report: %w", err)
		}
		reports = append(reports, r)
	}

	if reports == nil {
		reports = []models.EmergencyReport{}
	}
	return reports, nil
}

// UpdateStatus overwrites the report status. Any status may move to any
// other; only membership in the known set is checked.
func (s *EmergencyService) UpdateStatus(ctx context.Context, reportID uuid.UUID, status models.EmergencyStatus) error {
	switch status {
	case models.EmergencyStatusActive, models.EmergencyStatusPending, models.EmergencyStatusResolved:
	default:
		return ErrInvalidStatus
	}

	result, err := s.db.Exec(ctx,
		"UPDATE emergencies SET status = $2 WHERE id = $1",
		reportID, string(status),
	)
	if err != nil {
		return fmt.Errorf("updating emergency status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrReportNotFound
	}

	publishChange(ctx, s.feed, ChangeEvent{
		Table: emergenciesTable,
		Op:    ChangeOpUpdate,
		RowID: reportID,
	})
	return nil
}

// SendSOSToFriends fans an SOS alert out to the caller's active friends in
// parallel. With no friends it sends a single self-test alert to the caller
// so the button still visibly works. The call fails only when every write
// failed while real targets existed, which usually means writes are being
// rejected wholesale.
func (s *EmergencyService) SendSOSToFriends(ctx context.Context, params SOSParams) (int, error) {
	friends, err := s.friends.ListFriends(ctx, params.FromUserID)
	if err != nil {
		return 0, fmt.Errorf("loading friends for SOS: %w", err)
	}

	actionData := sosActionData(params)

	if len(friends) == 0 {
		_, err := s.notifications.Create(ctx, CreateNotificationParams{
			UserID:     params.FromUserID,
			Type:       models.NotificationTypeWarning,
			Title:      "SOS Self-Test",
			Message:    "You have no active friends yet; this alert was delivered only to you.",
			Priority:   models.NotificationPriorityHigh,
			ActionType: models.ActionEmergencyAlert,
			ActionData: actionData,
			Location:   params.Location,
			Phone:      params.Phone,
		})
		if err != nil {
			return 0, fmt.Errorf("creating self-test notification: %w", err)
		}
		return 0, nil
	}

	var notified int32
	var wg sync.WaitGroup
	for _, friend := range friends {
		wg.Add(1)
		go func(targetID uuid.UUID) {
			defer wg.Done()
			_, err := s.notifications.Create(ctx, CreateNotificationParams{
				UserID:        targetID,
				Type:          models.NotificationTypeEmergency,
				Title:         "SOS Alert",
				Message:       fmt.Sprintf("%s needs immediate help!", params.FromName),
				Priority:      models.NotificationPriorityHigh,
				ActionType:    models.ActionEmergencyAlert,
				ActionData:    actionData,
				Location:      params.Location,
				Phone:         params.Phone,
				EmergencyType: "sos",
			})
			if err == nil {
				atomic.AddInt32(&notified, 1)
			}
		}(friend.FriendID)
	}
	wg.Wait()

	count := int(atomic.LoadInt32(&notified))
	if count == 0 {
		return 0, ErrAllNotificationsFailed
	}
	return count, nil
}

func sosActionData(params SOSParams) string {
	payload := map[string]any{}
	if params.Latitude != nil && params.Longitude != nil {
		payload["lat"] = *params.Latitude
		payload["lng"] = *params.Longitude
	}
	if params.Address != "" {
		payload["address"] = params.Address
	}
	if len(payload) == 0 {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}

// Risk tiers and confidence formulas for GenerateRiskPredictions. These are
// fixed heuristics; changing them changes observable output.
const (
	riskLowThreshold    = 2
	riskMediumThreshold = 3
	riskHighThreshold   = 5
	maxPredictions      = 5

	typeConfidencePerCount     = 20
	typeConfidenceCap          = 95
	locationConfidencePerCount = 25
	locationConfidenceCap      = 90
)

// GenerateRiskPredictions derives up to five risk predictions from the
// supplied reports by counting occurrences per specific type and per
// location. Pure and deterministic: the same multiset of reports always
// yields the same ordered list, type-based entries first.
func GenerateRiskPredictions(reports []models.EmergencyReport) []models.RiskPrediction {
	typeCounts := make(map[string]int)
	locationCounts := make(map[string]int)
	for _, r := range reports {
		typeCounts[r.SpecificType]++
		locationCounts[r.Location]++
	}

	typed := predictionsFromCounts(typeCounts, "type", typeConfidencePerCount, typeConfidenceCap)
	located := predictionsFromCounts(locationCounts, "location", locationConfidencePerCount, locationConfidenceCap)

	predictions := append(typed, located...)
	if len(predictions) > maxPredictions {
		predictions = predictions[:maxPredictions]
	}
	return predictions
}

func predictionsFromCounts(counts map[string]int, kind string, perCount, maxConfidence int) []models.RiskPrediction {
	var predictions []models.RiskPrediction
	for subject, count := range counts {
		if count < riskLowThreshold {
			continue
		}
		confidence := count * perCount
		if confidence > maxConfidence {
			confidence = maxConfidence
		}
		predictions = append(predictions, models.RiskPrediction{
			Kind:       kind,
			Subject:    subject,
			RiskLevel:  riskTier(count),
			Confidence: confidence,
			Count:      count,
		})
	}

	// Map iteration order is random; pin it down.
	sort.Slice(predictions, func(i, j int) bool {
		if predictions[i].Count != predictions[j].Count {
			return predictions[i].Count > predictions[j].Count
		}
		return predictions[i].Subject < predictions[j].Subject
	})
	return predictions
}

func riskTier(count int) string {
	switch {
	case count >= riskHighThreshold:
		return "High"
	case count >= riskMediumThreshold:
		return "Medium"
	default:
		return "Low"
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
