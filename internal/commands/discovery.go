package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/discovery"
	"github.com/infiniteinsight/spectral/internal/metrics"
	"github.com/infiniteinsight/spectral/internal/repositories"
	"github.com/infiniteinsight/spectral/internal/websocket"
)

// StartDiscoveryScan walks the default user directories (Documents,
// Downloads, Desktop) in the background, recording a DiscoveryFinding row
// per file that still carries PII. It returns immediately; progress is
// observed via get_discovery_findings.
func (s *Service) StartDiscoveryScan(vaultID string) *Error {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	dirs := discovery.DefaultUserDirectories()
	go s.runDiscoveryScan(context.Background(), vaultID, sess, dirs)
	return nil
}

func (s *Service) runDiscoveryScan(ctx context.Context, vaultID string, sess *session, dirs []string) {
	results, err := discovery.ScanDirectories(ctx, dirs)
	if err != nil {
		s.logger.Warn("discovery: scan failed", zap.Error(err))
		if s.hub != nil {
			s.hub.Publish(websocket.DiscoveryTopic(vaultID), websocket.Message{
				Type: websocket.MsgDiscoveryError, Topic: websocket.DiscoveryTopic(vaultID),
				Payload: map[string]any{"message": err.Error()},
			})
		}
		return
	}
	for _, result := range results {
		kinds := make([]string, 0, len(result.Kinds))
		for _, k := range result.Kinds {
			kinds = append(kinds, string(k))
		}
		encoded, err := json.Marshal(kinds)
		if err != nil {
			continue
		}
		finding := &db.DiscoveryFinding{
			Path:       result.Path,
			PiiKinds:   string(encoded),
			MatchCount: result.Matches,
		}
		if err := sess.discovery.Create(ctx, finding); err != nil {
			s.logger.Warn("discovery: failed to record finding", zap.String("path", result.Path), zap.Error(err))
		}
	}
	metrics.DiscoveryScansCompleted.Inc()
	if s.hub != nil {
		s.hub.Publish(websocket.DiscoveryTopic(vaultID), websocket.Message{
			Type: websocket.MsgDiscoveryComplete, Topic: websocket.DiscoveryTopic(vaultID),
			Payload: map[string]any{"findings_count": len(results)},
		})
	}
}

// DiscoveryFindingOutput is one entry in get_discovery_findings' response.
type DiscoveryFindingOutput struct {
	ID           string
	Path         string
	Kinds        []string
	MatchCount   int
	Remediated   bool
	RemediatedAt string
}

func discoveryOutputFrom(f db.DiscoveryFinding) DiscoveryFindingOutput {
	var kinds []string
	_ = json.Unmarshal([]byte(f.PiiKinds), &kinds)
	out := DiscoveryFindingOutput{
		ID:         f.ID.String(),
		Path:       f.Path,
		Kinds:      kinds,
		MatchCount: f.MatchCount,
		Remediated: f.Remediated,
	}
	if f.RemediatedAt != nil {
		out.RemediatedAt = f.RemediatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

// GetDiscoveryFindings lists every recorded filesystem PII finding.
func (s *Service) GetDiscoveryFindings(ctx context.Context, vaultID string, limit, offset int) ([]DiscoveryFindingOutput, *Error) {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return nil, cmdErr
	}
	findings, err := sess.discovery.List(ctx, repositories.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, translate(err)
	}
	out := make([]DiscoveryFindingOutput, 0, len(findings))
	for _, f := range findings {
		out = append(out, discoveryOutputFrom(f))
	}
	return out, nil
}

// MarkFindingRemediated records that a user deleted or redacted the file a
// discovery finding points at.
func (s *Service) MarkFindingRemediated(ctx context.Context, vaultID, findingID string) *Error {
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return cmdErr
	}
	id, err := uuid.Parse(findingID)
	if err != nil {
		return newError(CodeValidationError, "invalid finding_id").withDetail("field", "finding_id")
	}
	if err := sess.discovery.MarkRemediated(ctx, id, time.Now().UTC()); err != nil {
		return translate(err)
	}
	return nil
}
