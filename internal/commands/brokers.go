package commands

import (
	"context"

	"github.com/infiniteinsight/spectral/internal/broker"
	"github.com/infiniteinsight/spectral/internal/repositories"
)

// BrokerSummary is one entry in list_brokers' response.
type BrokerSummary struct {
	ID                 string
	Name               string
	Domain             string
	Category           string
	Difficulty         string
	TypicalRemovalDays int
}

func summaryFrom(def broker.Definition) BrokerSummary {
	return BrokerSummary{
		ID:                 def.Broker.ID,
		Name:               def.Broker.Name,
		Domain:             def.Broker.Domain,
		Category:           string(def.Broker.Category),
		Difficulty:         def.Broker.Difficulty.String(),
		TypicalRemovalDays: def.Broker.TypicalRemovalDays,
	}
}

// ListBrokers returns a summary of every loaded broker definition.
func (s *Service) ListBrokers() []BrokerSummary {
	defs := s.registry.All()
	out := make([]BrokerSummary, 0, len(defs))
	for _, def := range defs {
		out = append(out, summaryFrom(def))
	}
	return out
}

// BrokerDetail is the response to get_broker_detail.
type BrokerDetail struct {
	BrokerSummary
	RemovalMethod       string
	URL                 string
	RecheckIntervalDays int
	LastVerified        string
	FindingCount        int64
	HasFindings         bool
}

// GetBrokerDetail returns the full broker definition plus, if vaultID
// names an unlocked vault, how many findings exist for it there.
func (s *Service) GetBrokerDetail(brokerID, vaultID string) (BrokerDetail, *Error) {
	def, err := s.registry.Get(brokerID)
	if err != nil {
		return BrokerDetail{}, newError(CodeBrokerNotFound, err.Error())
	}

	detail := BrokerDetail{
		BrokerSummary:       summaryFrom(def),
		RemovalMethod:       string(def.Removal.Kind),
		URL:                 def.Broker.URL,
		RecheckIntervalDays: def.Broker.RecheckIntervalDays,
		LastVerified:        def.Broker.LastVerified,
	}

	if vaultID == "" {
		return detail, nil
	}
	sess, cmdErr := s.getSession(vaultID)
	if cmdErr != nil {
		return detail, nil
	}
	summaries, err := sess.vault.ListProfiles()
	if err != nil || len(summaries) == 0 {
		return detail, nil
	}
	findings, err := sess.findings.ListByProfile(context.Background(), summaries[0].ID, repositories.ListOptions{})
	if err == nil {
		for _, f := range findings {
			if f.BrokerID == brokerID {
				detail.FindingCount++
			}
		}
		detail.HasFindings = detail.FindingCount > 0
	}
	return detail, nil
}
