package reports

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func aggPtr(a AggregateFunc) *AggregateFunc { return &a }

func fmtPtr(f ColumnFormat) *ColumnFormat { return &f }

// systemReports returns the built-in report definitions. These ship with
// the platform and are recreated by name on startup when missing.
func systemReports() []*ReportDefinition {
	return []*ReportDefinition{
		{
			Name:          "Daily Call Summary",
			Description:   strPtr("Call volume, talk time and cost for the current day"),
			EntityType:    EntityTypeCalls,
			PrimaryEntity: "call",
			Columns: ColumnList{
				{ID: "status", Field: "status", Label: "Status", Type: "string", IsVisible: true},
				{ID: "total_calls", Field: "id", Label: "Total Calls", Type: "number", Aggregate: aggPtr(AggregateCount), IsVisible: true},
				{ID: "total_talk", Field: "talkTimeSeconds", Label: "Total Talk Time (s)", Type: "number", Aggregate: aggPtr(AggregateSum), IsVisible: true},
				{ID: "avg_wait", Field: "waitTimeSeconds", Label: "Avg Wait (s)", Type: "number", Aggregate: aggPtr(AggregateAvg), IsVisible: true},
				{ID: "total_cost", Field: "cost", Label: "Total Cost", Type: "number", Aggregate: aggPtr(AggregateSum), Format: fmtPtr(FormatCurrency), IsVisible: true},
			},
			Groupings:        GroupingList{{Field: "status", Label: "Status"}},
			DateField:        strPtr("createdAt"),
			DefaultDateRange: strPtr("today"),
			IsPublic:         true,
			IsSystem:         true,
		},
		{
			Name:          "Campaign Performance",
			Description:   strPtr("Per-campaign call volume and spend over the last 30 days"),
			EntityType:    EntityTypeCalls,
			PrimaryEntity: "call",
			Joins:         StringList{"campaign"},
			Columns: ColumnList{
				{ID: "campaign", Field: "campaignId", Label: "Campaign", Type: "string", IsVisible: true},
				{ID: "campaign_name", Field: "campaign.name", Label: "Campaign Name", Type: "string", IsVisible: true},
				{ID: "total_calls", Field: "id", Label: "Total Calls", Type: "number", Aggregate: aggPtr(AggregateCount), IsVisible: true},
				{ID: "avg_duration", Field: "durationSeconds", Label: "Avg Duration (s)", Type: "number", Aggregate: aggPtr(AggregateAvg), IsVisible: true},
				{ID: "total_cost", Field: "cost", Label: "Total Cost", Type: "number", Aggregate: aggPtr(AggregateSum), Format: fmtPtr(FormatCurrency), IsVisible: true},
			},
			Groupings:        GroupingList{{Field: "campaignId", Label: "Campaign"}},
			DateField:        strPtr("createdAt"),
			DefaultDateRange: strPtr("last_30_days"),
			IsPublic:         true,
			IsSystem:         true,
		},
		{
			Name:          "Agent Productivity",
			Description:   strPtr("Calls handled and talk time per agent over the last 7 days"),
			EntityType:    EntityTypeCalls,
			PrimaryEntity: "call",
			Joins:         StringList{"agent"},
			Columns: ColumnList{
				{ID: "agent", Field: "agentId", Label: "Agent", Type: "string", IsVisible: true},
				{ID: "agent_name", Field: "agent.name", Label: "Agent Name", Type: "string", IsVisible: true},
				{ID: "calls_handled", Field: "id", Label: "Calls Handled", Type: "number", Aggregate: aggPtr(AggregateCount), IsVisible: true},
				{ID: "total_talk", Field: "talkTimeSeconds", Label: "Total Talk Time (s)", Type: "number", Aggregate: aggPtr(AggregateSum), IsVisible: true},
				{ID: "max_duration", Field: "durationSeconds", Label: "Longest Call (s)", Type: "number", Aggregate: aggPtr(AggregateMax), IsVisible: true},
			},
			Groupings:        GroupingList{{Field: "agentId", Label: "Agent"}},
			DateField:        strPtr("createdAt"),
			DefaultDateRange: strPtr("last_7_days"),
			IsPublic:         true,
			IsSystem:         true,
		},
		{
			Name:          "Lead Conversion",
			Description:   strPtr("Lead status distribution per campaign over the last 30 days"),
			EntityType:    EntityTypeLeads,
			PrimaryEntity: "lead",
			Joins:         StringList{"campaign"},
			Columns: ColumnList{
				{ID: "status", Field: "status", Label: "Status", Type: "string", IsVisible: true},
				{ID: "campaign_name", Field: "campaign.name", Label: "Campaign Name", Type: "string", IsVisible: true},
				{ID: "total_leads", Field: "id", Label: "Total Leads", Type: "number", Aggregate: aggPtr(AggregateCount), IsVisible: true},
			},
			Groupings:        GroupingList{{Field: "status", Label: "Status"}},
			DateField:        strPtr("createdAt"),
			DefaultDateRange: strPtr("last_30_days"),
			IsPublic:         true,
			IsSystem:         true,
		},
	}
}

// SeedSystemReports creates any missing built-in reports. Reports already
// present by name are left untouched, so reruns are safe.
func (s *Service) SeedSystemReports(ctx context.Context) error {
	for _, def := range systemReports() {
		_, err := s.repo.GetSystemDefinitionByName(ctx, def.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		def.ID = uuid.New()
		def.CreatedAt = now
		def.UpdatedAt = now
		if _, err := BuildPlan(def, PlanOptions{}); err != nil {
			return err
		}
		if err := s.repo.CreateDefinition(ctx, def); err != nil {
			return err
		}
		s.logger.Info("seeded system report", zap.String("name", def.Name))
	}
	return nil
}
