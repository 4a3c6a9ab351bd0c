package ruleengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/eventbus"
	"github.com/relaycore/core/internal/metrics"
	"github.com/relaycore/core/internal/repository"
	"github.com/relaycore/core/internal/suggestion"
)

// defaultCooldownSeconds gates a rule's re-firing when its own
// CooldownSeconds column is unset (0).
const defaultCooldownSeconds = 60

// actionConfig is the JSON shape of ProactiveRule.ActionConfig.
type actionConfig struct {
	SuggestionType string  `json:"suggestion_type"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Confidence     float64 `json:"confidence"`
	Priority       int     `json:"priority"`
	ExpiryHours    int     `json:"expiry_hours"`
}

// Engine is the long-running consumer that subscribes to every org/board
// event channel and evaluates enabled ProactiveRules against each event.
type Engine struct {
	rules       repository.ProactiveRuleRepository
	suggestions *suggestion.Service
	bus         *eventbus.Bus
	logger      *zap.Logger
}

// New creates an Engine.
func New(rules repository.ProactiveRuleRepository, suggestions *suggestion.Service, bus *eventbus.Bus, logger *zap.Logger) *Engine {
	return &Engine{rules: rules, suggestions: suggestions, bus: bus, logger: logger.Named("ruleengine")}
}

// Run subscribes to the event bus and evaluates rules for each event until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("starting")
	err := e.bus.SubscribeEvents(ctx, func(event eventbus.SystemEvent) {
		e.handleEvent(ctx, event)
	})
	e.logger.Info("stopped")
	return err
}

func (e *Engine) handleEvent(ctx context.Context, event eventbus.SystemEvent) {
	rules, err := e.rules.ListEnabledByTrigger(ctx, event.EventType)
	if err != nil {
		e.logger.Error("loading matching rules failed", zap.Error(err), zap.String("event_type", event.EventType))
		return
	}

	var payload map[string]any
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			e.logger.Warn("decoding event payload failed", zap.Error(err), zap.String("event_type", event.EventType))
			return
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}

	for _, rule := range rules {
		if rule.OrganizationID != event.OrganizationID {
			continue
		}
		// Run each rule's evaluation independently so one bad rule never
		// stalls the consumer or prevents other rules from firing.
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("rule evaluation panicked", zap.Any("recover", r), zap.String("rule", rule.Name))
				}
			}()
			e.evaluateRule(ctx, rule, event, payload)
		}()
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule db.ProactiveRule, event eventbus.SystemEvent, payload map[string]any) {
	cooldown := time.Duration(rule.CooldownSeconds) * time.Second
	if cooldown <= 0 {
		cooldown = defaultCooldownSeconds * time.Second
	}
	if rule.LastFiredAt != nil && time.Since(*rule.LastFiredAt) < cooldown {
		return
	}

	var tree ConditionTree
	if len(rule.Conditions) > 0 {
		if err := json.Unmarshal([]byte(rule.Conditions), &tree); err != nil {
			e.logger.Warn("decoding rule conditions failed", zap.Error(err), zap.String("rule", rule.Name))
			return
		}
	}
	if !Evaluate(tree, payload) {
		return
	}

	var cfg actionConfig
	if len(rule.ActionConfig) > 0 {
		if err := json.Unmarshal([]byte(rule.ActionConfig), &cfg); err != nil {
			e.logger.Warn("decoding rule action_config failed", zap.Error(err), zap.String("rule", rule.Name))
			return
		}
	}
	if cfg.SuggestionType == "" {
		cfg.SuggestionType = rule.ActionType
	}
	if cfg.Title == "" {
		cfg.Title = fmt.Sprintf("[%s] triggered by %s", rule.Name, event.EventType)
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = 0.7
	}

	_, err := e.suggestions.Create(ctx, suggestion.CreateParams{
		OrganizationID: event.OrganizationID,
		BoardID:        event.BoardID,
		AgentID:        event.AgentID,
		RuleID:         rule.ID,
		SourceEventID:  event.EventID,
		SuggestionType: cfg.SuggestionType,
		Title:          cfg.Title,
		Description:    cfg.Description,
		Confidence:     cfg.Confidence,
		Priority:       cfg.Priority,
		ExpiryHours:    cfg.ExpiryHours,
	})
	if err != nil {
		e.logger.Error("creating suggestion failed", zap.Error(err), zap.String("rule", rule.Name))
		return
	}

	now := time.Now()
	if err := e.rules.SetLastFiredAt(ctx, rule.ID, now); err != nil {
		e.logger.Error("marking rule fired failed", zap.Error(err), zap.String("rule", rule.Name))
	}

	metrics.RulesFired.WithLabelValues(rule.TriggerEvent).Inc()
	e.logger.Info("suggestion created", zap.String("rule", rule.Name), zap.String("event_type", event.EventType))
}
