package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/durapensa/ksi-go/pkg/ksi/eventlog"
	"github.com/durapensa/ksi-go/pkg/ksi/observe"
	"github.com/durapensa/ksi-go/pkg/ksi/routing"
)

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("malformed request data: %w", err)
	}
	return v, nil
}

func (s *Server) handleRegister(c *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		AgentID string `json:"agent_id"`
	}](data)
	if err != nil {
		return nil, err
	}
	if req.AgentID == "" {
		return nil, errors.New("agent_id is required")
	}
	s.bindAgent(c, req.AgentID)
	return map[string]any{"registered": true, "agent_id": req.AgentID}, nil
}

func (s *Server) handleHealth(_ *conn, _ json.RawMessage) (map[string]any, error) {
	return s.engine.Health(), nil
}

func (s *Server) handleSubscribe(c *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		Observer string         `json:"observer"`
		Target   string         `json:"target"`
		Events   []string       `json:"events"`
		Filter   observe.Filter `json:"filter"`
	}](data)
	if err != nil {
		return nil, err
	}
	if req.Observer == "" {
		// An observer that registered its connection may omit the
		// field.
		req.Observer = c.agent()
	}

	rec, err := s.engine.Subscriptions().Subscribe(req.Observer, req.Target, req.Events, req.Filter)
	if err != nil {
		return nil, err
	}
	return map[string]any{"subscription_id": rec.SubscriptionID}, nil
}

func (s *Server) handleList(_ *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		Observer string `json:"observer"`
	}](data)
	if err != nil {
		return nil, err
	}

	recs := s.engine.Subscriptions().List(req.Observer)
	return map[string]any{"count": len(recs), "subscriptions": recs}, nil
}

func (s *Server) handleUnsubscribe(_ *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		SubscriptionID string `json:"subscription_id"`
	}](data)
	if err != nil {
		return nil, err
	}
	if req.SubscriptionID == "" {
		return nil, errors.New("subscription_id is required")
	}

	removed := s.engine.Subscriptions().Unsubscribe(req.SubscriptionID)
	return map[string]any{"removed": removed}, nil
}

func (s *Server) handleQuery(_ *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		Target      string   `json:"target"`
		Events      []string `json:"events"`
		Since       string   `json:"since"`
		Limit       int      `json:"limit"`
		OldestFirst bool     `json:"oldest_first"`
	}](data)
	if err != nil {
		return nil, err
	}

	q := eventlog.Query{
		Target:      req.Target,
		Patterns:    req.Events,
		Limit:       req.Limit,
		OldestFirst: req.OldestFirst,
	}
	if req.Since != "" {
		since, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			return nil, fmt.Errorf("malformed since timestamp: %w", err)
		}
		q.Since = since
	}

	events, err := s.engine.Query(context.Background(), q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"count": len(events), "events": events}, nil
}

func (s *Server) handleAddRule(_ *conn, data json.RawMessage) (map[string]any, error) {
	rule, err := decode[routing.Rule](data)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Rules().Add(rule); err != nil {
		return nil, err
	}
	return map[string]any{"added": rule.Name}, nil
}

func (s *Server) handleRemoveRule(_ *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		Name string `json:"name"`
	}](data)
	if err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	return map[string]any{"removed": s.engine.Rules().Remove(req.Name)}, nil
}

func (s *Server) handleQueryRules(_ *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		SourcePattern string `json:"source_pattern"`
	}](data)
	if err != nil {
		return nil, err
	}

	rules := s.engine.Rules().Rules(req.SourcePattern)
	return map[string]any{"count": len(rules), "rules": rules}, nil
}

func (s *Server) handleCheckpointCreate(_ *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		Reason string `json:"reason"`
	}](data)
	if err != nil {
		return nil, err
	}

	cp, err := s.engine.CreateCheckpoint(context.Background(), req.Reason)
	if err != nil {
		return nil, err
	}
	return map[string]any{"checkpoint_id": cp.CheckpointID}, nil
}

func (s *Server) handleAgentTerminated(_ *conn, data json.RawMessage) (map[string]any, error) {
	req, err := decode[struct {
		AgentID string `json:"agent_id"`
	}](data)
	if err != nil {
		return nil, err
	}
	if req.AgentID == "" {
		return nil, errors.New("agent_id is required")
	}

	removed := s.engine.OnActorTerminated(req.AgentID)
	return map[string]any{"subscriptions_removed": removed}, nil
}
