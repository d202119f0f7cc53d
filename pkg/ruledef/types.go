// Package ruledef defines the serializable file format for rule and
// workflow definitions. It is shared by the CLI, the export/import seam,
// and the snapshot store.
package ruledef

import "time"

// ActionRecord is the serializable form of one rule or state action.
type ActionRecord struct {
	Kind   string         `yaml:"kind" json:"kind" validate:"required"`
	Name   string         `yaml:"name" json:"name" validate:"required"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// RuleRecord is the serializable form of one rule. Expression is present
// only for expr rules; func rules serialize as metadata only because a Go
// predicate has no portable representation.
type RuleRecord struct {
	ID          string            `yaml:"id" json:"id" validate:"required"`
	Name        string            `yaml:"name" json:"name" validate:"required"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string            `yaml:"category,omitempty" json:"category,omitempty"`
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Version     int               `yaml:"version" json:"version"`
	Kind        string            `yaml:"kind" json:"kind" validate:"required,oneof=expr func"`
	Expression  string            `yaml:"expression,omitempty" json:"expression,omitempty"`
	Actions     []ActionRecord    `yaml:"actions,omitempty" json:"actions,omitempty" validate:"dive"`
	Metadata    map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ConditionRecord is the serializable form of a transition condition.
type ConditionRecord struct {
	Kind    string `yaml:"kind" json:"kind" validate:"required,oneof=always rule time event"`
	RuleID  string `yaml:"rule_id,omitempty" json:"rule_id,omitempty"`
	DelayMs int64  `yaml:"delay_ms,omitempty" json:"delay_ms,omitempty"`
	Event   string `yaml:"event,omitempty" json:"event,omitempty"`
}

// StateRecord is the serializable form of one workflow state.
type StateRecord struct {
	ID            string         `yaml:"id" json:"id" validate:"required"`
	Name          string         `yaml:"name,omitempty" json:"name,omitempty"`
	Type          string         `yaml:"type" json:"type" validate:"required,oneof=initial normal decision terminal error"`
	TimeoutMs     int64          `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	TimeoutTarget string         `yaml:"timeout_target,omitempty" json:"timeout_target,omitempty"`
	EntryActions  []ActionRecord `yaml:"entry_actions,omitempty" json:"entry_actions,omitempty" validate:"dive"`
	ExitActions   []ActionRecord `yaml:"exit_actions,omitempty" json:"exit_actions,omitempty" validate:"dive"`
}

// TransitionRecord is the serializable form of one workflow transition.
type TransitionRecord struct {
	ID        string          `yaml:"id" json:"id" validate:"required"`
	From      string          `yaml:"from" json:"from" validate:"required"`
	To        string          `yaml:"to" json:"to" validate:"required"`
	Priority  int             `yaml:"priority,omitempty" json:"priority,omitempty"`
	Condition ConditionRecord `yaml:"condition" json:"condition"`
}

// WorkflowRecord is the serializable form of one workflow definition.
type WorkflowRecord struct {
	ID          string             `yaml:"id" json:"id" validate:"required"`
	Name        string             `yaml:"name" json:"name" validate:"required"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Version     int                `yaml:"version" json:"version"`
	States      []StateRecord      `yaml:"states" json:"states" validate:"required,min=1,dive"`
	Transitions []TransitionRecord `yaml:"transitions,omitempty" json:"transitions,omitempty" validate:"dive"`
}

// File is the top-level shape of a definition file.
type File struct {
	Rules     []RuleRecord     `yaml:"rules,omitempty" json:"rules,omitempty" validate:"dive"`
	Workflows []WorkflowRecord `yaml:"workflows,omitempty" json:"workflows,omitempty" validate:"dive"`
}

// ExportSnapshot is the serializable map produced by rule export: the rule
// records plus the export timestamp and count.
type ExportSnapshot struct {
	ExportedAt time.Time    `yaml:"exported_at" json:"exported_at"`
	Count      int          `yaml:"count" json:"count"`
	Rules      []RuleRecord `yaml:"rules" json:"rules"`
}
