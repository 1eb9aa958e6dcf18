package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Step actions
const (
	ActionTransfer = "transfer"
	ActionEnd      = "end"
	ActionNext     = "next"

	// InitialStepKey is where every new session starts
	InitialStepKey = "initial"
)

// BotFlow is an automated menu program bound to one WhatsApp number.
// At most one flow per number is active; the database backs this with a
// partial unique index and the stores deactivate siblings on write.
type BotFlow struct {
	ID               string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name             string         `gorm:"not null" json:"name"`
	WhatsAppNumberID string         `gorm:"column:whatsapp_number_id;type:varchar(36);index;not null" json:"whatsapp_number_id"`
	InitialMessage   string         `gorm:"type:text" json:"initial_message"`
	MenuSteps        datatypes.JSON `gorm:"type:jsonb" json:"menu_steps"`
	IsActive         bool           `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	Sessions []BotSession `gorm:"foreignKey:BotFlowID;constraint:OnDelete:CASCADE" json:"-"`
}

// MenuStep is one node of a flow, identified by its key
type MenuStep struct {
	Key      string       `json:"key"`
	Message  string       `json:"message"`
	Action   string       `json:"action,omitempty"`
	NextStep string       `json:"nextStep,omitempty"`
	Options  []MenuOption `json:"options,omitempty"`
}

type MenuOption struct {
	Key      string `json:"key"`
	Text     string `json:"text"`
	Action   string `json:"action,omitempty"`
	NextStep string `json:"nextStep,omitempty"`
}

func (f *BotFlow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// Steps decodes the stored menu steps
func (f *BotFlow) Steps() ([]MenuStep, error) {
	if len(f.MenuSteps) == 0 {
		return nil, nil
	}
	var steps []MenuStep
	if err := json.Unmarshal(f.MenuSteps, &steps); err != nil {
		return nil, fmt.Errorf("decode menu steps of flow %s: %w", f.ID, err)
	}
	return steps, nil
}

// SetSteps encodes steps into the jsonb column
func (f *BotFlow) SetSteps(steps []MenuStep) error {
	if steps == nil {
		steps = []MenuStep{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return err
	}
	f.MenuSteps = datatypes.JSON(raw)
	return nil
}

// FindStep returns the step with the given key
func FindStep(steps []MenuStep, key string) (*MenuStep, bool) {
	for i := range steps {
		if steps[i].Key == key {
			return &steps[i], true
		}
	}
	return nil, false
}

// ValidateSteps checks key uniqueness and action names
func ValidateSteps(steps []MenuStep) error {
	seen := make(map[string]bool, len(steps))
	for _, step := range steps {
		if step.Key == "" {
			return fmt.Errorf("menu step without key")
		}
		if seen[step.Key] {
			return fmt.Errorf("duplicate menu step key %q", step.Key)
		}
		seen[step.Key] = true
		if !validAction(step.Action) {
			return fmt.Errorf("step %q: unknown action %q", step.Key, step.Action)
		}
		for _, opt := range step.Options {
			if opt.Key == "" {
				return fmt.Errorf("step %q: option without key", step.Key)
			}
			if !validAction(opt.Action) {
				return fmt.Errorf("step %q option %q: unknown action %q", step.Key, opt.Key, opt.Action)
			}
		}
	}
	return nil
}

func validAction(action string) bool {
	switch action {
	case "", ActionTransfer, ActionEnd, ActionNext:
		return true
	}
	return false
}
