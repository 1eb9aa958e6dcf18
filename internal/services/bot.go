package services

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"github.com/Ananth-NQI/whatsrelay-backend/internal/storage"
)

// BotResult tells the router what happened to an inbound message
type BotResult struct {
	Handled                  bool `json:"handled"`
	ShouldTransferToChatwoot bool `json:"shouldTransferToChatwoot"`
}

var (
	handledByBot    = BotResult{Handled: true}
	handedToHuman   = BotResult{Handled: true, ShouldTransferToChatwoot: true}
	notHandledByBot = BotResult{ShouldTransferToChatwoot: true}
)

// ConversationResolver is the slice of the inbox client the bot needs
type ConversationResolver interface {
	FindOrCreateConversation(phone string, inboxID int, contactName string) (int, error)
	SendMessage(conversationID int, content string, private bool) (*Message, error)
}

// BotEngine runs menu flows against inbound messages
type BotEngine struct {
	store          storage.Store
	sessions       *SessionManager
	gateways       GatewayFactory
	inbox          ConversationResolver
	audit          *Auditor
	goodbyeMessage string
}

// NewBotEngine wires the engine's collaborators
func NewBotEngine(store storage.Store, sessions *SessionManager, gateways GatewayFactory, inbox ConversationResolver, audit *Auditor, goodbyeMessage string) *BotEngine {
	return &BotEngine{
		store:          store,
		sessions:       sessions,
		gateways:       gateways,
		inbox:          inbox,
		audit:          audit,
		goodbyeMessage: goodbyeMessage,
	}
}

// ProcessMessage advances the number's active flow for phone. It never
// fails: any internal error hands the message to a human.
func (e *BotEngine) ProcessMessage(phone, text, numberID, instanceID, token string) (result BotResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Bot engine panic for %s: %v", phone, r)
			result = notHandledByBot
		}
	}()

	result, err := e.process(phone, text, numberID, instanceID, token)
	if err != nil {
		log.Printf("❌ Bot engine error for %s: %v", phone, err)
		return notHandledByBot
	}
	return result
}

func (e *BotEngine) process(phone, text, numberID, instanceID, token string) (BotResult, error) {
	flow, err := e.store.GetActiveFlow(numberID)
	if errors.Is(err, storage.ErrNotFound) {
		return notHandledByBot, nil
	}
	if err != nil {
		return notHandledByBot, fmt.Errorf("load active flow: %w", err)
	}
	steps, err := flow.Steps()
	if err != nil {
		return notHandledByBot, err
	}

	unlock := e.sessions.Lock(phone, flow.ID)
	defer unlock()

	session, _, err := e.sessions.GetOrCreate(phone, flow.ID)
	if err != nil {
		return notHandledByBot, err
	}

	step := resolveStep(steps, session.CurrentStep)
	if step == nil {
		return notHandledByBot, fmt.Errorf("%w: flow %s has no usable step", ErrStepNotFound, flow.ID)
	}

	number, err := e.store.GetNumber(numberID)
	if err != nil {
		return notHandledByBot, fmt.Errorf("load number %s: %w", numberID, err)
	}
	gateway, err := e.gatewayFor(number, instanceID, token)
	if err != nil {
		return notHandledByBot, err
	}

	t := &turn{engine: e, flow: flow, steps: steps, session: session, step: step, number: number, phone: phone, gateway: gateway}

	if len(step.Options) > 0 {
		option := matchOption(step.Options, text)
		if option == nil {
			// unknown answer: show the menu again
			if err := t.sendStep(step); err != nil {
				return notHandledByBot, err
			}
			return handledByBot, nil
		}
		return t.apply(option.Action, option.NextStep, true)
	}
	return t.apply(step.Action, step.NextStep, false)
}

// gatewayFor prefers the credentials the caller resolved for Z-API numbers
// and the stored provider for everything else.
func (e *BotEngine) gatewayFor(number *models.WhatsAppNumber, instanceID, token string) (Gateway, error) {
	if number.Provider == "" || number.Provider == models.ProviderZAPI {
		if instanceID == "" {
			instanceID = number.InstanceID
		}
		if token == "" {
			token = number.Token
		}
		return e.gateways.ForCredentials(instanceID, token)
	}
	return e.gateways.ForNumber(number)
}

// turn carries the state of one ProcessMessage call
type turn struct {
	engine  *BotEngine
	flow    *models.BotFlow
	steps   []models.MenuStep
	session *models.BotSession
	step    *models.MenuStep
	number  *models.WhatsAppNumber
	phone   string
	gateway Gateway
}

// apply executes an action/nextStep pair from a matched option or from a
// step without options.
func (t *turn) apply(action, nextStep string, fromOption bool) (BotResult, error) {
	switch {
	case action == models.ActionTransfer || nextStep == models.ActionTransfer:
		if err := t.engine.transfer(t.session, t.step.Key, t.number, t.phone); err != nil {
			log.Printf("❌ Bot transfer for %s failed: %v", t.phone, err)
		}
		return handedToHuman, nil

	case action == models.ActionEnd:
		if err := t.engine.sessions.End(t.session); err != nil {
			return notHandledByBot, fmt.Errorf("end session: %w", err)
		}
		if fromOption && t.engine.goodbyeMessage != "" {
			if err := t.gateway.SendText(t.phone, t.engine.goodbyeMessage); err != nil {
				log.Printf("⚠️  Goodbye message to %s failed: %v", t.phone, err)
			}
		}
		return handledByBot, nil

	case nextStep != "":
		target, ok := models.FindStep(t.steps, nextStep)
		if !ok {
			return notHandledByBot, fmt.Errorf("%w: step %q points to missing step %q in flow %s",
				ErrStepNotFound, t.step.Key, nextStep, t.flow.ID)
		}
		if err := t.sendStep(target); err != nil {
			return notHandledByBot, err
		}
		if err := t.engine.sessions.Advance(t.session, target.Key); err != nil {
			return notHandledByBot, fmt.Errorf("advance session: %w", err)
		}
		return handledByBot, nil
	}
	return notHandledByBot, nil
}

func (t *turn) sendStep(step *models.MenuStep) error {
	if err := t.gateway.SendText(t.phone, RenderStep(step)); err != nil {
		return fmt.Errorf("send step %q: %w", step.Key, err)
	}
	return nil
}

// transfer hands the session to a human: it resolves the conversation in
// the number's inbox, closes the session and leaves a private note.
func (e *BotEngine) transfer(session *models.BotSession, stepKey string, number *models.WhatsAppNumber, phone string) error {
	if number == nil || number.InboxID == nil {
		return fmt.Errorf("%w: number has no inbox to transfer to", ErrNoInbox)
	}
	conversationID, err := e.inbox.FindOrCreateConversation(phone, *number.InboxID, "")
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}
	if err := e.sessions.Handoff(session, conversationID); err != nil {
		return fmt.Errorf("close session: %w", err)
	}

	note := fmt.Sprintf("🤖 Conversa transferida do bot. Cliente estava no step: %s", stepKey)
	if _, err := e.inbox.SendMessage(conversationID, note, true); err != nil {
		log.Printf("⚠️  Transfer note on conversation %d failed: %v", conversationID, err)
	}

	e.audit.Record("", models.ActionBotTransfer, strconv.Itoa(conversationID), map[string]any{
		"phone":     phone,
		"sessionId": session.ID,
		"step":      stepKey,
	})
	log.Printf("🙋 Session %s for %s transferred to conversation %d", session.ID, phone, conversationID)
	return nil
}

// StartSession opens (or reuses) a session and sends the flow's first prompt
func (e *BotEngine) StartSession(phone, flowID string) (*models.BotSession, error) {
	flow, err := e.store.GetFlow(flowID)
	if err != nil {
		return nil, err
	}
	if !flow.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrFlowInactive, flowID)
	}
	number, err := e.store.GetNumber(flow.WhatsAppNumberID)
	if err != nil {
		return nil, fmt.Errorf("load number: %w", err)
	}
	steps, err := flow.Steps()
	if err != nil {
		return nil, err
	}
	gateway, err := e.gatewayFor(number, "", "")
	if err != nil {
		return nil, err
	}

	unlock := e.sessions.Lock(phone, flow.ID)
	defer unlock()

	session, _, err := e.sessions.GetOrCreate(phone, flow.ID)
	if err != nil {
		return nil, err
	}

	if step := resolveStep(steps, models.InitialStepKey); step != nil {
		err = gateway.SendText(phone, RenderStep(step))
	} else if flow.InitialMessage != "" {
		err = gateway.SendText(phone, flow.InitialMessage)
	}
	if err != nil {
		return session, fmt.Errorf("send initial prompt: %w", err)
	}
	return session, nil
}

// EndSession deactivates a session
func (e *BotEngine) EndSession(sessionID string) error {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return err
	}
	return e.sessions.End(session)
}

// TransferSession hands an active session to a human on request
func (e *BotEngine) TransferSession(sessionID string) (*models.BotSession, error) {
	session, err := e.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionInactive, sessionID)
	}
	flow, err := e.store.GetFlow(session.BotFlowID)
	if err != nil {
		return nil, fmt.Errorf("load flow: %w", err)
	}
	number, err := e.store.GetNumber(flow.WhatsAppNumberID)
	if err != nil {
		return nil, fmt.Errorf("load number: %w", err)
	}

	unlock := e.sessions.Lock(session.PhoneNumber, flow.ID)
	defer unlock()

	if err := e.transfer(session, session.CurrentStep, number, session.PhoneNumber); err != nil {
		return nil, err
	}
	return session, nil
}

// resolveStep finds key, falling back to "initial" and then the first step
func resolveStep(steps []models.MenuStep, key string) *models.MenuStep {
	if step, ok := models.FindStep(steps, key); ok {
		return step
	}
	if step, ok := models.FindStep(steps, models.InitialStepKey); ok {
		return step
	}
	if len(steps) > 0 {
		return &steps[0]
	}
	return nil
}

// matchOption returns the first option, in declaration order, whose key
// equals the input, whose text contains it, or whose key the input contains.
// Blank input matches nothing, so the caller shows the menu again.
func matchOption(options []models.MenuOption, text string) *models.MenuOption {
	input := strings.ToLower(strings.TrimSpace(text))
	if input == "" {
		return nil
	}
	for i := range options {
		key := strings.ToLower(strings.TrimSpace(options[i].Key))
		label := strings.ToLower(options[i].Text)
		if key == "" {
			continue
		}
		if key == input || strings.Contains(label, input) || strings.Contains(input, key) {
			return &options[i]
		}
	}
	return nil
}

// RenderStep formats a step prompt followed by its "key - text" menu lines
func RenderStep(step *models.MenuStep) string {
	if len(step.Options) == 0 {
		return step.Message
	}
	lines := make([]string, 0, len(step.Options))
	for _, opt := range step.Options {
		lines = append(lines, opt.Key+" - "+opt.Text)
	}
	return step.Message + "\n\n" + strings.Join(lines, "\n")
}
