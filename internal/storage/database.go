package storage

import (
	"errors"
	"strings"

	"github.com/Ananth-NQI/whatsrelay-backend/internal/models"
	"gorm.io/gorm"
)

// DatabaseStore implements Store on PostgreSQL through gorm
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by an open gorm connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// WhatsApp numbers

func (d *DatabaseStore) CreateNumber(number *models.WhatsAppNumber) (*models.WhatsAppNumber, error) {
	if err := d.db.Create(number).Error; err != nil {
		return nil, translate(err)
	}
	return number, nil
}

func (d *DatabaseStore) GetNumber(id string) (*models.WhatsAppNumber, error) {
	var number models.WhatsAppNumber
	if err := d.db.First(&number, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &number, nil
}

func (d *DatabaseStore) GetNumberByInstanceID(instanceID string) (*models.WhatsAppNumber, error) {
	var number models.WhatsAppNumber
	if err := d.db.Where("instance_id = ?", instanceID).First(&number).Error; err != nil {
		return nil, translate(err)
	}
	return &number, nil
}

func (d *DatabaseStore) GetNumberByInboxID(inboxID int) (*models.WhatsAppNumber, error) {
	var number models.WhatsAppNumber
	if err := d.db.Where("inbox_id = ?", inboxID).Order("created_at").First(&number).Error; err != nil {
		return nil, translate(err)
	}
	return &number, nil
}

func (d *DatabaseStore) GetFirstConnectedNumber() (*models.WhatsAppNumber, error) {
	var number models.WhatsAppNumber
	if err := d.db.Where("is_connected = ?", true).Order("created_at").First(&number).Error; err != nil {
		return nil, translate(err)
	}
	return &number, nil
}

func (d *DatabaseStore) GetFirstNumber() (*models.WhatsAppNumber, error) {
	var number models.WhatsAppNumber
	if err := d.db.Order("created_at").First(&number).Error; err != nil {
		return nil, translate(err)
	}
	return &number, nil
}

func (d *DatabaseStore) ListNumbers() ([]*models.WhatsAppNumber, error) {
	var numbers []*models.WhatsAppNumber
	if err := d.db.Order("created_at").Find(&numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func (d *DatabaseStore) UpdateNumber(number *models.WhatsAppNumber) error {
	result := d.db.Model(number).Select("*").Omit("id", "created_at").Updates(number)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DatabaseStore) DeleteNumber(id string) error {
	result := d.db.Delete(&models.WhatsAppNumber{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Bot flows

func (d *DatabaseStore) CreateFlow(flow *models.BotFlow) (*models.BotFlow, error) {
	err := d.db.Transaction(func(tx *gorm.DB) error {
		if flow.IsActive {
			if err := deactivateSiblings(tx, flow.WhatsAppNumberID, flow.ID); err != nil {
				return err
			}
		}
		// Select("*") keeps an explicit is_active=false over the column default
		return tx.Select("*").Create(flow).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return flow, nil
}

func (d *DatabaseStore) GetFlow(id string) (*models.BotFlow, error) {
	var flow models.BotFlow
	if err := d.db.First(&flow, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &flow, nil
}

func (d *DatabaseStore) GetActiveFlow(numberID string) (*models.BotFlow, error) {
	var flow models.BotFlow
	err := d.db.Where("whatsapp_number_id = ? AND is_active = ?", numberID, true).
		Order("created_at").
		First(&flow).Error
	if err != nil {
		return nil, translate(err)
	}
	return &flow, nil
}

func (d *DatabaseStore) ListFlows(numberID string) ([]*models.BotFlow, error) {
	query := d.db.Order("created_at DESC")
	if numberID != "" {
		query = query.Where("whatsapp_number_id = ?", numberID)
	}
	var flows []*models.BotFlow
	if err := query.Find(&flows).Error; err != nil {
		return nil, err
	}
	return flows, nil
}

func (d *DatabaseStore) UpdateFlow(flow *models.BotFlow) error {
	return translate(d.db.Transaction(func(tx *gorm.DB) error {
		if flow.IsActive {
			if err := deactivateSiblings(tx, flow.WhatsAppNumberID, flow.ID); err != nil {
				return err
			}
		}
		result := tx.Model(flow).Select("*").Omit("id", "created_at").Updates(flow)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	}))
}

func deactivateSiblings(tx *gorm.DB, numberID, keepID string) error {
	query := tx.Model(&models.BotFlow{}).Where("whatsapp_number_id = ? AND is_active = ?", numberID, true)
	if keepID != "" {
		query = query.Where("id <> ?", keepID)
	}
	return query.Update("is_active", false).Error
}

func (d *DatabaseStore) DeleteFlow(id string) error {
	result := d.db.Delete(&models.BotFlow{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Bot sessions

func (d *DatabaseStore) CreateSession(session *models.BotSession) (*models.BotSession, error) {
	if err := d.db.Create(session).Error; err != nil {
		return nil, translate(err)
	}
	return session, nil
}

func (d *DatabaseStore) GetSession(id string) (*models.BotSession, error) {
	var session models.BotSession
	if err := d.db.First(&session, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (d *DatabaseStore) GetActiveSession(phone, flowID string) (*models.BotSession, error) {
	var session models.BotSession
	err := d.db.Where("phone_number = ? AND bot_flow_id = ? AND is_active = ?", phone, flowID, true).
		First(&session).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (d *DatabaseStore) ListSessions(filter SessionFilter) ([]*models.BotSession, error) {
	query := d.db.Model(&models.BotSession{}).Order("bot_sessions.updated_at DESC")
	if filter.BotFlowID != "" {
		query = query.Where("bot_sessions.bot_flow_id = ?", filter.BotFlowID)
	}
	if filter.PhoneNumber != "" {
		query = query.Where("bot_sessions.phone_number = ?", filter.PhoneNumber)
	}
	if filter.IsActive != nil {
		query = query.Where("bot_sessions.is_active = ?", *filter.IsActive)
	}
	if filter.WhatsAppNumberID != "" {
		query = query.Joins("JOIN bot_flows ON bot_flows.id = bot_sessions.bot_flow_id").
			Where("bot_flows.whatsapp_number_id = ?", filter.WhatsAppNumberID)
	}
	var sessions []*models.BotSession
	if err := query.Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (d *DatabaseStore) UpdateSession(session *models.BotSession) error {
	result := d.db.Model(session).Select("*").Omit("id", "created_at").Updates(session)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Audit log

func (d *DatabaseStore) CreateAuditLog(entry *models.AuditLog) error {
	return d.db.Create(entry).Error
}

func (d *DatabaseStore) ListAuditLogs(filter AuditFilter) ([]*models.AuditLog, int64, error) {
	query := d.db.Model(&models.AuditLog{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ConversationID != "" {
		query = query.Where("conversation_id = ?", filter.ConversationID)
	}
	if filter.Action != "" {
		query = query.Where("action LIKE ?", "%"+escapeLike(filter.Action)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []*models.AuditLog
	page := query.Order("timestamp DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	if err := page.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Users

func (d *DatabaseStore) CreateUser(user *models.User) (*models.User, error) {
	user.Email = strings.ToLower(user.Email)
	if err := d.db.Select("*").Create(user).Error; err != nil {
		return nil, translate(err)
	}
	return user, nil
}

func (d *DatabaseStore) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := d.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *DatabaseStore) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := d.db.Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (d *DatabaseStore) ListUsers() ([]*models.User, error) {
	var users []*models.User
	if err := d.db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (d *DatabaseStore) UpdateUser(user *models.User) error {
	user.Email = strings.ToLower(user.Email)
	result := d.db.Model(user).Select("*").Omit("id", "created_at").Updates(user)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
