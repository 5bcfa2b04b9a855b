package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.MFASecret{},
		&models.Session{},
		&models.UserToken{},
		&models.Organization{},
		&models.Role{},
		&models.Membership{},
		&models.Team{},
		&models.Invitation{},
		&models.Subscription{},
		&models.AuditLog{},
		&models.Notification{},
		&models.CacheEntry{},
		&models.Tag{},
		&models.Company{},
		&models.Contact{},
		&models.Lead{},
		&models.OpportunityStage{},
		&models.Opportunity{},
		&models.OpportunityLineItem{},
		&models.Task{},
		&models.Activity{},
		&models.EmailTemplate{},
		&models.Email{},
		&models.EmailCampaign{},
		&models.CustomField{},
		&models.Report{},
		&models.ScheduledReport{},
		&models.Webhook{},
		&models.IntegrationKey{},
		&models.DashboardWidget{},
		&models.LayoutConfiguration{},
	}
}

// compositeIndex describes a unique index spanning the embedded organization column,
// which struct tags on a shared embedded type cannot express per model.
type compositeIndex struct {
	model   any
	name    string
	columns []string
}

var tenantUniqueIndexes = []compositeIndex{
	{&models.Tag{}, "idx_tags_org_name", []string{"organization_id", "name"}},
	{&models.EmailTemplate{}, "idx_email_templates_org_name", []string{"organization_id", "name"}},
	{&models.CustomField{}, "idx_custom_fields_org_entity_field", []string{"organization_id", "entity_type", "field_name"}},
	{&models.LayoutConfiguration{}, "idx_layouts_org_user_page_default", []string{"organization_id", "user_id", "page_type", "is_default"}},
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return ensureUniqueIndexes(db, tenantUniqueIndexes)
}

func ensureUniqueIndexes(db *gorm.DB, indexes []compositeIndex) error {
	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.model, idx.name) {
			continue
		}

		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(idx.model); err != nil {
			return fmt.Errorf("parse %T: %w", idx.model, err)
		}

		sql := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", idx.name, stmt.Schema.Table, strings.Join(idx.columns, ", "))
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}
