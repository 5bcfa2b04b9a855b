package services

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// ContactInput creates or patches a contact. Nil fields are left unchanged on update.
type ContactInput struct {
	FirstName    *string        `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName     *string        `json:"last_name" validate:"omitempty,max=100"`
	Email        *string        `json:"email" validate:"omitempty,email"`
	Phone        *string        `json:"phone" validate:"omitempty,max=20"`
	Mobile       *string        `json:"mobile" validate:"omitempty,max=20"`
	JobTitle     *string        `json:"job_title" validate:"omitempty,max=100"`
	Stage        *string        `json:"stage" validate:"omitempty,oneof=lead prospect customer inactive"`
	Source       *string        `json:"source" validate:"omitempty,oneof=website referral cold_call import api"`
	CompanyID    *string        `json:"company" validate:"omitempty,uuid"`
	OwnerID      *string        `json:"owner" validate:"omitempty,uuid"`
	TagIDs       *[]string      `json:"tags" validate:"omitempty,dive,uuid"`
	CustomFields map[string]any `json:"custom_fields"`
}

func (in ContactInput) updates() map[string]any {
	updates := map[string]any{}
	setString(updates, "first_name", in.FirstName)
	setString(updates, "last_name", in.LastName)
	if in.Email != nil {
		updates["email"] = normaliseEmail(*in.Email)
	}
	setString(updates, "phone", in.Phone)
	setString(updates, "mobile", in.Mobile)
	setString(updates, "job_title", in.JobTitle)
	setString(updates, "stage", in.Stage)
	setString(updates, "source", in.Source)
	setRef(updates, "company_id", in.CompanyID)
	setRef(updates, "owner_id", in.OwnerID)
	if in.CustomFields != nil {
		updates["custom_fields"] = datatypes.JSONMap(in.CustomFields)
	}
	return updates
}

func (in ContactInput) refs() []ReferenceCheck {
	return []ReferenceCheck{
		Ref("company", &models.Company{}, in.CompanyID),
		MemberRef("owner", in.OwnerID),
	}
}

// BulkUpdateContactsInput changes stage or owner of many contacts at once.
type BulkUpdateContactsInput struct {
	IDs   []string `json:"ids" validate:"required,min=1,dive,uuid"`
	Stage *string  `json:"stage" validate:"omitempty,oneof=lead prospect customer inactive"`
	Owner *string  `json:"owner" validate:"omitempty,uuid"`
}

// MergeContactsInput folds secondary into primary.
type MergeContactsInput struct {
	PrimaryID   string `json:"primary_id" validate:"required,uuid"`
	SecondaryID string `json:"secondary_id" validate:"required,uuid"`
}

// DuplicateGroup is a set of contacts sharing one email address.
type DuplicateGroup struct {
	Email    string           `json:"email"`
	Count    int              `json:"count"`
	Contacts []models.Contact `json:"contacts"`
}

var contactListSpec = ListSpec{
	SearchFields: []string{"first_name", "last_name", "email", "phone"},
	Filters: map[string]string{
		"stage":   "stage",
		"source":  "source",
		"owner":   "owner_id",
		"company": "company_id",
	},
	DateFilters:  map[string]string{"created": "created_at"},
	Orderings:    map[string]string{"first_name": "first_name", "last_name": "last_name", "email": "email", "created_at": "created_at", "updated_at": "updated_at"},
	DefaultOrder: "contacts.created_at DESC",
	Preloads:     []string{"Tags"},
	Custom:       tagFilter("contact_tags", "contact_id", "contacts"),
}

// tagFilter restricts a listing to rows carrying any of the "tags" filter ids.
func tagFilter(joinTable, joinColumn, table string) func(*gorm.DB, map[string]string) *gorm.DB {
	return func(query *gorm.DB, filters map[string]string) *gorm.DB {
		ids := splitList(filters["tags"])
		if len(ids) == 0 {
			return query
		}
		sub := query.Session(&gorm.Session{NewDB: true}).
			Table(joinTable).Select(joinColumn).Where("tag_id IN ?", ids)
		return query.Where(table+".id IN (?)", sub)
	}
}

// ContactService manages contacts.
type ContactService struct {
	store *ScopedStore[models.Contact, *models.Contact]
}

// NewContactService constructs a ContactService.
func NewContactService(db *gorm.DB, audit *AuditService) (*ContactService, error) {
	store, err := NewScopedStore[models.Contact](db, audit, "contact", "Contact", contactListSpec)
	if err != nil {
		return nil, err
	}
	return &ContactService{store: store}, nil
}

func (s *ContactService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Contact], error) {
	return s.store.List(ctx, scope, q)
}

func (s *ContactService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Contact, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *ContactService) Create(ctx context.Context, scope tenancy.Scope, input ContactInput) (*models.Contact, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.FirstName == nil || strings.TrimSpace(*input.FirstName) == "" {
		return nil, apperrors.FieldError("first_name", "This field is required.")
	}

	contact := &models.Contact{
		FirstName: strings.TrimSpace(*input.FirstName),
		LastName:  deref(input.LastName),
		Phone:     deref(input.Phone),
		Mobile:    deref(input.Mobile),
		JobTitle:  deref(input.JobTitle),
		Stage:     models.ContactStageLead,
		Source:    deref(input.Source),
		CompanyID: optionalID(input.CompanyID),
		OwnerID:   optionalID(input.OwnerID),
	}
	if input.Email != nil {
		contact.Email = normaliseEmail(*input.Email)
	}
	if input.Stage != nil {
		contact.Stage = *input.Stage
	}
	if input.CustomFields != nil {
		contact.CustomFields = datatypes.JSONMap(input.CustomFields)
	}

	err := s.store.Create(ctx, scope, contact, input.refs(), func(tx *gorm.DB) error {
		if input.TagIDs == nil {
			return nil
		}
		return replaceTags(tx, contact, contact.OrganizationID, *input.TagIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, scope, contact.ID)
}

func (s *ContactService) Update(ctx context.Context, scope tenancy.Scope, id string, input ContactInput) (*models.Contact, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, scope, id, input.updates(), input.refs(), func(tx *gorm.DB, contact *models.Contact) error {
		if input.TagIDs == nil {
			return nil
		}
		return replaceTags(tx, contact, contact.OrganizationID, *input.TagIDs)
	})
}

func (s *ContactService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// AddTags attaches tags of the same organization to a contact.
func (s *ContactService) AddTags(ctx context.Context, scope tenancy.Scope, id string, tagIDs []string) (*models.Contact, error) {
	ctx = ensureContext(ctx)
	contact, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	err = s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := loadTags(tx, contact.OrganizationID, tagIDs)
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			return apperrors.FieldError("tag_ids", "This field is required.")
		}
		return tx.Model(contact).Association("Tags").Append(tags)
	})
	if err != nil {
		return nil, s.store.translate(err, "add tags")
	}
	scopedAudit(s.store.audit, ctx, scope, contact.OrganizationID, "contact.tags.add", contact.ID, map[string]any{"tags": tagIDs})
	return s.store.Get(ctx, scope, id)
}

// RemoveTag detaches one tag from a contact.
func (s *ContactService) RemoveTag(ctx context.Context, scope tenancy.Scope, id, tagID string) (*models.Contact, error) {
	ctx = ensureContext(ctx)
	contact, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.DB().WithContext(ctx).
		Exec("DELETE FROM contact_tags WHERE contact_id = ? AND tag_id = ?", contact.ID, strings.TrimSpace(tagID)).Error; err != nil {
		return nil, s.store.translate(err, "remove tag")
	}
	scopedAudit(s.store.audit, ctx, scope, contact.OrganizationID, "contact.tags.remove", contact.ID, map[string]any{"tag": tagID})
	return s.store.Get(ctx, scope, id)
}

// BulkDelete removes every listed contact visible to scope and returns how many went.
func (s *ContactService) BulkDelete(ctx context.Context, scope tenancy.Scope, ids []string) (int64, error) {
	ctx = ensureContext(ctx)
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return 0, apperrors.FieldError("ids", "This field is required.")
	}
	visible, err := s.visibleIDs(ctx, scope, ids)
	if err != nil || len(visible) == 0 {
		return 0, err
	}

	var deleted int64
	err = s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM contact_tags WHERE contact_id IN ?", visible).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", visible).Delete(&models.Contact{})
		deleted = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, s.store.translate(err, "bulk delete")
	}
	scopedAudit(s.store.audit, ctx, scope, scope.OrganizationID(), "contact.bulk_delete", "", map[string]any{"ids": visible})
	return deleted, nil
}

// BulkUpdate applies stage and owner changes to every listed contact visible to scope.
func (s *ContactService) BulkUpdate(ctx context.Context, scope tenancy.Scope, input BulkUpdateContactsInput) (int64, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return 0, err
	}
	updates := map[string]any{}
	setString(updates, "stage", input.Stage)
	setRef(updates, "owner_id", input.Owner)
	if len(updates) == 0 {
		return 0, apperrors.FieldError("data", "Nothing to update.")
	}

	var contacts []models.Contact
	query, ok := s.store.Scoped(ctx, scope)
	if !ok {
		return 0, nil
	}
	if err := query.Where("contacts.id IN ?", normaliseIDs(input.IDs)).Find(&contacts).Error; err != nil {
		return 0, s.store.translate(err, "bulk update")
	}

	var updated int64
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range contacts {
			if err := checkReferences(tx, contacts[i].OrganizationID, MemberRef("owner", input.Owner)); err != nil {
				return err
			}
			result := tx.Model(&contacts[i]).Updates(updates)
			if result.Error != nil {
				return result.Error
			}
			updated += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, s.store.translate(err, "bulk update")
	}
	scopedAudit(s.store.audit, ctx, scope, scope.OrganizationID(), "contact.bulk_update", "", map[string]any{"ids": input.IDs})
	return updated, nil
}

// Merge moves tags, tasks, activities, opportunities and emails of the secondary
// contact to the primary and deletes the secondary.
func (s *ContactService) Merge(ctx context.Context, scope tenancy.Scope, input MergeContactsInput) (*models.Contact, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.PrimaryID == input.SecondaryID {
		return nil, apperrors.FieldError("secondary_id", "Cannot merge a contact with itself.")
	}
	primary, err := s.store.Get(ctx, scope, input.PrimaryID)
	if err != nil {
		return nil, err
	}
	secondary, err := s.store.Get(ctx, scope, input.SecondaryID)
	if err != nil {
		return nil, err
	}
	if primary.OrganizationID != secondary.OrganizationID {
		return nil, apperrors.FieldError("secondary_id", "Must belong to the same organization.")
	}

	err = s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(secondary.Tags) > 0 {
			if err := tx.Model(primary).Association("Tags").Append(secondary.Tags); err != nil {
				return err
			}
		}
		for _, model := range []any{&models.Task{}, &models.Activity{}, &models.Opportunity{}, &models.Email{}} {
			if err := tx.Model(model).Where("contact_id = ?", secondary.ID).
				Update("contact_id", primary.ID).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Lead{}).Where("converted_contact_id = ?", secondary.ID).
			Update("converted_contact_id", primary.ID).Error; err != nil {
			return err
		}
		return tx.Select("Tags").Delete(secondary).Error
	})
	if err != nil {
		return nil, s.store.translate(err, "merge")
	}
	scopedAudit(s.store.audit, ctx, scope, primary.OrganizationID, "contact.merge", primary.ID, map[string]any{"merged": secondary.ID})
	return s.store.Get(ctx, scope, primary.ID)
}

// Duplicates groups contacts that share an email address within one organization.
func (s *ContactService) Duplicates(ctx context.Context, scope tenancy.Scope) ([]DuplicateGroup, error) {
	ctx = ensureContext(ctx)
	query, ok := s.store.Scoped(ctx, scope)
	if !ok {
		return []DuplicateGroup{}, nil
	}

	var rows []struct {
		OrganizationID string
		Email          string
		Count          int
	}
	if err := query.
		Select("contacts.organization_id, contacts.email, COUNT(*) AS count").
		Where("contacts.email <> ''").
		Group("contacts.organization_id, contacts.email").
		Having("COUNT(*) > 1").
		Order("contacts.email").
		Scan(&rows).Error; err != nil {
		return nil, s.store.translate(err, "duplicates")
	}

	groups := make([]DuplicateGroup, 0, len(rows))
	for _, row := range rows {
		var contacts []models.Contact
		if err := s.store.DB().WithContext(ctx).
			Where("organization_id = ? AND email = ?", row.OrganizationID, row.Email).
			Order("created_at").
			Find(&contacts).Error; err != nil {
			return nil, s.store.translate(err, "duplicates")
		}
		groups = append(groups, DuplicateGroup{Email: row.Email, Count: row.Count, Contacts: contacts})
	}
	return groups, nil
}

// Activities lists activities logged against a contact.
func (s *ContactService) Activities(ctx context.Context, scope tenancy.Scope, id string, q ListQuery) (Page[models.Activity], error) {
	return related[models.Activity](ctx, s.store, scope, id, "activities", activityListSpec, q)
}

// Opportunities lists opportunities of a contact.
func (s *ContactService) Opportunities(ctx context.Context, scope tenancy.Scope, id string, q ListQuery) (Page[models.Opportunity], error) {
	return related[models.Opportunity](ctx, s.store, scope, id, "opportunities", opportunityListSpec, q)
}

// Tasks lists tasks linked to a contact.
func (s *ContactService) Tasks(ctx context.Context, scope tenancy.Scope, id string, q ListQuery) (Page[models.Task], error) {
	return related[models.Task](ctx, s.store, scope, id, "tasks", taskListSpec, q)
}

func (s *ContactService) visibleIDs(ctx context.Context, scope tenancy.Scope, ids []string) ([]string, error) {
	query, ok := s.store.Scoped(ctx, scope)
	if !ok {
		return nil, nil
	}
	var visible []string
	if err := query.Where("contacts.id IN ?", ids).Pluck("contacts.id", &visible).Error; err != nil {
		return nil, s.store.translate(err, "load")
	}
	return visible, nil
}

// related pages rows of table whose contact_id points at a contact visible to scope.
func related[R any](ctx context.Context, store *ScopedStore[models.Contact, *models.Contact], scope tenancy.Scope, id, table string, spec ListSpec, q ListQuery) (Page[R], error) {
	contact, err := store.Get(ctx, scope, id)
	if err != nil {
		return Page[R]{}, err
	}
	query := store.DB().WithContext(ensureContext(ctx)).Model(new(R)).
		Where(table+".organization_id = ? AND "+table+".contact_id = ?", contact.OrganizationID, contact.ID)
	return paginate[R](query, spec, table, q)
}

// replaceTags swaps the tag set of owner, a model with a Tags association.
func replaceTags(tx *gorm.DB, owner any, organizationID string, ids []string) error {
	tags, err := loadTags(tx, organizationID, ids)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		return tx.Model(owner).Association("Tags").Clear()
	}
	return tx.Model(owner).Association("Tags").Replace(tags)
}
