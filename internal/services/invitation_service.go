package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	"github.com/charlesng35/crmhub/pkg/crypto"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/logger"
	"github.com/charlesng35/crmhub/pkg/mail"
	"github.com/charlesng35/crmhub/pkg/metrics"
)

const (
	// DefaultInvitationExpiry is how long a new or resent invitation stays valid.
	DefaultInvitationExpiry = 7 * 24 * time.Hour

	defaultInvitationTokenBytes = 32
)

var (
	errInvitationNotFound = apperrors.NewNotFound("Invitation not found.")

	invitationStateErrors = map[models.InvitationStatus]string{
		models.InvitationAccepted:  "This invitation has already been accepted.",
		models.InvitationExpired:   "This invitation has expired.",
		models.InvitationCancelled: "This invitation has been cancelled.",
	}
)

// CreateInvitationInput describes a new invitation.
type CreateInvitationInput struct {
	Email   string   `json:"email" validate:"required,email"`
	RoleID  *string  `json:"role" validate:"omitempty,uuid"`
	TeamIDs []string `json:"teams" validate:"omitempty,dive,uuid"`
}

// AcceptInvitationInput either names an existing user or carries the fields
// to register a new one. Leaving everything empty reuses the account that
// already owns the invited email.
type AcceptInvitationInput struct {
	UserID    *string `json:"user_id" validate:"omitempty,uuid"`
	FirstName string  `json:"first_name" validate:"max=150"`
	LastName  string  `json:"last_name" validate:"max=150"`
	Password  string  `json:"password" validate:"omitempty,min=8"`
}

func (in AcceptInvitationInput) registering() bool {
	return strings.TrimSpace(in.FirstName) != "" || strings.TrimSpace(in.LastName) != "" || in.Password != ""
}

// IssuedInvitation is returned when a token is minted. Token is never stored.
type IssuedInvitation struct {
	Invitation *models.Invitation
	Token      string
	AcceptURL  string
}

// InvitationPreview is what an invitee sees before accepting.
type InvitationPreview struct {
	Invitation       *models.Invitation `json:"invitation"`
	OrganizationName string             `json:"organization_name"`
}

// AcceptedInvitation reports the outcome of an accept call.
type AcceptedInvitation struct {
	Invitation  *models.Invitation `json:"invitation"`
	Membership  *models.Membership `json:"membership,omitempty"`
	User        *models.User       `json:"user"`
	UserCreated bool               `json:"user_created"`
}

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationAcceptURL configures the base URL used to build accept links.
func WithInvitationAcceptURL(acceptURL string) InvitationOption {
	return func(s *InvitationService) {
		s.acceptURL = strings.TrimRight(strings.TrimSpace(acceptURL), "/")
	}
}

// WithInvitationExpiry overrides the invitation lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithInvitationNotifications notifies invitees that already have an account.
func WithInvitationNotifications(notifications *NotificationService) InvitationOption {
	return func(s *InvitationService) {
		s.notifications = notifications
	}
}

// InvitationService drives the invitation lifecycle. PENDING is the only
// state with outgoing transitions; expiry is applied lazily whenever an
// invitation is read.
type InvitationService struct {
	db            *gorm.DB
	audit         *AuditService
	resolver      *tenancy.Resolver
	mailer        mail.Mailer
	notifications *NotificationService
	acceptURL     string
	expiry        time.Duration
	tokenLength   int
	now           func() time.Time
}

// NewInvitationService constructs an InvitationService. mailer may be nil.
func NewInvitationService(db *gorm.DB, audit *AuditService, resolver *tenancy.Resolver, mailer mail.Mailer, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("invitation service: resolver is required")
	}
	svc := &InvitationService{
		db:          db,
		audit:       audit,
		resolver:    resolver,
		mailer:      mailer,
		expiry:      DefaultInvitationExpiry,
		tokenLength: defaultInvitationTokenBytes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

var invitationListSpec = ListSpec{
	SearchFields: []string{"email"},
	Filters:      map[string]string{"status": "status", "role_id": "role_id"},
	Orderings:    map[string]string{"created_at": "created_at", "expires_at": "expires_at", "email": "email"},
	Preloads:     []string{"Role", "Teams"},
}

// List returns invitations of the scope's organization. Stale pending rows
// are expired first so the status filter sees current state. Admin only.
func (s *InvitationService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Invitation], error) {
	ctx = ensureContext(ctx)
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return Page[models.Invitation]{}, err
	}
	if err := s.expireStale(ctx, s.db.WithContext(ctx).Where("organization_id = ?", org.ID)); err != nil {
		return Page[models.Invitation]{}, err
	}

	if status, ok := q.Filters["status"]; ok {
		q.Filters["status"] = strings.ToUpper(status)
	}
	query := s.db.WithContext(ctx).Model(&models.Invitation{}).Where("organization_id = ?", org.ID)
	page, err := paginate[models.Invitation](query, invitationListSpec, "invitations", q)
	if err != nil {
		return page, fmt.Errorf("invitation service: %w", err)
	}
	return page, nil
}

// Get loads an invitation of the scope's organization. Admin only.
func (s *InvitationService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}
	inv, err := s.load(ctx, s.db.WithContext(ctx).Where("organization_id = ? AND id = ?", org.ID, strings.TrimSpace(id)))
	if err != nil {
		return nil, err
	}
	if err := s.expireIfStale(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Create issues a PENDING invitation and mails the accept link. Admin only.
func (s *InvitationService) Create(ctx context.Context, scope tenancy.Scope, input CreateInvitationInput) (*IssuedInvitation, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}

	email := normaliseEmail(input.Email)
	if err := s.expireStale(ctx, s.db.WithContext(ctx).Where("organization_id = ? AND email = ?", org.ID, email)); err != nil {
		return nil, err
	}

	token, hash, err := s.newToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	inv := &models.Invitation{
		OrganizationID: org.ID,
		Email:          email,
		RoleID:         optionalID(input.RoleID),
		TokenHash:      hash,
		Status:         models.InvitationPending,
		PendingKey:     stringPtr(email),
		ExpiresAt:      now.Add(s.expiry),
		InvitedByID:    scope.Actor(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureNotMember(tx, org, email); err != nil {
			return err
		}
		var pending int64
		if err := tx.Model(&models.Invitation{}).
			Where("organization_id = ? AND pending_key = ?", org.ID, email).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return errDuplicateInvitation
		}
		if err := checkReferences(tx, org.ID, Ref("role", &models.Role{}, inv.RoleID)); err != nil {
			return err
		}
		teams, err := loadTeams(tx, org.ID, input.TeamIDs)
		if err != nil {
			return err
		}
		if err := tx.Omit("Teams").Create(inv).Error; err != nil {
			return err
		}
		if len(teams) > 0 {
			return tx.Model(inv).Association("Teams").Replace(teams)
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "create invitation")
	}

	metrics.InvitationTransitions.WithLabelValues("pending").Inc()
	scopedAudit(s.audit, ctx, scope, org.ID, "invitation.create", inv.ID, map[string]any{"email": email})

	issued := &IssuedInvitation{Invitation: inv, Token: token, AcceptURL: s.acceptLink(token)}
	s.deliver(ctx, org, issued)
	return issued, nil
}

var errDuplicateInvitation = apperrors.FieldError("email", "An invitation is already pending for this email address.")

func (s *InvitationService) ensureNotMember(tx *gorm.DB, org *models.Organization, email string) error {
	user, err := findUserByEmail(tx, email)
	if err != nil || user == nil {
		return err
	}
	if user.ID == org.OwnerID {
		return apperrors.FieldError("email", "User is already a member of this organization.")
	}
	var active int64
	if err := tx.Model(&models.Membership{}).
		Where("organization_id = ? AND user_id = ? AND is_active = ?", org.ID, user.ID, true).
		Count(&active).Error; err != nil {
		return err
	}
	if active > 0 {
		return apperrors.FieldError("email", "User is already a member of this organization.")
	}
	return nil
}

// Cancel moves a PENDING invitation to CANCELLED. Admin only.
func (s *InvitationService) Cancel(ctx context.Context, scope tenancy.Scope, id string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)
	inv, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := guardPending(inv); err != nil {
		return nil, err
	}

	if err := s.transition(s.db.WithContext(ctx), inv, models.InvitationCancelled, nil); err != nil {
		return nil, err
	}

	scopedAudit(s.audit, ctx, scope, inv.OrganizationID, "invitation.cancel", inv.ID, nil)
	return inv, nil
}

// Resend rotates the token, restarts the expiry window and mails the invitee
// again. Only PENDING invitations can be resent. Admin only.
func (s *InvitationService) Resend(ctx context.Context, scope tenancy.Scope, id string) (*IssuedInvitation, error) {
	ctx = ensureContext(ctx)
	inv, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if err := guardPending(inv); err != nil {
		return nil, err
	}

	token, hash, err := s.newToken()
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.expiry)

	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", inv.ID, models.InvitationPending).
		Updates(map[string]any{"token_hash": hash, "expires_at": expires})
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: resend invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.NewValidation("Only pending invitations can be resent.", nil)
	}
	inv.TokenHash = hash
	inv.ExpiresAt = expires

	scopedAudit(s.audit, ctx, scope, inv.OrganizationID, "invitation.resend", inv.ID, nil)

	var org models.Organization
	if err := s.db.WithContext(ctx).Take(&org, "id = ?", inv.OrganizationID).Error; err != nil {
		return nil, fmt.Errorf("invitation service: load organization: %w", err)
	}
	issued := &IssuedInvitation{Invitation: inv, Token: token, AcceptURL: s.acceptLink(token)}
	s.deliver(ctx, &org, issued)
	return issued, nil
}

// Peek returns the invitation behind a token for display. It applies lazy
// expiry but performs no other transition.
func (s *InvitationService) Peek(ctx context.Context, token string) (*InvitationPreview, error) {
	ctx = ensureContext(ctx)
	inv, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfStale(ctx, inv); err != nil {
		return nil, err
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).Select("id", "name").Take(&org, "id = ?", inv.OrganizationID).Error; err != nil {
		return nil, fmt.Errorf("invitation service: load organization: %w", err)
	}
	return &InvitationPreview{Invitation: inv, OrganizationName: org.Name}, nil
}

// Accept redeems a token. The invitation must be PENDING and unexpired; the
// invited user gets an active membership with the invitation's role and teams.
func (s *InvitationService) Accept(ctx context.Context, token string, input AcceptInvitationInput) (*AcceptedInvitation, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	userID := optionalID(input.UserID)
	if userID != nil && input.registering() {
		return nil, apperrors.NewValidation("Provide either user_id or registration details, not both.", nil)
	}

	inv, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	// Expiry is committed on its own so a rejected accept still records it.
	if err := s.expireIfStale(ctx, inv); err != nil {
		return nil, err
	}
	if err := guardPending(inv); err != nil {
		return nil, err
	}

	result := &AcceptedInvitation{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		if err := tx.Take(&org, "id = ?", inv.OrganizationID).Error; err != nil {
			return fmt.Errorf("load organization: %w", err)
		}

		user, created, err := s.invitee(tx, inv, userID, input)
		if err != nil {
			return err
		}
		result.User = user
		result.UserCreated = created

		if user.ID != org.OwnerID {
			membership, err := s.grantMembership(tx, &org, inv, user.ID)
			if err != nil {
				return err
			}
			result.Membership = membership
		}

		return s.transition(tx, inv, models.InvitationAccepted, &user.ID)
	})
	if err != nil {
		return nil, s.translate(err, "accept invitation")
	}
	result.Invitation = inv

	recordAudit(s.audit, ctx, AuditEntry{
		OrganizationID: stringPtr(inv.OrganizationID),
		UserID:         stringPtr(result.User.ID),
		Email:          result.User.Email,
		Action:         "invitation.accept",
		Resource:       inv.ID,
		Result:         AuditSuccess,
	})
	return result, nil
}

func (s *InvitationService) invitee(tx *gorm.DB, inv *models.Invitation, userID *string, input AcceptInvitationInput) (*models.User, bool, error) {
	if userID != nil {
		var user models.User
		err := tx.Take(&user, "id = ?", *userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.FieldError("user_id", "User not found.")
		}
		if err != nil {
			return nil, false, fmt.Errorf("load user: %w", err)
		}
		if normaliseEmail(user.Email) != inv.Email {
			return nil, false, apperrors.FieldError("user_id", "This invitation was sent to a different email address.")
		}
		return &user, false, nil
	}

	existing, err := findUserByEmail(tx, inv.Email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if input.registering() {
			return nil, false, apperrors.FieldError("email", "An account with this email already exists. Accept the invitation with user_id instead.")
		}
		return existing, false, nil
	}

	details := apperrors.Details{}
	if strings.TrimSpace(input.FirstName) == "" {
		details["first_name"] = []string{"This field is required."}
	}
	if strings.TrimSpace(input.LastName) == "" {
		details["last_name"] = []string{"This field is required."}
	}
	if input.Password == "" {
		details["password"] = []string{"This field is required."}
	}
	if len(details) > 0 {
		return nil, false, apperrors.NewValidation("Registration details are required to accept this invitation.", details)
	}

	user, err := createUser(tx, newUserInput{
		Email:         inv.Email,
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		Password:      input.Password,
		EmailVerified: true,
	})
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// grantMembership creates the membership or reactivates an existing one.
func (s *InvitationService) grantMembership(tx *gorm.DB, org *models.Organization, inv *models.Invitation, userID string) (*models.Membership, error) {
	var membership models.Membership
	err := tx.Where("organization_id = ? AND user_id = ?", org.ID, userID).Take(&membership).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := ensureSeatAvailable(tx, org); err != nil {
			return nil, err
		}
		membership = models.Membership{
			OrganizationID:     org.ID,
			UserID:             userID,
			RoleID:             inv.RoleID,
			JoinedAt:           s.now(),
			IsActive:           true,
			InvitationAccepted: true,
		}
		if err := tx.Omit("Teams").Create(&membership).Error; err != nil {
			if isUniqueConstraintError(err) {
				return nil, uniqueViolation("user_id", "User is already a member of this organization.")
			}
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("load membership: %w", err)
	default:
		if !membership.IsActive {
			if err := ensureSeatAvailable(tx, org); err != nil {
				return nil, err
			}
		}
		if err := tx.Model(&membership).Updates(map[string]any{
			"role_id":             inv.RoleID,
			"is_active":           true,
			"invitation_accepted": true,
		}).Error; err != nil {
			return nil, err
		}
		membership.RoleID = inv.RoleID
		membership.IsActive = true
		membership.InvitationAccepted = true
	}

	if len(inv.Teams) > 0 {
		if err := tx.Model(&membership).Association("Teams").Replace(inv.Teams); err != nil {
			return nil, err
		}
	}
	return &membership, nil
}

// transition moves a PENDING invitation to a terminal state. The status guard
// in the WHERE clause makes concurrent transitions lose cleanly.
func (s *InvitationService) transition(db *gorm.DB, inv *models.Invitation, to models.InvitationStatus, acceptedBy *string) error {
	updates := map[string]any{
		"status":      to,
		"pending_key": nil,
	}
	var acceptedAt *time.Time
	if to == models.InvitationAccepted {
		now := s.now()
		acceptedAt = &now
		updates["accepted_at"] = now
		updates["accepted_by_id"] = acceptedBy
	}

	result := db.Model(&models.Invitation{}).
		Where("id = ? AND status = ?", inv.ID, models.InvitationPending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("invitation service: transition to %s: %w", strings.ToLower(string(to)), result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewValidation("This invitation is no longer pending.", nil)
	}

	inv.Status = to
	inv.PendingKey = nil
	if acceptedAt != nil {
		inv.AcceptedAt = acceptedAt
		inv.AcceptedByID = acceptedBy
	}
	metrics.InvitationTransitions.WithLabelValues(strings.ToLower(string(to))).Inc()
	return nil
}

// expireIfStale flips a PENDING invitation past its expiry to EXPIRED.
func (s *InvitationService) expireIfStale(ctx context.Context, inv *models.Invitation) error {
	if !inv.IsPending() || s.now().Before(inv.ExpiresAt) {
		return nil
	}
	err := s.transition(s.db.WithContext(ctx), inv, models.InvitationExpired, nil)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		// Someone else moved it first; reload to report the winning state.
		reloaded, loadErr := s.load(ctx, s.db.WithContext(ctx).Where("id = ?", inv.ID))
		if loadErr != nil {
			return loadErr
		}
		*inv = *reloaded
		return nil
	}
	return err
}

// expireStale expires every stale PENDING invitation matched by scope.
func (s *InvitationService) expireStale(ctx context.Context, scope *gorm.DB) error {
	result := scope.Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.InvitationPending, s.now()).
		Updates(map[string]any{"status": models.InvitationExpired, "pending_key": nil})
	if result.Error != nil {
		return fmt.Errorf("invitation service: expire invitations: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.InvitationTransitions.WithLabelValues("expired").Add(float64(result.RowsAffected))
	}
	return nil
}

func guardPending(inv *models.Invitation) error {
	if inv.IsPending() {
		return nil
	}
	message, ok := invitationStateErrors[inv.Status]
	if !ok {
		message = "This invitation is no longer pending."
	}
	return apperrors.NewValidation(message, apperrors.Details{"status": {string(inv.Status)}})
}

func (s *InvitationService) byToken(ctx context.Context, token string) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errInvitationNotFound
	}
	return s.load(ctx, s.db.WithContext(ctx).Where("token_hash = ?", crypto.HashToken(token)))
}

func (s *InvitationService) load(_ context.Context, query *gorm.DB) (*models.Invitation, error) {
	var inv models.Invitation
	err := query.Preload("Role").Preload("Teams").Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: load invitation: %w", err)
	}
	return &inv, nil
}

func (s *InvitationService) newToken() (string, string, error) {
	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", "", fmt.Errorf("invitation service: generate token: %w", err)
	}
	return token, crypto.HashToken(token), nil
}

func (s *InvitationService) acceptLink(token string) string {
	if s.acceptURL == "" {
		return token
	}
	return s.acceptURL + "/" + url.PathEscape(token)
}

// deliver mails the invitation and notifies an existing account. Failures
// are logged; the invitation itself is already committed.
func (s *InvitationService) deliver(ctx context.Context, org *models.Organization, issued *IssuedInvitation) {
	inv := issued.Invitation
	log := logger.WithModule("invitations")

	if s.mailer != nil {
		msg := mail.Message{
			To:      []string{inv.Email},
			Subject: fmt.Sprintf("You're invited to join %s", org.Name),
			Text:    invitationBody(org.Name, issued.AcceptURL, inv.ExpiresAt),
		}
		if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
			log.Warn("failed to send invitation email",
				zap.String("invitation_id", inv.ID),
				zap.Error(err),
			)
		}
	}

	if s.notifications == nil {
		return
	}
	user, err := findUserByEmail(s.db.WithContext(ctx), inv.Email)
	if err != nil || user == nil {
		return
	}
	s.notifications.Notify(ctx, CreateNotificationInput{
		UserID:         user.ID,
		OrganizationID: stringPtr(org.ID),
		Type:           models.NotificationInvitation,
		Title:          "Organization invitation",
		Message:        fmt.Sprintf("You have been invited to join %s.", org.Name),
		Link:           issued.AcceptURL,
		Metadata:       map[string]any{"invitation_id": inv.ID},
	})
}

func invitationBody(orgName, link string, expires time.Time) string {
	return fmt.Sprintf("Hello,\n\nYou have been invited to join %s. Use the following link to accept the invitation:\n%s\n\nThe invitation expires on %s.\n\nIf you did not expect this email, you can ignore it.\n",
		orgName, link, expires.UTC().Format("January 2, 2006 15:04 MST"))
}

func (s *InvitationService) translate(err error, verb string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isUniqueConstraintError(err) {
		return errDuplicateInvitation
	}
	return fmt.Errorf("invitation service: %s: %w", verb, err)
}
