package api

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/app"
	iauth "github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/auth/mfa"
	"github.com/charlesng35/crmhub/internal/auth/providers"
	"github.com/charlesng35/crmhub/internal/cache"
	"github.com/charlesng35/crmhub/internal/permissions"
	"github.com/charlesng35/crmhub/internal/realtime"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/internal/storage"
	"github.com/charlesng35/crmhub/internal/tenancy"
	"github.com/charlesng35/crmhub/pkg/mail"
)

const oauthStateTTL = 10 * time.Minute

// Services is the fully wired service layer shared by the router and the
// background jobs.
type Services struct {
	Resolver *tenancy.Resolver
	Checker  *permissions.Checker

	Audit         *services.AuditService
	Notifications *services.NotificationService
	Tokens        *services.UserTokenService
	Accounts      *services.AccountService
	SSO           *iauth.SSOManager

	Organizations *services.OrganizationService
	Memberships   *services.MembershipService
	Roles         *services.RoleService
	Teams         *services.TeamService
	Invitations   *services.InvitationService
	Subscriptions *services.SubscriptionService

	Tags             *services.TagService
	Companies        *services.CompanyService
	Contacts         *services.ContactService
	Leads            *services.LeadService
	Stages           *services.StageService
	Opportunities    *services.OpportunityService
	Tasks            *services.TaskService
	Activities       *services.ActivityService
	EmailTemplates   *services.EmailTemplateService
	Emails           *services.EmailService
	Campaigns        *services.EmailCampaignService
	CustomFields     *services.CustomFieldService
	Reports          *services.ReportService
	ScheduledReports *services.ScheduledReportService
	Webhooks         *services.WebhookService
	IntegrationKeys  *services.IntegrationKeyService
	Widgets          *services.DashboardWidgetService
	Layouts          *services.LayoutService
}

// ServiceDeps carries the infrastructure the service layer is built on.
type ServiceDeps struct {
	DB       *gorm.DB
	Config   *app.Config
	Sessions *iauth.SessionService
	Hub      *realtime.Hub
	Mailer   mail.Mailer
	Storage  storage.Backend
	// Providers overrides the OAuth registry built from configuration.
	Providers *providers.Registry
	// Claims records redeemed SSO states; nil uses the database.
	Claims cache.Store
}

// NewServices wires every service against deps.
func NewServices(deps ServiceDeps) (*Services, error) {
	if deps.DB == nil || deps.Config == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("services: database, config and sessions are required")
	}
	db, cfg := deps.DB, deps.Config

	mailer := deps.Mailer
	if mailer == nil {
		disabled, err := mail.NewSMTPMailer(mail.SMTPSettings{})
		if err != nil {
			return nil, err
		}
		mailer = disabled
	}

	s := &Services{}
	var err error

	if s.Resolver, err = tenancy.NewResolver(db); err != nil {
		return nil, err
	}
	if s.Checker, err = permissions.NewChecker(db); err != nil {
		return nil, err
	}
	if s.Audit, err = services.NewAuditService(db); err != nil {
		return nil, err
	}
	if s.Notifications, err = services.NewNotificationService(db, deps.Hub); err != nil {
		return nil, err
	}
	if s.Tokens, err = services.NewUserTokenService(db, mailer, services.WithTokenBaseURL(cfg.Server.BaseURL)); err != nil {
		return nil, err
	}
	if err := s.wireAccounts(deps); err != nil {
		return nil, err
	}
	if err := s.wireTenancy(deps, mailer); err != nil {
		return nil, err
	}
	if err := s.wireCRM(db); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Services) wireAccounts(deps ServiceDeps) error {
	db, cfg := deps.DB, deps.Config

	key, err := cfg.Security.AESKey()
	if err != nil {
		return err
	}
	local, err := providers.NewLocalProvider(db, cfg.Auth.LocalProviderConfig())
	if err != nil {
		return err
	}
	totp, err := mfa.NewTOTPService(db, key, mfa.WithIssuer(cfg.Auth.MFA.Issuer))
	if err != nil {
		return err
	}
	if s.Accounts, err = services.NewAccountService(db, s.Audit, deps.Sessions, local, totp, s.Tokens); err != nil {
		return err
	}

	registry := deps.Providers
	if registry == nil {
		registry = providers.NewRegistry()
		for _, oc := range cfg.Auth.OIDCProviderConfigs() {
			provider, err := providers.NewOIDCProvider(oc, providers.OIDCOptions{SkipIssuerCheck: oc.Name == "microsoft"})
			if err != nil {
				return fmt.Errorf("oauth provider %s: %w", oc.Name, err)
			}
			if err := registry.Register(provider); err != nil {
				return err
			}
		}
	}
	state, err := iauth.NewStateCodec(key, oauthStateTTL, nil)
	if err != nil {
		return err
	}
	claims := deps.Claims
	if claims == nil {
		claims = cache.NewDatabaseStore(db)
	}
	s.SSO, err = iauth.NewSSOManager(db, registry, state, deps.Sessions, s.Accounts, iauth.SSOConfig{Replay: claims})
	return err
}

func (s *Services) wireTenancy(deps ServiceDeps, mailer mail.Mailer) error {
	db, cfg := deps.DB, deps.Config
	var err error

	var orgOpts []services.OrganizationOption
	if deps.Storage != nil {
		orgOpts = append(orgOpts, services.WithOrganizationStorage(deps.Storage))
	}
	if s.Organizations, err = services.NewOrganizationService(db, s.Audit, s.Resolver, orgOpts...); err != nil {
		return err
	}
	if s.Memberships, err = services.NewMembershipService(db, s.Audit, s.Resolver); err != nil {
		return err
	}
	if s.Roles, err = services.NewRoleService(db, s.Audit, s.Resolver); err != nil {
		return err
	}
	if s.Teams, err = services.NewTeamService(db, s.Audit, s.Resolver); err != nil {
		return err
	}
	if s.Subscriptions, err = services.NewSubscriptionService(db, s.Audit, s.Resolver); err != nil {
		return err
	}
	s.Invitations, err = services.NewInvitationService(db, s.Audit, s.Resolver, mailer,
		services.WithInvitationAcceptURL(cfg.Invitations.AcceptURL),
		services.WithInvitationExpiry(cfg.Invitations.Expiry),
		services.WithInvitationNotifications(s.Notifications),
	)
	return err
}

func (s *Services) wireCRM(db *gorm.DB) error {
	var err error
	if s.Tags, err = services.NewTagService(db, s.Audit); err != nil {
		return err
	}
	if s.Companies, err = services.NewCompanyService(db, s.Audit); err != nil {
		return err
	}
	if s.Contacts, err = services.NewContactService(db, s.Audit); err != nil {
		return err
	}
	if s.Leads, err = services.NewLeadService(db, s.Audit); err != nil {
		return err
	}
	if s.Stages, err = services.NewStageService(db, s.Audit); err != nil {
		return err
	}
	if s.Opportunities, err = services.NewOpportunityService(db, s.Audit, services.WithOpportunityNotifications(s.Notifications)); err != nil {
		return err
	}
	if s.Tasks, err = services.NewTaskService(db, s.Audit, services.WithTaskNotifications(s.Notifications)); err != nil {
		return err
	}
	if s.Activities, err = services.NewActivityService(db, s.Audit); err != nil {
		return err
	}
	if s.EmailTemplates, err = services.NewEmailTemplateService(db, s.Audit); err != nil {
		return err
	}
	if s.Emails, err = services.NewEmailService(db, s.Audit); err != nil {
		return err
	}
	if s.Campaigns, err = services.NewEmailCampaignService(db, s.Audit); err != nil {
		return err
	}
	if s.CustomFields, err = services.NewCustomFieldService(db, s.Audit); err != nil {
		return err
	}
	if s.Reports, err = services.NewReportService(db, s.Audit); err != nil {
		return err
	}
	s.ScheduledReports, err = services.NewScheduledReportService(db, s.Audit, services.WithScheduleNotifications(s.Notifications))
	if err != nil {
		return err
	}
	if s.Webhooks, err = services.NewWebhookService(db, s.Audit); err != nil {
		return err
	}
	if s.IntegrationKeys, err = services.NewIntegrationKeyService(db, s.Audit); err != nil {
		return err
	}
	if s.Widgets, err = services.NewDashboardWidgetService(db, s.Audit); err != nil {
		return err
	}
	s.Layouts, err = services.NewLayoutService(db, s.Audit)
	return err
}
