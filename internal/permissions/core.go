package permissions

func init() {
	perms := []Permission{
		{
			ID:          "organization.view",
			Module:      "organization",
			Description: "View organization details and settings",
		},
		{
			ID:          "organization.manage",
			Module:      "organization",
			DependsOn:   []string{"organization.view"},
			Description: "Update organization settings and branding",
		},
		{
			ID:          "member.view",
			Module:      "members",
			Description: "View organization members",
		},
		{
			ID:          "member.manage",
			Module:      "members",
			DependsOn:   []string{"member.view"},
			Description: "Add, update and remove members",
		},
		{
			ID:          "role.manage",
			Module:      "members",
			DependsOn:   []string{"member.view"},
			Description: "Create and edit custom roles",
		},
		{
			ID:          "team.manage",
			Module:      "members",
			DependsOn:   []string{"member.view"},
			Description: "Manage teams and team membership",
		},
		{
			ID:          "invitation.manage",
			Module:      "members",
			DependsOn:   []string{"member.view"},
			Description: "Invite, resend and cancel invitations",
		},
		{
			ID:          "contact.view",
			Module:      "crm",
			Description: "View contacts",
		},
		{
			ID:          "contact.manage",
			Module:      "crm",
			DependsOn:   []string{"contact.view"},
			Description: "Create and edit contacts",
		},
		{
			ID:          "contact.delete",
			Module:      "crm",
			DependsOn:   []string{"contact.manage"},
			Description: "Delete and merge contacts",
		},
		{
			ID:          "company.view",
			Module:      "crm",
			Description: "View companies",
		},
		{
			ID:          "company.manage",
			Module:      "crm",
			DependsOn:   []string{"company.view"},
			Description: "Create, edit and delete companies",
		},
		{
			ID:          "lead.view",
			Module:      "crm",
			Description: "View leads",
		},
		{
			ID:          "lead.manage",
			Module:      "crm",
			DependsOn:   []string{"lead.view", "contact.manage"},
			Description: "Create, edit and convert leads",
		},
		{
			ID:          "tag.manage",
			Module:      "crm",
			Description: "Manage tags",
		},
		{
			ID:          "opportunity.view",
			Module:      "sales",
			Description: "View opportunities and pipeline",
		},
		{
			ID:          "opportunity.manage",
			Module:      "sales",
			DependsOn:   []string{"opportunity.view"},
			Description: "Create, edit and close opportunities",
		},
		{
			ID:          "stage.manage",
			Module:      "sales",
			DependsOn:   []string{"opportunity.view"},
			Description: "Configure pipeline stages",
		},
		{
			ID:          "task.view",
			Module:      "work",
			Description: "View tasks",
		},
		{
			ID:          "task.manage",
			Module:      "work",
			DependsOn:   []string{"task.view"},
			Description: "Create, assign and complete tasks",
		},
		{
			ID:          "activity.view",
			Module:      "work",
			Description: "View activities",
		},
		{
			ID:          "activity.manage",
			Module:      "work",
			DependsOn:   []string{"activity.view"},
			Description: "Log activities",
		},
		{
			ID:          "email.view",
			Module:      "email",
			Description: "View logged emails and templates",
		},
		{
			ID:          "email.manage",
			Module:      "email",
			DependsOn:   []string{"email.view"},
			Description: "Log emails and manage templates",
		},
		{
			ID:          "campaign.manage",
			Module:      "email",
			DependsOn:   []string{"email.view"},
			Description: "Create and send campaigns",
		},
		{
			ID:          "custom_field.manage",
			Module:      "customization",
			Description: "Define custom fields",
		},
		{
			ID:          "report.view",
			Module:      "reports",
			Description: "View reports",
		},
		{
			ID:          "report.manage",
			Module:      "reports",
			DependsOn:   []string{"report.view"},
			Description: "Create, share and schedule reports",
		},
		{
			ID:          "subscription.view",
			Module:      "billing",
			Description: "View the subscription",
		},
		{
			ID:          "subscription.manage",
			Module:      "billing",
			DependsOn:   []string{"subscription.view"},
			Description: "Change plan and billing cycle",
		},
		{
			ID:          "audit.view",
			Module:      "audit",
			Description: "View the audit log",
		},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
	if err := ValidateDependencies(); err != nil {
		panic(err)
	}
}
