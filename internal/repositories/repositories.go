// Package repositories is the gorm data-access layer: one small repository
// per aggregate, each a constructor function wrapping *gorm.DB, every
// method taking a context.Context via WithContext.
package repositories

import "gorm.io/gorm"

// Repositories is the single entry point handed to every component that
// needs the store (spec.md §9 "no singletons beyond the database pool").
type Repositories struct {
	Leads        *LeadRepository
	Organizations *OrganizationRepository
	Events       *EventRepository
	Scoring      *ScoringRepository
	Intent       *IntentRepository
	Automation   *AutomationRepository
	Pipelines    *PipelineRepository
	Deals        *DealRepository
	TeamMembers  *TeamMemberRepository
	Tasks        *TaskRepository
	AdminUsers   *AdminUserRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Leads:         &LeadRepository{db: db},
		Organizations: &OrganizationRepository{db: db},
		Events:        &EventRepository{db: db},
		Scoring:       &ScoringRepository{db: db},
		Intent:        &IntentRepository{db: db},
		Automation:    &AutomationRepository{db: db},
		Pipelines:     &PipelineRepository{db: db},
		Deals:         &DealRepository{db: db},
		TeamMembers:   &TeamMemberRepository{db: db},
		Tasks:         &TaskRepository{db: db},
		AdminUsers:    &AdminUserRepository{db: db},
	}
}
