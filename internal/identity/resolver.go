// Package identity implements the Identity Resolver (spec.md §4.2):
// mapping an inbound event's lead identifiers to a single lead record,
// creating one on first contact, with resolution-order lookups and
// backfill of missing identifiers onto the matched lead.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"leadpipeline/internal/models"
	"leadpipeline/internal/repositories"
)

// Identifier carries the raw lead_identifier object from an ingested
// event (spec.md §4.1).
type Identifier struct {
	Email       string `json:"email,omitempty"`
	PortalID    string `json:"portal_id,omitempty"`
	WaalaxyID   string `json:"waalaxy_id,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	LemlistID   string `json:"lemlist_id,omitempty"`
}

func (id Identifier) Empty() bool {
	return id.Email == "" && id.PortalID == "" && id.WaalaxyID == "" && id.LinkedInURL == "" && id.LemlistID == ""
}

var placeholderSeq int64

// Resolver resolves identifiers to leads per the fixed precedence order:
// email, portal_id, waalaxy_id, linkedin_url, lemlist_id.
type Resolver struct {
	leads *repositories.LeadRepository
}

func NewResolver(leads *repositories.LeadRepository) *Resolver {
	return &Resolver{leads: leads}
}

// Resolve returns the matched or newly-created lead and whether it was
// newly created. Source/campaign/occurredAt seed first-touch attribution
// on creation only.
func (r *Resolver) Resolve(ctx context.Context, id Identifier, source, campaign string, occurredAt time.Time) (*models.Lead, bool, error) {
	lead, err := r.lookup(ctx, id)
	if err == nil {
		if updated := r.backfillIdentifiers(lead, id); updated {
			if saveErr := r.leads.Save(ctx, lead); saveErr != nil {
				return nil, false, saveErr
			}
		}
		return lead, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	lead, createErr := r.create(ctx, id, source, campaign, occurredAt)
	if createErr == nil {
		return lead, true, nil
	}

	// Race: two concurrent first-events for the same identifier may both
	// miss the lookup; retry once after a unique-constraint conflict
	// (spec.md §4.2 "on conflict retries the lookup once").
	if !isUniqueViolation(createErr) {
		return nil, false, createErr
	}
	lead, err = r.lookup(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return lead, false, nil
}

func (r *Resolver) lookup(ctx context.Context, id Identifier) (*models.Lead, error) {
	if id.Email != "" {
		if lead, err := r.leads.FindByEmail(ctx, id.Email); err == nil {
			return lead, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if id.PortalID != "" {
		if lead, err := r.leads.FindByPortalID(ctx, id.PortalID); err == nil {
			return lead, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if id.WaalaxyID != "" {
		if lead, err := r.leads.FindByWaalaxyID(ctx, id.WaalaxyID); err == nil {
			return lead, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if id.LinkedInURL != "" {
		if lead, err := r.leads.FindByLinkedInURL(ctx, id.LinkedInURL); err == nil {
			return lead, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if id.LemlistID != "" {
		if lead, err := r.leads.FindByLemlistID(ctx, id.LemlistID); err == nil {
			return lead, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// backfillIdentifiers sets any missing identifier fields with COALESCE
// semantics — a set identifier is never overwritten (spec.md §4.2).
func (r *Resolver) backfillIdentifiers(lead *models.Lead, id Identifier) bool {
	changed := false
	if id.PortalID != "" && (lead.PortalID == nil || *lead.PortalID == "") {
		lead.PortalID = &id.PortalID
		changed = true
	}
	if id.WaalaxyID != "" && (lead.WaalaxyID == nil || *lead.WaalaxyID == "") {
		lead.WaalaxyID = &id.WaalaxyID
		changed = true
	}
	if id.LinkedInURL != "" {
		normalized := repositories.NormalizeURL(id.LinkedInURL)
		if lead.LinkedInURL == nil || *lead.LinkedInURL == "" {
			lead.LinkedInURL = &normalized
			changed = true
		}
	}
	if id.LemlistID != "" && (lead.LemlistID == nil || *lead.LemlistID == "") {
		lead.LemlistID = &id.LemlistID
		changed = true
	}
	return changed
}

func (r *Resolver) create(ctx context.Context, id Identifier, source, campaign string, occurredAt time.Time) (*models.Lead, error) {
	lead := &models.Lead{
		Status:              models.LeadStatusNew,
		LifecycleStage:      models.LifecycleLead,
		RoutingStatus:       models.RoutingStatusUnrouted,
		FirstTouchSource:    source,
		FirstTouchCampaign:  campaign,
		FirstTouchAt:        &occurredAt,
		LastTouchSource:     source,
		LastTouchCampaign:   campaign,
		LastTouchAt:         &occurredAt,
	}

	switch {
	case id.Email != "":
		lead.Email = strings.ToLower(strings.TrimSpace(id.Email))
	case id.PortalID != "":
		lead.Email = syntheticEmail()
		lead.EmailIsPlaceholder = true
		lead.PortalID = &id.PortalID
	case id.WaalaxyID != "":
		lead.Email = syntheticEmail()
		lead.EmailIsPlaceholder = true
		lead.WaalaxyID = &id.WaalaxyID
	case id.LinkedInURL != "":
		lead.Email = syntheticEmail()
		lead.EmailIsPlaceholder = true
		normalized := repositories.NormalizeURL(id.LinkedInURL)
		lead.LinkedInURL = &normalized
	case id.LemlistID != "":
		lead.Email = syntheticEmail()
		lead.EmailIsPlaceholder = true
		lead.LemlistID = &id.LemlistID
	default:
		return nil, errNoIdentifier
	}

	if err := r.leads.Create(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

var errNoIdentifier = fmt.Errorf("lead_identifier must carry at least one of email/portal_id/waalaxy_id/linkedin_url/lemlist_id")

// ErrNoIdentifier is returned when the caller hands Resolve an empty
// Identifier — surfaced by the ingestion endpoint as a validation error.
func ErrNoIdentifier() error { return errNoIdentifier }

func syntheticEmail() string {
	n := atomic.AddInt64(&placeholderSeq, 1)
	return fmt.Sprintf("unknown+%d@placeholder.local", n)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique_violation") ||
		strings.Contains(msg, "are not unique")
}
