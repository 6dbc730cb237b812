package moco

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/models"
	"leadpipeline/internal/queue"
	"leadpipeline/internal/repositories"
)

// Handler adapts the Client onto the sync queue. Jobs are produced by the
// Automation Engine's sync_moco action (spec.md §4.7) carrying moco_action,
// lead_id, and optionally organization_id.
func Handler(client *Client, repos *repositories.Repositories) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		action, _ := job.Payload["moco_action"].(string)
		leadID, ok := toUint(job.Payload["lead_id"])
		if !ok {
			return apperr.NewValidation("moco_sync job missing lead_id")
		}

		lead, err := repos.Leads.FindByID(ctx, leadID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NewNotFound("lead")
		}
		if err != nil {
			return err
		}

		switch action {
		case "create_customer":
			return createCustomer(ctx, client, repos, lead)
		case "create_offer":
			return createOffer(ctx, client, repos, lead)
		case "create_invoice_from_offer":
			return createInvoice(ctx, client, repos, lead)
		default:
			return apperr.NewValidation("unknown moco_action: " + action)
		}
	}
}

func createCustomer(ctx context.Context, client *Client, repos *repositories.Repositories, lead *models.Lead) error {
	if lead.OrganizationID == nil {
		return apperr.NewValidation("lead has no organization to sync as a moco customer")
	}
	org, err := repos.Organizations.FindByID(ctx, *lead.OrganizationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NewNotFound("organization")
	}
	if err != nil {
		return err
	}
	if org.MocoCustomerID != "" {
		return nil
	}
	customer, err := client.CreateCustomer(ctx, org.Name, lead.Email)
	if err != nil {
		return err
	}
	org.MocoCustomerID = customer.ID
	return repos.Organizations.Save(ctx, org)
}

func createOffer(ctx context.Context, client *Client, repos *repositories.Repositories, lead *models.Lead) error {
	if lead.OrganizationID == nil {
		return apperr.NewValidation("lead has no organization to offer against")
	}
	if lead.PipelineID == nil {
		return apperr.NewValidation("lead has no active deal to offer against")
	}
	org, err := repos.Organizations.FindByID(ctx, *lead.OrganizationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NewNotFound("organization")
	}
	if err != nil {
		return err
	}
	if org.MocoCustomerID == "" {
		return apperr.NewInvariantViolation("organization has no moco customer — create_customer must run first")
	}
	deal, err := repos.Deals.FindByLeadAndPipeline(ctx, lead.ID, *lead.PipelineID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NewNotFound("deal")
	}
	if err != nil {
		return err
	}
	if deal.MocoOfferID != "" {
		return nil
	}
	value := 0.0
	if deal.Value != nil {
		value = *deal.Value
	}
	offer, err := client.CreateOffer(ctx, org.MocoCustomerID, deal.Name, value, []LineItem{
		{Title: deal.Name, Value: value},
	})
	if err != nil {
		return err
	}
	return repos.Deals.SetMocoOfferID(ctx, deal.ID, offer.ID)
}

func createInvoice(ctx context.Context, client *Client, repos *repositories.Repositories, lead *models.Lead) error {
	if lead.PipelineID == nil {
		return apperr.NewValidation("lead has no active deal to invoice")
	}
	deal, err := repos.Deals.FindByLeadAndPipeline(ctx, lead.ID, *lead.PipelineID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NewNotFound("deal")
	}
	if err != nil {
		return err
	}
	if deal.MocoOfferID == "" {
		return apperr.NewInvariantViolation("deal has no moco offer — create_offer must run first")
	}
	if deal.MocoInvoiceID != "" {
		return nil
	}
	invoice, err := client.CreateInvoiceFromOffer(ctx, deal.MocoOfferID)
	if err != nil {
		return err
	}
	return repos.Deals.SetMocoInvoiceID(ctx, deal.ID, invoice.ID)
}

func toUint(v interface{}) (uint, bool) {
	switch n := v.(type) {
	case float64:
		return uint(n), true
	case int:
		return uint(n), true
	case uint:
		return n, true
	default:
		return 0, false
	}
}
