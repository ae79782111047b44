package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nomis52/adlift/provider"
	"github.com/nomis52/adlift/selection"
	"github.com/nomis52/adlift/store"
)

// All objectives share the same five-stage chain; they differ only in the
// ad set's optimization/destination settings and in the creative's
// call-to-action. New resources are always created paused; activation is a
// separate, explicit action.
const createStatus = "PAUSED"

// StepsFor returns the ordered step list for the session's objective.
func StepsFor(client *provider.Client, sess *selection.Session) ([]Step, error) {
	switch sess.Objective {
	case selection.ObjectiveLeads, selection.ObjectiveCalls, selection.ObjectiveTraffic:
	default:
		return nil, fmt.Errorf("%w: %q", selection.ErrUnknownObjective, sess.Objective)
	}

	creds := sess.Credentials

	return []Step{
		{
			Name: StepAsset,
			Build: func(sess *selection.Session, cp store.Checkpoint) (any, error) {
				return provider.ImageRequest{
					Name: sess.Name + " creative",
					URL:  sess.Selections.CreativeURL,
				}, nil
			},
			Execute: func(ctx context.Context, payload any) (string, error) {
				req, ok := payload.(provider.ImageRequest)
				if !ok {
					return "", fmt.Errorf("unexpected payload type %T for asset step", payload)
				}
				return client.CreateImage(ctx, creds, req)
			},
		},
		{
			Name: StepCampaign,
			Build: func(sess *selection.Session, cp store.Checkpoint) (any, error) {
				return provider.CampaignRequest{
					Name:                sess.Name,
					Objective:           campaignObjective(sess.Objective),
					Status:              createStatus,
					SpecialAdCategories: []string{},
				}, nil
			},
			Execute: func(ctx context.Context, payload any) (string, error) {
				req, ok := payload.(provider.CampaignRequest)
				if !ok {
					return "", fmt.Errorf("unexpected payload type %T for campaign step", payload)
				}
				return client.CreateCampaign(ctx, creds, req)
			},
		},
		{
			Name:      StepAdSet,
			DependsOn: []string{StepCampaign},
			Build:     buildAdSet,
			Execute: func(ctx context.Context, payload any) (string, error) {
				req, ok := payload.(provider.AdSetRequest)
				if !ok {
					return "", fmt.Errorf("unexpected payload type %T for adSet step", payload)
				}
				return client.CreateAdSet(ctx, creds, req)
			},
		},
		{
			Name:      StepCreative,
			DependsOn: []string{StepAsset},
			Build:     buildCreative,
			Execute: func(ctx context.Context, payload any) (string, error) {
				req, ok := payload.(provider.CreativeRequest)
				if !ok {
					return "", fmt.Errorf("unexpected payload type %T for creative step", payload)
				}
				return client.CreateCreative(ctx, creds, req)
			},
		},
		{
			Name:      StepAd,
			DependsOn: []string{StepAdSet, StepCreative},
			Build: func(sess *selection.Session, cp store.Checkpoint) (any, error) {
				return provider.AdRequest{
					Name:     sess.Name,
					AdSetID:  cp.ID(StepAdSet),
					Creative: provider.CreativeRef{CreativeID: cp.ID(StepCreative)},
					Status:   createStatus,
				}, nil
			},
			Execute: func(ctx context.Context, payload any) (string, error) {
				req, ok := payload.(provider.AdRequest)
				if !ok {
					return "", fmt.Errorf("unexpected payload type %T for ad step", payload)
				}
				return client.CreateAd(ctx, creds, req)
			},
		},
	}, nil
}

func campaignObjective(objective selection.Objective) string {
	switch objective {
	case selection.ObjectiveCalls:
		return "CALLS"
	case selection.ObjectiveTraffic:
		return "TRAFFIC"
	default:
		return "LEADS"
	}
}

func buildAdSet(sess *selection.Session, cp store.Checkpoint) (any, error) {
	sel := sess.Selections

	req := provider.AdSetRequest{
		Name:         sess.Name + " ad set",
		CampaignID:   cp.ID(StepCampaign),
		DailyBudget:  sess.BudgetMinor,
		BillingEvent: "IMPRESSIONS",
		Targeting: provider.AdSetTargeting{
			Countries: sel.Targeting.Countries,
			AgeMin:    sel.Targeting.AgeMin,
			AgeMax:    sel.Targeting.AgeMax,
		},
		Status: createStatus,
	}
	if sel.StartTime != nil {
		req.StartTime = sel.StartTime.Format(time.RFC3339)
	}
	if sel.EndTime != nil {
		req.EndTime = sel.EndTime.Format(time.RFC3339)
	}

	switch sess.Objective {
	case selection.ObjectiveLeads:
		req.OptimizationGoal = "LEAD_GENERATION"
		req.DestinationType = "ON_AD"
		req.PromotedObject = &provider.PromotedObject{
			PageID:     sess.Credentials.PageID,
			LeadFormID: sel.LeadFormID,
		}
	case selection.ObjectiveCalls:
		req.OptimizationGoal = "QUALITY_CALL"
		req.DestinationType = "PHONE_CALL"
		req.PromotedObject = &provider.PromotedObject{
			PageID: sess.Credentials.PageID,
		}
	case selection.ObjectiveTraffic:
		req.OptimizationGoal = "LINK_CLICKS"
		req.DestinationType = "WEBSITE"
	}

	return req, nil
}

func buildCreative(sess *selection.Session, cp store.Checkpoint) (any, error) {
	sel := sess.Selections

	link := provider.LinkData{
		ImageHash: cp.ID(StepAsset),
		Message:   sel.PrimaryText,
		Headline:  sel.Headline,
	}

	switch sess.Objective {
	case selection.ObjectiveLeads:
		link.CallToAction = &provider.CallToAction{
			Type:  "SIGN_UP",
			Value: map[string]string{"lead_gen_form_id": sel.LeadFormID},
		}
	case selection.ObjectiveCalls:
		link.Link = "tel:" + sel.PhoneNumber
		link.CallToAction = &provider.CallToAction{
			Type:  "CALL_NOW",
			Value: map[string]string{"link": "tel:" + sel.PhoneNumber},
		}
	case selection.ObjectiveTraffic:
		cta := sel.CallToAction
		if cta == "" {
			cta = "LEARN_MORE"
		}
		link.Link = sel.DestinationURL
		link.CallToAction = &provider.CallToAction{
			Type:  cta,
			Value: map[string]string{"link": sel.DestinationURL},
		}
	}

	return provider.CreativeRequest{
		Name: sess.Name + " creative",
		ObjectStorySpec: provider.ObjectStorySpec{
			PageID:   sess.Credentials.PageID,
			LinkData: link,
		},
	}, nil
}
