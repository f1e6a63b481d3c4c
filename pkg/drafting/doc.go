// Package drafting writes contract clauses with a chat completion model.
//
// A draft is counted against the team's plan before the model is called and recorded
// in ai_drafts afterwards, so the next CheckAIDraft sees it:
//
//	drafter := drafting.NewDrafter(db, enforcer, drafting.Config{APIKey: key, Model: "gpt-4o-mini"})
//	draft, err := drafter.DraftClause(ctx, teamID, &drafting.DraftRequest{
//		Kind:         drafting.KindContingency,
//		Instructions: "Buyer may cancel if the inspection finds foundation damage",
//		Context:      map[string]string{"state": "OR"},
//	})
//
// Without an API key the drafter is disabled and every call returns ErrDisabled.
package drafting
