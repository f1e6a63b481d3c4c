// Package contracts manages a team's contracts from draft to a final state.
//
// A contract ties a property to a template (a team template or a built-in one) and
// carries its parties and free-form fields. Generate renders the template into a
// standalone HTML document with signature zones and stores it in object storage as a
// new revision. A draft can be sent only once a document exists and every placeholder
// resolved.
//
// Statuses move draft -> sent -> signed | declined, and draft or sent -> voided.
// Contracts are never deleted; they count toward the plan's quota for the billing
// cycle in which they were created.
package contracts
