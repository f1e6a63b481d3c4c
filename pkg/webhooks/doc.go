// Package webhooks delivers team events to registered HTTP endpoints.
//
// # Events
//
//	contract.created, contract.generated, contract.sent,
//	contract.signed, contract.declined, contract.voided
//	team.member_invited, team.member_joined, team.member_removed
//	billing.invoice_created
//
// Services publish through Manager.Publish, which records a delivery row per
// subscribed endpoint and posts the event. An endpoint may ask for the raw JSON event
// (the default) or a Slack or Microsoft Teams chat message built from it.
//
// # Signatures
//
// Every request carries X-Closingroom-Signature: sha256=<hex HMAC-SHA256 of the body>
// keyed with the endpoint's secret, which is returned once at registration.
//
//	sig := r.Header.Get("X-Closingroom-Signature")
//	if !webhooks.VerifySignature(body, sig, secret) {
//		return errors.New("invalid signature")
//	}
//
// # Retry Policy
//
// Failed deliveries are retried by RetryWorker with exponential backoff
// (1s, 2s, 4s, 8s; capped at 5m) for five attempts in total. Each endpoint is
// rate limited; a rate-limited attempt counts as a failure and is retried.
package webhooks
