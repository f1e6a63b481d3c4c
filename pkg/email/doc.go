// Package email sends transactional mail: team invitations and contract-sent notices.
//
// SMTPSender delivers through a plain SMTP relay (STARTTLS when the server offers it).
// When no relay is configured, Noop logs each message instead so that invitation and
// send flows keep working in development.
package email
