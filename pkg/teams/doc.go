// Package teams manages tenants, their members and invitations.
//
// A team is created by its owner, who becomes its first member. Other users join by
// accepting an emailed invitation (valid for seven days) or are added directly by an
// admin. Roles rank owner > admin > agent > viewer; the owner can never be removed or
// demoted.
//
// Pending invitations hold a seat: Invite checks the plan's seat limit, and
// AcceptInvitation checks it again with the invitation's own hold taken out.
package teams
