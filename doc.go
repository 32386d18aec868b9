// Package identity is the account-identity core of a multi-tenant issue
// tracker: it authenticates users, issues stateless session tokens, and
// drives the account lifecycle from invitation or self-registration through
// password reset, email confirmation, and federated login.
//
// Workflows:
//   - Auther handles local credential login and produces a signed session
//     token plus a sanitized user projection.
//   - RegisterUserHandler creates new accounts, merging invitation flows into
//     existing placeholder records instead of creating duplicate rows.
//   - InviteUserHandler lets an authenticated administrator provision a
//     blocked placeholder account bound to their company, activated later via
//     AcceptInvitationHandler and a one-time code.
//   - InitializePasswordResetHandler and FinalizePasswordResetHandler exchange
//     a one-time reset token for a new password; token consumption and the
//     password write are a single conditional update so the token can never be
//     replayed.
//   - SendConfirmationHandler and ConfirmEmailHandler gate login on a
//     confirmed email address when the confirmation policy is enabled.
//
// The social subpackage implements the provider redirect/callback handshake
// for federated login and reuses the same token issuance path.
//
// External collaborators (entity CRUD, transactional email delivery) are
// consumed through the RepositoryManager and Mailer interfaces; the package
// never owns their implementations beyond the Bun-backed defaults.
package identity
